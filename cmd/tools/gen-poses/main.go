// gen-poses writes a synthetic pose log CSV suitable for -replay: the
// fingertip appears in front of the observer, holds long enough to
// stabilise, traces forward, then holds again.
//
// Usage:
//
//	gen-poses -out poses.csv [-rate 90] [-cycles 2]
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/motion.report/internal/pose"
)

func main() {
	out := flag.String("out", "poses.csv", "output CSV path")
	rate := flag.Float64("rate", 90, "samples per second")
	hold := flag.Float64("hold", 2.5, "seconds of stillness before and after the trace")
	traceSecs := flag.Float64("trace", 3.0, "seconds spent tracing")
	startAhead := flag.Float64("start", 0.25, "trace start distance ahead of the observer (m)")
	endAhead := flag.Float64("end", 0.55, "trace end distance ahead of the observer (m)")
	cycles := flag.Int("cycles", 1, "number of hold-trace-hold cycles")
	hand := flag.String("hand", string(pose.RightHand), "hand label (left or right)")
	flag.Parse()

	if *rate <= 0 || *cycles < 1 {
		flag.Usage()
		os.Exit(1)
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("create output: %v", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(pose.ReplayHeader); err != nil {
		log.Fatalf("write header: %v", err)
	}

	dt := 1.0 / *rate
	cycle := *hold + *traceSecs + *hold
	total := cycle * float64(*cycles)

	rows := 0
	for ts := 0.0; ts < total; ts += dt {
		phase := ts
		for phase >= cycle {
			phase -= cycle
		}

		var ahead float64
		switch {
		case phase < *hold:
			ahead = *startAhead
		case phase < *hold+*traceSecs:
			t := (phase - *hold) / *traceSecs
			ahead = *startAhead + t*(*endAhead-*startAhead)
		default:
			ahead = *endAhead
		}

		// Observer fixed at the origin facing +X; the fingertip moves
		// along the forward axis.
		record := []string{
			fmt.Sprintf("%.4f", ts),
			*hand,
			fmt.Sprintf("%.6f", ahead), "0.000000", "0.000000",
			"0.000000", "0.000000", "0.000000",
			"1.000000", "0.000000", "0.000000",
		}
		if err := w.Write(record); err != nil {
			log.Fatalf("write record: %v", err)
		}
		rows++
	}

	w.Flush()
	if err := w.Error(); err != nil {
		log.Fatalf("flush output: %v", err)
	}
	log.Printf("wrote %s (%d samples, %.1fs)", *out, rows, total)
}
