// trace-plot renders stored trace attempts against their guide path as a
// PNG, for offline review of a session.
//
// Usage:
//
//	trace-plot -db motion.db -session <id> [-task straight_1] [-out traces.png]
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/motion.report/internal/config"
	"github.com/banshee-data/motion.report/internal/db"
	"github.com/banshee-data/motion.report/internal/trace"
)

func main() {
	dbPath := flag.String("db", "motion.db", "path to the sqlite database")
	sessionID := flag.String("session", "", "session to plot (required)")
	task := flag.String("task", "", "restrict to one task (e.g. straight_1)")
	out := flag.String("out", "traces.png", "output PNG path")
	flag.Parse()

	if *sessionID == "" {
		flag.Usage()
		os.Exit(1)
	}

	database, err := db.OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()

	attempts, err := database.SessionAttempts(*sessionID)
	if err != nil {
		log.Fatalf("load attempts: %v", err)
	}
	if *task != "" {
		filtered := attempts[:0]
		for _, a := range attempts {
			if a.Task == *task {
				filtered = append(filtered, a)
			}
		}
		attempts = filtered
	}
	if len(attempts) == 0 {
		log.Fatalf("no attempts found for session %s", *sessionID)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Session %s", *sessionID)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	specs := trace.BuildStepSpecs(&config.TuningConfig{})
	colors := attemptColors(len(attempts))

	guidesDrawn := map[string]bool{}
	for i, a := range attempts {
		if !guidesDrawn[a.Task] {
			if err := addGuide(p, specs, a); err != nil {
				log.Fatalf("guide for %s: %v", a.Task, err)
			}
			guidesDrawn[a.Task] = true
		}

		points, err := database.AttemptPoints(a.AttemptID)
		if err != nil {
			log.Fatalf("load points for attempt %d: %v", a.AttemptID, err)
		}

		pts := make(plotter.XYs, 0, len(points))
		for _, pt := range points {
			pts = append(pts, plotter.XY{X: pt.X, Y: pt.Y})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			log.Fatalf("attempt line: %v", err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("%s #%d", a.Task, a.AttemptNumber), line)
	}

	if err := p.Save(10*vg.Inch, 8*vg.Inch, *out); err != nil {
		log.Fatalf("save plot: %v", err)
	}
	log.Printf("wrote %s (%d attempts)", *out, len(attempts))
}

// addGuide draws the ideal path for an attempt's stored endpoints.
func addGuide(p *plot.Plot, specs [trace.NumSteps]trace.StepSpec, a db.AttemptRecord) error {
	step, ok := stepByName(a.Task)
	if !ok {
		return fmt.Errorf("unknown task %q", a.Task)
	}

	ep := trace.Endpoints{
		Step:  step,
		Start: r3.Vec{X: a.StartX, Y: a.StartY, Z: a.StartZ},
		End:   r3.Vec{X: a.EndX, Y: a.EndY, Z: a.EndZ},
		Set:   true,
	}

	guide := trace.GuidePath(specs[step], ep, 0.003, 1000)
	pts := make(plotter.XYs, 0, len(guide))
	for _, g := range guide {
		pts = append(pts, plotter.XY{X: g.X, Y: g.Y})
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = color.Gray{Y: 128}
	line.Width = vg.Points(2)
	line.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
	p.Add(line)
	p.Legend.Add(fmt.Sprintf("%s guide", a.Task), line)
	return nil
}

func stepByName(name string) (trace.Step, bool) {
	for step := trace.Step(0); int(step) < trace.NumSteps; step++ {
		if step.String() == name {
			return step, true
		}
	}
	return 0, false
}

// attemptColors cycles a small palette so consecutive attempts are
// distinguishable.
func attemptColors(n int) []color.Color {
	palette := []color.Color{
		color.RGBA{R: 0xe4, G: 0x1a, B: 0x1c, A: 0xff},
		color.RGBA{R: 0x37, G: 0x7e, B: 0xb8, A: 0xff},
		color.RGBA{R: 0x4d, G: 0xaf, B: 0x4a, A: 0xff},
		color.RGBA{R: 0x98, G: 0x4e, B: 0xa3, A: 0xff},
		color.RGBA{R: 0xff, G: 0x7f, B: 0x00, A: 0xff},
	}
	out := make([]color.Color, n)
	for i := range out {
		out[i] = palette[i%len(palette)]
	}
	return out
}
