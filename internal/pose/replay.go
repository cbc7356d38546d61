package pose

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/motion.report/internal/monitoring"
	"gonum.org/v1/gonum/spatial/r3"
)

// ReplayHeader is the expected header of a pose log file.
var ReplayHeader = []string{
	"timestamp", "hand",
	"x", "y", "z",
	"obs_x", "obs_y", "obs_z",
	"fwd_x", "fwd_y", "fwd_z",
}

// ReplaySource plays back a recorded pose log CSV. When realtime is true the
// feed is paced by the gaps between record timestamps; otherwise records are
// delivered as fast as the consumer drains them.
type ReplaySource struct {
	ch   chan Sample
	done chan struct{}

	mu       sync.Mutex
	observer Observer
	hasObs   bool

	closeOnce sync.Once
}

// NewReplaySource opens path and starts streaming its records.
func NewReplaySource(path string, realtime bool) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pose log: %w", err)
	}

	s := &ReplaySource{
		ch:   make(chan Sample, 64),
		done: make(chan struct{}),
	}

	go s.run(f, realtime)
	return s, nil
}

// Samples returns the replayed sample feed. The channel is closed when the
// log is exhausted or the source is closed.
func (s *ReplaySource) Samples() <-chan Sample {
	return s.ch
}

// Observer returns the observer pose from the most recently replayed record.
func (s *ReplaySource) Observer() (Observer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observer, s.hasObs
}

// Close stops replay. Safe to call more than once.
func (s *ReplaySource) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func (s *ReplaySource) run(f *os.File, realtime bool) {
	defer close(s.ch)
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(ReplayHeader)

	// Skip header row if present.
	first, err := r.Read()
	if err != nil {
		return
	}
	var prevTS float64
	if first[0] != ReplayHeader[0] {
		if sample, obs, err := parseRecord(first); err == nil {
			s.publish(sample, obs)
			prevTS = sample.Timestamp
		}
	}

	for {
		select {
		case <-s.done:
			return
		default:
		}

		rec, err := r.Read()
		if err == io.EOF {
			return
		}
		if err != nil {
			monitoring.Logf("pose replay: skipping malformed record: %v", err)
			continue
		}

		sample, obs, err := parseRecord(rec)
		if err != nil {
			monitoring.Logf("pose replay: skipping record: %v", err)
			continue
		}

		if realtime && prevTS > 0 && sample.Timestamp > prevTS {
			delay := time.Duration((sample.Timestamp - prevTS) * float64(time.Second))
			select {
			case <-time.After(delay):
			case <-s.done:
				return
			}
		}
		prevTS = sample.Timestamp

		s.publish(sample, obs)
	}
}

func (s *ReplaySource) publish(sample Sample, obs Observer) {
	s.mu.Lock()
	s.observer = obs
	s.hasObs = true
	s.mu.Unlock()

	select {
	case s.ch <- sample:
	case <-s.done:
	}
}

func parseRecord(rec []string) (Sample, Observer, error) {
	if len(rec) != len(ReplayHeader) {
		return Sample{}, Observer{}, fmt.Errorf("expected %d fields, got %d", len(ReplayHeader), len(rec))
	}

	vals := make([]float64, len(rec))
	for i, field := range rec {
		if i == 1 {
			continue // hand column
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return Sample{}, Observer{}, fmt.Errorf("field %q: %w", ReplayHeader[i], err)
		}
		vals[i] = v
	}

	sample := Sample{
		Timestamp: vals[0],
		Hand:      Hand(rec[1]),
		Position:  r3.Vec{X: vals[2], Y: vals[3], Z: vals[4]},
	}
	obs := Observer{
		Position: r3.Vec{X: vals[5], Y: vals[6], Z: vals[7]},
		Forward:  r3.Vec{X: vals[8], Y: vals[9], Z: vals[10]},
	}
	return sample, obs, nil
}
