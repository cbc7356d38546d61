package pose

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// SyntheticSource emits a scripted exercise motion for demos and testing
// without a headset: the fingertip appears in front of the observer, holds
// still long enough to stabilise, traces forward, then holds again. The
// script loops until the source is closed.
type SyntheticSource struct {
	ch   chan Sample
	done chan struct{}

	closeOnce sync.Once
}

// Synthetic motion script parameters. Distances sit inside the default
// proximity threshold at the start and beyond the forward gate at the end.
const (
	synthRate       = 90 // samples per second
	synthHoldSecs   = 2.5
	synthTraceSecs  = 3.0
	synthStartAhead = 0.25
	synthEndAhead   = 0.55
)

// NewSyntheticSource starts the scripted feed.
func NewSyntheticSource() *SyntheticSource {
	s := &SyntheticSource{
		ch:   make(chan Sample, 16),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

// Samples returns the synthetic sample feed.
func (s *SyntheticSource) Samples() <-chan Sample {
	return s.ch
}

// Observer returns a fixed observer at the origin facing +X.
func (s *SyntheticSource) Observer() (Observer, bool) {
	return Observer{
		Position: r3.Vec{},
		Forward:  r3.Vec{X: 1},
	}, true
}

// Close stops the feed. Safe to call more than once.
func (s *SyntheticSource) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func (s *SyntheticSource) run() {
	defer close(s.ch)

	ticker := time.NewTicker(time.Second / synthRate)
	defer ticker.Stop()

	start := time.Now()
	cycle := synthHoldSecs + synthTraceSecs + synthHoldSecs

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			elapsed := now.Sub(start).Seconds()
			phase := elapsed
			for phase >= cycle {
				phase -= cycle
			}

			var ahead float64
			switch {
			case phase < synthHoldSecs:
				ahead = synthStartAhead
			case phase < synthHoldSecs+synthTraceSecs:
				t := (phase - synthHoldSecs) / synthTraceSecs
				ahead = synthStartAhead + t*(synthEndAhead-synthStartAhead)
			default:
				ahead = synthEndAhead
			}

			sample := Sample{
				Position:  r3.Vec{X: ahead},
				Timestamp: elapsed,
				Hand:      RightHand,
			}
			select {
			case s.ch <- sample:
			case <-s.done:
				return
			}
		}
	}
}

// ManualSource is a test double whose samples and observer pose are pushed
// by the caller.
type ManualSource struct {
	ch chan Sample

	mu     sync.Mutex
	obs    Observer
	hasObs bool

	closeOnce sync.Once
}

// NewManualSource returns a ManualSource with the given channel capacity.
func NewManualSource(buffer int) *ManualSource {
	return &ManualSource{ch: make(chan Sample, buffer)}
}

// Push delivers a sample to the feed.
func (m *ManualSource) Push(s Sample) {
	m.ch <- s
}

// SetObserver sets the pose returned by Observer.
func (m *ManualSource) SetObserver(obs Observer) {
	m.mu.Lock()
	m.obs = obs
	m.hasObs = true
	m.mu.Unlock()
}

// ClearObserver makes Observer report unavailable.
func (m *ManualSource) ClearObserver() {
	m.mu.Lock()
	m.hasObs = false
	m.mu.Unlock()
}

// Samples returns the pushed sample feed.
func (m *ManualSource) Samples() <-chan Sample {
	return m.ch
}

// Observer returns the pose set by SetObserver.
func (m *ManualSource) Observer() (Observer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.obs, m.hasObs
}

// Close closes the sample channel. Safe to call more than once.
func (m *ManualSource) Close() error {
	m.closeOnce.Do(func() { close(m.ch) })
	return nil
}
