// Package trace implements the guided-tracing core: the stability detector,
// the attempt lifecycle state machine, the attempt recorder, and the session
// sequencer. A single goroutine feeds pose samples through these in order,
// so none of the state here is safe for concurrent mutation except where a
// type says otherwise.
package trace

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/motion.report/internal/geom"
)

// StabilityState represents the detector's position in its settle cycle.
type StabilityState string

const (
	StabilityUnstable StabilityState = "unstable" // No usable reference yet
	StabilitySettling StabilityState = "settling" // Holding near a reference, countdown running
	StabilityStable   StabilityState = "stable"   // Held within tolerance for the full duration
)

// StabilityConfig holds the tuning parameters for one detector instance.
// The pre-trace and post-trace detectors are the same machine with
// different parameters.
type StabilityConfig struct {
	MovementTolerance float64 // meters of drift allowed around the reference
	RequiredHold      float64 // seconds the point must hold to become stable
	InitialGrace      float64 // seconds before the countdown is externally visible
	SampleTimeout     float64 // seconds without samples before the reference is dropped
}

// StabilityDetector decides, from a stream of noisy (position, timestamp)
// samples, when a tracked point has held still near a reference for the
// required duration. Excess movement or a gap in samples resets the
// reference and the countdown.
type StabilityDetector struct {
	cfg StabilityConfig

	state  StabilityState
	refPos r3.Vec
	refTS  float64
	hasRef bool
	lastTS float64

	stablePos r3.Vec
}

// NewStabilityDetector returns a detector in the Unstable state.
func NewStabilityDetector(cfg StabilityConfig) *StabilityDetector {
	return &StabilityDetector{cfg: cfg, state: StabilityUnstable}
}

// Observe processes one sample and returns the resulting state. Timestamps
// are seconds on the pose source's clock and must be non-decreasing.
func (d *StabilityDetector) Observe(p r3.Vec, t float64) StabilityState {
	// A gap in samples means the tracked point was lost; the old
	// reference no longer describes anything the user is doing.
	if d.hasRef && d.cfg.SampleTimeout > 0 && t-d.lastTS > d.cfg.SampleTimeout {
		d.setReference(p, t)
		d.lastTS = t
		return d.state
	}
	d.lastTS = t

	if !d.hasRef {
		d.setReference(p, t)
		return d.state
	}

	if d.state == StabilityStable {
		// Stability is only lost by excess movement.
		if geom.Dist(p, d.refPos) > d.cfg.MovementTolerance {
			d.setReference(p, t)
		}
		return d.state
	}

	if geom.Dist(p, d.refPos) > d.cfg.MovementTolerance {
		d.setReference(p, t)
		return d.state
	}

	if t-d.refTS >= d.cfg.RequiredHold {
		d.state = StabilityStable
		d.stablePos = d.refPos
	}
	return d.state
}

// setReference restarts the hold from a new reference sample.
func (d *StabilityDetector) setReference(p r3.Vec, t float64) {
	d.refPos = p
	d.refTS = t
	d.hasRef = true
	d.state = StabilitySettling
}

// RestartHold discards the current reference and restarts the full hold
// from the given sample. Used when a caller wants a fresh countdown after
// an external precondition is met.
func (d *StabilityDetector) RestartHold(p r3.Vec, t float64) {
	d.setReference(p, t)
	d.lastTS = t
}

// Reset returns the detector to Unstable with no reference.
func (d *StabilityDetector) Reset() {
	d.state = StabilityUnstable
	d.hasRef = false
	d.lastTS = 0
	d.stablePos = r3.Vec{}
}

// State returns the current detector state.
func (d *StabilityDetector) State() StabilityState {
	return d.state
}

// HeldFor returns how long the point has held within tolerance of the
// current reference, in seconds. Zero when no reference is set.
func (d *StabilityDetector) HeldFor() float64 {
	if !d.hasRef {
		return 0
	}
	return d.lastTS - d.refTS
}

// Countdown returns the whole seconds remaining before stability, clamped
// to at least 1 while settling, and 0 once stable. Only meaningful before
// the Stable transition.
func (d *StabilityDetector) Countdown() int {
	if d.state == StabilityStable {
		return 0
	}
	if !d.hasRef {
		return int(math.Ceil(d.cfg.RequiredHold))
	}
	remaining := int(math.Ceil(d.cfg.RequiredHold - d.HeldFor()))
	if remaining < 1 {
		remaining = 1
	}
	return remaining
}

// CountdownVisible reports whether the countdown has passed the initial
// grace period and should be surfaced to the user.
func (d *StabilityDetector) CountdownVisible() bool {
	if !d.hasRef {
		return false
	}
	return d.HeldFor() >= d.cfg.InitialGrace
}

// ReferenceTimestamp returns the timestamp of the current reference
// sample. The second return is false when no reference is set. A changed
// reference timestamp tells a caller the hold was restarted by movement
// or a sample gap.
func (d *StabilityDetector) ReferenceTimestamp() (float64, bool) {
	if !d.hasRef {
		return 0, false
	}
	return d.refTS, true
}

// StablePosition returns the frozen position the detector stabilised on.
// The second return is false before the first Stable transition.
func (d *StabilityDetector) StablePosition() (r3.Vec, bool) {
	if d.state != StabilityStable {
		return r3.Vec{}, false
	}
	return d.stablePos, true
}
