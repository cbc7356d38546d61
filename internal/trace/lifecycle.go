package trace

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/motion.report/internal/geom"
	"github.com/banshee-data/motion.report/internal/pose"
)

// Phase is the lifecycle's position in one attempt.
type Phase string

const (
	PhaseIdle                  Phase = "idle"
	PhaseAwaitingProximity     Phase = "awaiting_proximity"
	PhaseSettlingPre           Phase = "settling_pre"
	PhaseTracing               Phase = "tracing"
	PhaseSettlingPostAdvance   Phase = "settling_post_advance"
	PhaseSettlingPostCountdown Phase = "settling_post_countdown"
	PhaseComplete              Phase = "complete"
)

// LifecycleConfig holds the tuning parameters for one attempt lifecycle.
type LifecycleConfig struct {
	ProximityThreshold float64 // meters from observer before pre-settling starts
	ForwardMinDistance float64 // meters from observer required to finish
	RevealDuration     float64 // seconds of target-reveal animation gating completion
	MinRecordSpacing   float64 // meters moved before another trace point is kept

	PreStability  StabilityConfig
	PostStability StabilityConfig
}

// TracePoint is one recorded position on an attempt's trace, with seconds
// elapsed since the trace started.
type TracePoint struct {
	Position r3.Vec
	Elapsed  float64
}

// Transition reports the notable outcomes of feeding one sample through
// the lifecycle. Zero value means nothing happened beyond internal state.
type Transition struct {
	// Stabilized is set on the single sample where pre-trace settling
	// reached Stable and tracing began. StablePos is the frozen start.
	Stabilized bool
	StablePos  r3.Vec

	// Completed is set on the single sample where the attempt finished.
	Completed bool
}

// Lifecycle drives one attempt from first hand contact through stabilised
// start, tracing, and confirmed finish. It owns the in-flight trace point
// list; a completed attempt's points are handed off to the recorder and a
// Locked flag prevents any further mutation until Reset.
type Lifecycle struct {
	cfg LifecycleConfig

	phase  Phase
	locked bool

	pre  *StabilityDetector
	post *StabilityDetector

	points       []TracePoint
	traceStartTS float64
	lastRecorded r3.Vec
	startPos     r3.Vec

	// postHoldTS is the reference timestamp of the completion hold
	// started on entry to the countdown phase. A detector reference
	// that no longer matches means movement reset the hold.
	postHoldTS float64

	// moveForward signals the user is stable but still too close to the
	// observer to finish.
	moveForward bool

	lastSampleTS float64
	sawSample    bool
}

// NewLifecycle returns an idle, unlocked lifecycle.
func NewLifecycle(cfg LifecycleConfig) *Lifecycle {
	return &Lifecycle{
		cfg:  cfg,
		pre:  NewStabilityDetector(cfg.PreStability),
		post: NewStabilityDetector(cfg.PostStability),

		phase: PhaseIdle,
	}
}

// Phase returns the current lifecycle phase.
func (l *Lifecycle) Phase() Phase { return l.phase }

// Locked reports whether the attempt has completed and the lifecycle is
// refusing further samples until Reset.
func (l *Lifecycle) Locked() bool { return l.locked }

// MoveForward reports whether the "move forward" signal is active.
func (l *Lifecycle) MoveForward() bool { return l.moveForward }

// Points returns the in-flight trace points. Callers must copy before the
// next Observe if they retain the slice.
func (l *Lifecycle) Points() []TracePoint { return l.points }

// StartPosition returns the frozen stable start of the active attempt.
func (l *Lifecycle) StartPosition() r3.Vec { return l.startPos }

// Countdown returns the user-visible countdown for the current phase:
// the pre-settle countdown before tracing, the completion countdown in the
// final hold, and zero elsewhere.
func (l *Lifecycle) Countdown() int {
	switch l.phase {
	case PhaseSettlingPre:
		if l.pre.CountdownVisible() {
			return l.pre.Countdown()
		}
	case PhaseSettlingPostCountdown:
		return l.post.Countdown()
	}
	return 0
}

// RevealProgress returns the target-reveal animation progress in [0, 1],
// following a cubic ease-out over the configured duration. Progress is a
// function of elapsed trace time, not tick count, so frame-rate variation
// does not change the animation's duration.
func (l *Lifecycle) RevealProgress() float64 {
	if l.phase == PhaseComplete {
		return 1
	}
	if !l.tracingActive() {
		return 0
	}
	return cubicEaseOut(l.revealFraction(l.lastSampleTS))
}

func (l *Lifecycle) tracingActive() bool {
	switch l.phase {
	case PhaseTracing, PhaseSettlingPostAdvance, PhaseSettlingPostCountdown:
		return true
	}
	return false
}

func (l *Lifecycle) revealFraction(now float64) float64 {
	if l.cfg.RevealDuration <= 0 {
		return 1
	}
	f := (now - l.traceStartTS) / l.cfg.RevealDuration
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func cubicEaseOut(t float64) float64 {
	u := 1 - t
	return 1 - u*u*u
}

// Observe feeds one fingertip sample through the lifecycle. The observer
// pose may be unavailable (haveObs false), in which case proximity and
// forward-distance gates cannot be evaluated and those phases hold still
// for this tick.
func (l *Lifecycle) Observe(s pose.Sample, obs pose.Observer, haveObs bool) Transition {
	if l.locked {
		return Transition{}
	}

	l.lastSampleTS = s.Timestamp
	l.sawSample = true

	switch l.phase {
	case PhaseIdle:
		// A trackable point appeared.
		l.phase = PhaseAwaitingProximity
		return l.awaitProximity(s, obs, haveObs)

	case PhaseAwaitingProximity:
		return l.awaitProximity(s, obs, haveObs)

	case PhaseSettlingPre:
		return l.settlePre(s)

	case PhaseTracing, PhaseSettlingPostAdvance, PhaseSettlingPostCountdown:
		return l.tracing(s, obs, haveObs)
	}
	return Transition{}
}

func (l *Lifecycle) awaitProximity(s pose.Sample, obs pose.Observer, haveObs bool) Transition {
	if !haveObs {
		return Transition{}
	}
	if geom.Dist(s.Position, obs.Position) > l.cfg.ProximityThreshold {
		return Transition{}
	}
	l.phase = PhaseSettlingPre
	l.pre.Reset()
	return l.settlePre(s)
}

func (l *Lifecycle) settlePre(s pose.Sample) Transition {
	if l.pre.Observe(s.Position, s.Timestamp) != StabilityStable {
		return Transition{}
	}

	stable, _ := l.pre.StablePosition()
	l.beginTracing(stable, s.Timestamp)
	return Transition{Stabilized: true, StablePos: stable}
}

// beginTracing enters the Tracing phase from a stabilised (or forced)
// start. Recording begins immediately; there is no idle "ready" pause.
func (l *Lifecycle) beginTracing(start r3.Vec, now float64) {
	l.phase = PhaseTracing
	l.startPos = start
	l.traceStartTS = now
	l.points = append(l.points[:0], TracePoint{Position: start, Elapsed: 0})
	l.lastRecorded = start
	l.moveForward = false
	l.postHoldTS = 0
	l.post.Reset()
	l.post.Observe(start, now)
}

func (l *Lifecycle) tracing(s pose.Sample, obs pose.Observer, haveObs bool) Transition {
	l.recordPoint(s)

	// The post-trace detector runs from the moment tracing starts so its
	// reference is warm, but its verdicts only matter once the reveal
	// animation has finished.
	l.post.Observe(s.Position, s.Timestamp)

	if l.phase == PhaseTracing {
		if l.revealFraction(s.Timestamp) < 1 {
			return Transition{}
		}
		l.phase = PhaseSettlingPostAdvance
	}

	if l.phase == PhaseSettlingPostAdvance {
		if l.post.HeldFor() < l.cfg.PostStability.InitialGrace {
			l.moveForward = false
			return Transition{}
		}
		// Stable, but the point must also have advanced far enough from
		// the observer before the completion countdown starts. Without
		// an observer pose the gate cannot be evaluated; hold here.
		if !haveObs {
			return Transition{}
		}
		if geom.Dist(s.Position, obs.Position) < l.cfg.ForwardMinDistance {
			l.moveForward = true
			return Transition{}
		}
		l.moveForward = false
		l.post.RestartHold(s.Position, s.Timestamp)
		l.postHoldTS = s.Timestamp
		l.phase = PhaseSettlingPostCountdown
		return Transition{}
	}

	// PhaseSettlingPostCountdown. Any excess movement resets the
	// detector's reference, which sends the whole post-settle back to
	// phase one with a fresh reference.
	if refTS, ok := l.post.ReferenceTimestamp(); !ok || refTS != l.postHoldTS {
		l.phase = PhaseSettlingPostAdvance
		return Transition{}
	}
	if l.post.State() != StabilityStable {
		return Transition{}
	}

	l.complete()
	return Transition{Completed: true}
}

// recordPoint appends the sample to the trace if it moved far enough from
// the last recorded point to be worth keeping.
func (l *Lifecycle) recordPoint(s pose.Sample) {
	if geom.Dist(s.Position, l.lastRecorded) <= l.cfg.MinRecordSpacing {
		return
	}
	l.points = append(l.points, TracePoint{
		Position: s.Position,
		Elapsed:  s.Timestamp - l.traceStartTS,
	})
	l.lastRecorded = s.Position
}

func (l *Lifecycle) complete() {
	l.phase = PhaseComplete
	l.locked = true
	l.moveForward = false
}

// ForceStart bypasses proximity and pre-settling and begins tracing from
// the given position immediately. The caller decides whether this counts
// as an endpoint-freezing first attempt.
func (l *Lifecycle) ForceStart(start r3.Vec, now float64) Transition {
	if l.locked || l.tracingActive() {
		return Transition{}
	}
	l.beginTracing(start, now)
	l.lastSampleTS = now
	l.sawSample = true
	return Transition{Stabilized: true, StablePos: start}
}

// ForceStop bypasses all post-trace settling and completes the attempt
// with whatever has been recorded. No-op unless tracing is active.
func (l *Lifecycle) ForceStop() Transition {
	if !l.tracingActive() {
		return Transition{}
	}
	l.complete()
	return Transition{Completed: true}
}

// HandleGap reacts to the tracked point disappearing (no samples within
// the timeout) before tracing began: the attempt falls back to Idle and
// settling state is discarded. During tracing the gap is left to the
// stability detector's own timeout so a momentary dropout does not void
// the trace.
func (l *Lifecycle) HandleGap() {
	if l.locked || l.tracingActive() {
		return
	}
	if l.phase == PhaseIdle {
		return
	}
	l.phase = PhaseIdle
	l.pre.Reset()
	l.moveForward = false
}

// LastSample returns the timestamp of the most recent sample and whether
// any sample has been seen since the last Reset.
func (l *Lifecycle) LastSample() (float64, bool) {
	return l.lastSampleTS, l.sawSample
}

// Reset returns the lifecycle to Idle and clears the Locked flag, the
// trace points, and both detectors. Called between attempts and on step
// changes; nothing from the previous attempt leaks through.
func (l *Lifecycle) Reset() {
	l.phase = PhaseIdle
	l.locked = false
	l.points = nil
	l.traceStartTS = 0
	l.lastRecorded = r3.Vec{}
	l.startPos = r3.Vec{}
	l.moveForward = false
	l.postHoldTS = 0
	l.lastSampleTS = 0
	l.sawSample = false
	l.pre.Reset()
	l.post.Reset()
}
