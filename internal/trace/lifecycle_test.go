package trace

import (
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/motion.report/internal/pose"
)

func testLifecycleConfig() LifecycleConfig {
	stability := StabilityConfig{
		MovementTolerance: 0.05,
		RequiredHold:      2.0,
		SampleTimeout:     0.5,
	}
	post := stability
	post.InitialGrace = 1.0
	return LifecycleConfig{
		ProximityThreshold: 0.3,
		ForwardMinDistance: 0.4,
		RevealDuration:     1.0,
		MinRecordSpacing:   0.001,
		PreStability:       stability,
		PostStability:      post,
	}
}

var testObserver = pose.Observer{Position: r3.Vec{}, Forward: r3.Vec{X: 1}}

func feed(l *Lifecycle, ts, x float64) Transition {
	s := pose.Sample{Position: r3.Vec{X: x}, Timestamp: ts, Hand: pose.RightHand}
	return l.Observe(s, testObserver, true)
}

// driveToTracing walks a fresh lifecycle through proximity and pre-settle.
// The hand appears far away at t=0, enters proximity at t=0.1, and holds at
// x=0.2 until the pre-settle hold elapses at t=2.1.
func driveToTracing(t *testing.T, l *Lifecycle) {
	t.Helper()

	feed(l, 0, 1.0)
	if l.Phase() != PhaseAwaitingProximity {
		t.Fatalf("phase = %v, want awaiting_proximity", l.Phase())
	}

	feed(l, 0.1, 0.2)
	if l.Phase() != PhaseSettlingPre {
		t.Fatalf("phase = %v, want settling_pre", l.Phase())
	}

	var stabilized int
	for ts := 0.2; ts < 2.05; ts += 0.1 {
		if tr := feed(l, ts, 0.2); tr.Stabilized {
			stabilized++
		}
	}
	tr := feed(l, 2.1, 0.2)
	if !tr.Stabilized {
		t.Fatal("expected Stabilized transition at t=2.1")
	}
	if tr.StablePos != (r3.Vec{X: 0.2}) {
		t.Fatalf("stable pos = %v, want {0.2 0 0}", tr.StablePos)
	}
	if stabilized != 0 {
		t.Fatalf("Stabilized fired %d times before the hold elapsed", stabilized)
	}
	if l.Phase() != PhaseTracing {
		t.Fatalf("phase = %v, want tracing", l.Phase())
	}
}

func TestLifecycle_FullAttempt(t *testing.T) {
	l := NewLifecycle(testLifecycleConfig())
	driveToTracing(t, l)

	// Trace outward: 0.2 -> 0.6 in five 8cm hops, then hold.
	for i := 1; i <= 5; i++ {
		ts := 2.1 + 0.1*float64(i)
		if tr := feed(l, ts, 0.2+0.08*float64(i)); tr.Completed {
			t.Fatalf("completed mid-trace at t=%v", ts)
		}
	}

	// Holding still; the reveal animation (1s from t=2.1) gates the
	// transition out of Tracing until t=3.1.
	feed(l, 2.7, 0.6)
	feed(l, 3.0, 0.6)
	if l.Phase() != PhaseTracing {
		t.Fatalf("phase = %v, want tracing until reveal finishes", l.Phase())
	}

	feed(l, 3.1, 0.6)
	if l.Phase() != PhaseSettlingPostAdvance {
		t.Fatalf("phase = %v, want settling_post_advance once revealed", l.Phase())
	}

	// Grace: held since t=2.6, so 1.0s of post-trace hold completes by
	// t=3.7. x=0.6 satisfies the forward gate, straight to the countdown.
	feed(l, 3.3, 0.6)
	if l.Phase() != PhaseSettlingPostAdvance {
		t.Fatalf("phase = %v, want settling_post_advance during grace", l.Phase())
	}
	feed(l, 3.7, 0.6)
	if l.Phase() != PhaseSettlingPostCountdown {
		t.Fatalf("phase = %v, want settling_post_countdown", l.Phase())
	}
	if l.MoveForward() {
		t.Error("move-forward signal active despite sufficient distance")
	}

	// Completion hold restarted at t=3.7; stable at t=5.7.
	var completed int
	for ts := 3.8; ts < 5.65; ts += 0.1 {
		if tr := feed(l, ts, 0.6); tr.Completed {
			completed++
		}
	}
	if completed != 0 {
		t.Fatalf("Completed fired %d times before the hold elapsed", completed)
	}
	tr := feed(l, 5.75, 0.6)
	if !tr.Completed {
		t.Fatal("expected Completed transition at t=5.75")
	}
	if l.Phase() != PhaseComplete || !l.Locked() {
		t.Fatalf("phase = %v locked = %v, want complete/locked", l.Phase(), l.Locked())
	}

	// First point is the frozen start; five moved points follow.
	points := l.Points()
	if len(points) != 6 {
		t.Fatalf("recorded %d points, want 6", len(points))
	}
	if points[0].Position != (r3.Vec{X: 0.2}) || points[0].Elapsed != 0 {
		t.Errorf("first point = %+v, want frozen start at elapsed 0", points[0])
	}
	for i := 1; i < len(points); i++ {
		if points[i].Elapsed <= points[i-1].Elapsed {
			t.Errorf("point %d elapsed %v not increasing", i, points[i].Elapsed)
		}
	}
}

func TestLifecycle_LockedIgnoresSamples(t *testing.T) {
	l := NewLifecycle(testLifecycleConfig())
	driveToTracing(t, l)
	if tr := l.ForceStop(); !tr.Completed {
		t.Fatal("force stop should complete the active attempt")
	}

	got := len(l.Points())
	for ts := 10.0; ts < 10.5; ts += 0.1 {
		if tr := feed(l, ts, 0.9); tr.Stabilized || tr.Completed {
			t.Fatal("locked lifecycle emitted a transition")
		}
	}
	if len(l.Points()) != got {
		t.Error("locked lifecycle mutated its points")
	}
}

func TestLifecycle_MoveForwardSignal(t *testing.T) {
	l := NewLifecycle(testLifecycleConfig())
	driveToTracing(t, l)

	// Short trace: stop at x=0.3, inside the 0.4m forward gate.
	feed(l, 2.2, 0.3)
	for ts := 2.3; ts < 3.35; ts += 0.1 {
		feed(l, ts, 0.3)
	}

	// Reveal done at 3.1, grace done at 3.2 (held since 2.2), but the
	// point is too close: signal instead of countdown.
	feed(l, 3.4, 0.3)
	if l.Phase() != PhaseSettlingPostAdvance {
		t.Fatalf("phase = %v, want settling_post_advance while too close", l.Phase())
	}
	if !l.MoveForward() {
		t.Fatal("expected move-forward signal")
	}

	// Moving forward clears the signal and restarts the grace hold.
	feed(l, 3.5, 0.45)
	if l.MoveForward() {
		t.Error("signal should clear once the point moves")
	}
	for ts := 3.6; ts < 4.55; ts += 0.1 {
		feed(l, ts, 0.45)
	}
	feed(l, 4.6, 0.45)
	if l.Phase() != PhaseSettlingPostCountdown {
		t.Fatalf("phase = %v, want settling_post_countdown after advancing", l.Phase())
	}
}

func TestLifecycle_CountdownResetOnMovement(t *testing.T) {
	l := NewLifecycle(testLifecycleConfig())
	driveToTracing(t, l)

	feed(l, 2.2, 0.6)
	for ts := 2.3; ts < 3.25; ts += 0.1 {
		feed(l, ts, 0.6)
	}
	feed(l, 3.3, 0.6)
	if l.Phase() != PhaseSettlingPostCountdown {
		t.Fatalf("phase = %v, want settling_post_countdown", l.Phase())
	}

	// A twitch during the completion hold aborts it: back to the
	// advance phase, no completion.
	if tr := feed(l, 3.4, 0.7); tr.Completed {
		t.Fatal("movement during countdown must not complete")
	}
	feed(l, 3.5, 0.7)
	if l.Phase() != PhaseSettlingPostAdvance {
		t.Fatalf("phase = %v, want settling_post_advance after movement", l.Phase())
	}
}

func TestLifecycle_RevealProgress(t *testing.T) {
	l := NewLifecycle(testLifecycleConfig())
	if l.RevealProgress() != 0 {
		t.Errorf("reveal before tracing = %v, want 0", l.RevealProgress())
	}

	driveToTracing(t, l)
	if got := l.RevealProgress(); got != 0 {
		t.Errorf("reveal at trace start = %v, want 0", got)
	}

	feed(l, 2.6, 0.3)
	got := l.RevealProgress()
	if got <= 0 || got >= 1 {
		t.Errorf("reveal mid-animation = %v, want in (0, 1)", got)
	}
	// Cubic ease-out runs ahead of linear progress.
	if got <= 0.5 {
		t.Errorf("reveal at half duration = %v, want > 0.5 (ease-out)", got)
	}

	feed(l, 3.2, 0.3)
	if got := l.RevealProgress(); got != 1 {
		t.Errorf("reveal after duration = %v, want 1", got)
	}
}

func TestLifecycle_ForceStart(t *testing.T) {
	l := NewLifecycle(testLifecycleConfig())

	tr := l.ForceStart(r3.Vec{X: 0.25}, 5.0)
	if !tr.Stabilized || tr.StablePos != (r3.Vec{X: 0.25}) {
		t.Fatalf("force start transition = %+v", tr)
	}
	if l.Phase() != PhaseTracing {
		t.Fatalf("phase = %v, want tracing", l.Phase())
	}

	// Idempotent while tracing.
	if tr := l.ForceStart(r3.Vec{X: 0.9}, 5.1); tr.Stabilized {
		t.Error("force start while tracing should be a no-op")
	}
	if l.StartPosition() != (r3.Vec{X: 0.25}) {
		t.Errorf("start position = %v, want the first forced start", l.StartPosition())
	}
}

func TestLifecycle_ForceStopBeforeTracing(t *testing.T) {
	l := NewLifecycle(testLifecycleConfig())
	feed(l, 0, 0.2)
	if tr := l.ForceStop(); tr.Completed {
		t.Error("force stop before tracing should be a no-op")
	}
	if l.Locked() {
		t.Error("lifecycle locked without a completed attempt")
	}
}

func TestLifecycle_GapBeforeTracingRevertsToIdle(t *testing.T) {
	l := NewLifecycle(testLifecycleConfig())
	feed(l, 0, 0.2)
	feed(l, 0.5, 0.2)
	if l.Phase() != PhaseSettlingPre {
		t.Fatalf("phase = %v, want settling_pre", l.Phase())
	}

	l.HandleGap()
	if l.Phase() != PhaseIdle {
		t.Fatalf("phase = %v, want idle after gap", l.Phase())
	}
}

func TestLifecycle_GapDuringTracingIsIgnored(t *testing.T) {
	l := NewLifecycle(testLifecycleConfig())
	driveToTracing(t, l)

	l.HandleGap()
	if l.Phase() != PhaseTracing {
		t.Fatalf("phase = %v, want tracing preserved across a dropout", l.Phase())
	}
}

func TestLifecycle_Reset(t *testing.T) {
	l := NewLifecycle(testLifecycleConfig())
	driveToTracing(t, l)
	l.ForceStop()

	l.Reset()
	if l.Phase() != PhaseIdle || l.Locked() {
		t.Fatalf("phase = %v locked = %v after reset, want idle/unlocked", l.Phase(), l.Locked())
	}
	if len(l.Points()) != 0 {
		t.Error("points survived reset")
	}
	if _, saw := l.LastSample(); saw {
		t.Error("sample memory survived reset")
	}
}

func TestLifecycle_MissingObserverHoldsProximityGate(t *testing.T) {
	l := NewLifecycle(testLifecycleConfig())

	s := pose.Sample{Position: r3.Vec{X: 0.1}, Timestamp: 0}
	l.Observe(s, pose.Observer{}, false)
	if l.Phase() != PhaseAwaitingProximity {
		t.Fatalf("phase = %v, want awaiting_proximity without an observer", l.Phase())
	}

	// With the observer back the same position passes the gate.
	s.Timestamp = 0.1
	l.Observe(s, testObserver, true)
	if l.Phase() != PhaseSettlingPre {
		t.Fatalf("phase = %v, want settling_pre once observer returns", l.Phase())
	}
}
