package trace

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/motion.report/internal/config"
	"github.com/banshee-data/motion.report/internal/pose"
	"github.com/banshee-data/motion.report/internal/timeutil"
)

type captureSink struct {
	sessionIDs []string
	attempts   []*TraceAttempt
}

func (s *captureSink) SaveAttempt(sessionID string, attempt *TraceAttempt) error {
	s.sessionIDs = append(s.sessionIDs, sessionID)
	s.attempts = append(s.attempts, attempt)
	return nil
}

func testEngine(t *testing.T, exportDir string) (*Engine, *pose.ManualSource, *timeutil.MockClock, *captureSink) {
	t.Helper()

	src := pose.NewManualSource(8)
	src.SetObserver(pose.Observer{Position: r3.Vec{}, Forward: r3.Vec{X: 1}})
	clock := timeutil.NewMockClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	sink := &captureSink{}

	cfg := EngineConfig{
		Lifecycle:       testLifecycleConfig(),
		PointSpacing:    0.01,
		MaxPathPoints:   100,
		StepPathLength:  0.3,
		AttemptsPerStep: 2,
		SampleTimeout:   2 * time.Second,
		ExportDir:       exportDir,
	}
	e := NewEngine(cfg, &config.TuningConfig{}, src, clock, sink)
	t.Cleanup(func() { src.Close() })
	return e, src, clock, sink
}

func (e *Engine) sample(ts, x float64) {
	e.processSample(pose.Sample{Position: r3.Vec{X: x}, Timestamp: ts, Hand: pose.RightHand})
	e.publish()
}

// driveAttempt pushes one complete attempt through the engine: appear,
// approach, settle, trace out to x=0.6, and hold through both post-trace
// settles. Timestamps are offset by t0 so attempts can be chained.
func driveAttempt(e *Engine, t0 float64) {
	e.sample(t0, 1.0)
	e.sample(t0+0.1, 0.2)
	for dt := 0.2; dt < 2.05; dt += 0.1 {
		e.sample(t0+dt, 0.2)
	}
	e.sample(t0+2.15, 0.2) // pre-settle hold elapses

	for i := 1; i <= 5; i++ {
		e.sample(t0+2.15+0.1*float64(i), 0.2+0.08*float64(i))
	}
	e.sample(t0+2.75, 0.6)
	e.sample(t0+3.05, 0.6)
	e.sample(t0+3.2, 0.6)  // reveal finished
	e.sample(t0+3.45, 0.6) // grace running
	e.sample(t0+3.75, 0.6) // forward gate passes, countdown starts
	for dt := 3.85; dt < 5.7; dt += 0.1 {
		e.sample(t0+dt, 0.6)
	}
	e.sample(t0+5.8, 0.6) // completion hold elapses
}

func TestEngine_AttemptFreezesEndpoints(t *testing.T) {
	e, _, _, sink := testEngine(t, "")

	driveAttempt(e, 0)

	snap := e.Snapshot()
	if snap.AttemptCounts[Straight1] != 1 {
		t.Fatalf("attempt count = %d, want 1", snap.AttemptCounts[Straight1])
	}
	if snap.Step != Straight1 || snap.AttemptNumber != 2 {
		t.Fatalf("cursor = %v/%d, want straight_1/2", snap.Step, snap.AttemptNumber)
	}
	if !snap.EndpointsSet {
		t.Fatal("endpoints should stay frozen for the step's later attempts")
	}
	if snap.Start != (r3.Vec{X: 0.2}) {
		t.Errorf("frozen start = %v, want {0.2 0 0}", snap.Start)
	}
	// Straight1 runs rightward: facing +X with Z up, that is -Y.
	want := r3.Vec{X: 0.2, Y: -0.3}
	if d := r3.Norm(r3.Sub(snap.End, want)); d > 1e-9 {
		t.Errorf("frozen end = %v, want %v", snap.End, want)
	}

	if len(sink.attempts) != 1 {
		t.Fatalf("sink saw %d attempts, want 1", len(sink.attempts))
	}
	if sink.sessionIDs[0] != e.SessionID() {
		t.Errorf("sink session = %q, want %q", sink.sessionIDs[0], e.SessionID())
	}
	if got := sink.attempts[0].TotalLength; got < 0.39 || got > 0.41 {
		t.Errorf("attempt length = %v, want ~0.4", got)
	}
}

func TestEngine_SecondAttemptReusesEndpoints(t *testing.T) {
	e, _, _, sink := testEngine(t, t.TempDir())

	driveAttempt(e, 0)
	first := e.Snapshot()

	// The second attempt settles 5cm away; the frozen endpoints must not
	// move.
	e.sample(10, 1.0)
	e.sample(10.1, 0.25)
	for dt := 0.2; dt < 2.05; dt += 0.1 {
		e.sample(10+dt, 0.25)
	}
	e.sample(12.15, 0.25)

	snap := e.Snapshot()
	if snap.Start != first.Start || snap.End != first.End {
		t.Fatalf("endpoints moved between attempts: %v/%v -> %v/%v",
			first.Start, first.End, snap.Start, snap.End)
	}

	// Finish the second attempt the same way.
	for i := 1; i <= 5; i++ {
		e.sample(12.15+0.1*float64(i), 0.25+0.08*float64(i))
	}
	e.sample(12.75, 0.65)
	e.sample(13.05, 0.65)
	e.sample(13.2, 0.65)
	e.sample(13.45, 0.65)
	e.sample(13.75, 0.65)
	for dt := 3.85; dt < 5.7; dt += 0.1 {
		e.sample(10+dt, 0.65)
	}
	e.sample(15.8, 0.65)

	snap = e.Snapshot()
	if snap.AttemptCounts[Straight1] != 2 {
		t.Fatalf("attempt count = %d, want 2", snap.AttemptCounts[Straight1])
	}
	if snap.Step != Straight2 || snap.AttemptNumber != 1 {
		t.Fatalf("cursor = %v/%d, want straight_2/1", snap.Step, snap.AttemptNumber)
	}
	if snap.EndpointsSet {
		t.Error("endpoints should clear on a step change")
	}
	if len(sink.attempts) != 2 {
		t.Fatalf("sink saw %d attempts, want 2", len(sink.attempts))
	}

	// Both attempts were recorded against the same chord.
	if sink.attempts[0].Endpoints != sink.attempts[1].Endpoints {
		t.Error("attempts recorded against different endpoints")
	}
}

func TestEngine_StepExportFileOnCompletion(t *testing.T) {
	dir := t.TempDir()
	e, _, _, _ := testEngine(t, dir)

	driveAttempt(e, 0)
	matches, _ := filepath.Glob(filepath.Join(dir, "straight_1_*.csv"))
	if len(matches) != 0 {
		t.Fatalf("step exported before its quota: %v", matches)
	}

	driveAttempt(e, 10)
	matches, _ = filepath.Glob(filepath.Join(dir, "straight_1_*.csv"))
	if len(matches) != 1 {
		t.Fatalf("step export files = %v, want exactly one", matches)
	}
}

func TestEngine_ForceControls(t *testing.T) {
	e, _, _, sink := testEngine(t, "")

	e.sample(0, 0.5)
	e.handleControl(ctrlForceStart)
	e.publish()

	snap := e.Snapshot()
	if snap.Phase != PhaseTracing {
		t.Fatalf("phase after force start = %v, want tracing", snap.Phase)
	}
	if !snap.EndpointsSet || snap.Start != (r3.Vec{X: 0.5}) {
		t.Fatalf("force start should freeze endpoints at the last position, got %v", snap.Start)
	}

	e.handleControl(ctrlForceStop)
	e.publish()

	snap = e.Snapshot()
	if snap.AttemptCounts[Straight1] != 1 {
		t.Fatalf("attempt count = %d, want 1 after force stop", snap.AttemptCounts[Straight1])
	}
	if snap.Phase != PhaseIdle {
		t.Errorf("phase after finalize = %v, want idle", snap.Phase)
	}
	if len(sink.attempts) != 1 {
		t.Errorf("sink saw %d attempts, want 1", len(sink.attempts))
	}
}

func TestEngine_NextStepControl(t *testing.T) {
	e, _, _, _ := testEngine(t, "")

	e.sample(0, 0.5)
	e.handleControl(ctrlForceStart)
	e.handleControl(ctrlNextStep)
	e.publish()

	snap := e.Snapshot()
	if snap.Step != Straight2 || snap.AttemptNumber != 1 {
		t.Fatalf("cursor = %v/%d, want straight_2/1", snap.Step, snap.AttemptNumber)
	}
	if snap.EndpointsSet {
		t.Error("endpoints should clear when skipping to the next step")
	}
	if snap.Phase != PhaseIdle {
		t.Errorf("phase = %v, want idle after skip", snap.Phase)
	}
}

func TestEngine_GapHidesGuideOnFirstContact(t *testing.T) {
	e, _, clock, _ := testEngine(t, "")

	e.sample(0, 0.5)
	e.handleControl(ctrlForceStart)
	e.publish()
	if !e.Snapshot().GuideVisible {
		t.Fatal("guide should show once tracing starts")
	}

	clock.Advance(3 * time.Second)
	e.checkGap()
	e.publish()
	if e.Snapshot().GuideVisible {
		t.Error("guide should hide on tracked-point loss before any completed attempt")
	}
}

func TestEngine_GapKeepsGuideOnRetries(t *testing.T) {
	e, _, clock, _ := testEngine(t, "")

	driveAttempt(e, 0)

	// Start the second attempt, then lose the point.
	e.sample(10, 0.25)
	e.handleControl(ctrlForceStart)
	e.publish()

	clock.Advance(3 * time.Second)
	e.checkGap()
	e.publish()
	if !e.Snapshot().GuideVisible {
		t.Error("guide should stay visible on retries after a completed attempt")
	}
}

func TestEngine_SnapshotAfterFirstAttempt(t *testing.T) {
	e, _, clock, _ := testEngine(t, "")

	driveAttempt(e, 0)

	want := Snapshot{
		SessionID:     e.SessionID(),
		Step:          Straight1,
		StepName:      "straight_1",
		AttemptNumber: 2,
		Phase:         PhaseIdle,
		GuideVisible:  true,
		EndpointsSet:  true,
		Start:         r3.Vec{X: 0.2},
		End:           r3.Vec{X: 0.2, Y: -0.3},
		AttemptCounts: [NumSteps]int{1, 0, 0, 0, 0, 0},
		UpdatedAt:     clock.Now(),
	}
	if diff := cmp.Diff(want, e.Snapshot(), cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_StaleEndpointsDropped(t *testing.T) {
	e, _, _, _ := testEngine(t, "")

	e.endpoints = Endpoints{Step: Straight3, Start: r3.Vec{X: 1}, Set: true}
	e.sample(0, 0.5)

	if e.endpoints.Set {
		t.Error("endpoints frozen for another step should be discarded")
	}
}

func TestEngine_ExportRows(t *testing.T) {
	e, _, _, _ := testEngine(t, "")

	if rows := e.StepExportRows(Straight1); rows != nil {
		t.Fatalf("rows before any attempt = %v, want none", rows)
	}

	driveAttempt(e, 0)

	rows := e.StepExportRows(Straight1)
	if len(rows) == 0 {
		t.Fatal("expected export rows after a completed attempt")
	}
	if rows[0].PathType != PathTypeGuide {
		t.Errorf("first row type = %q, want guide", rows[0].PathType)
	}

	all := e.AllExportRows()
	for _, row := range all {
		if row.Task != "straight_1" {
			t.Errorf("unexpected task %q in session rows", row.Task)
		}
	}
}
