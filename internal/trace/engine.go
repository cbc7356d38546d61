package trace

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/motion.report/internal/config"
	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/pose"
	"github.com/banshee-data/motion.report/internal/timeutil"
)

// EngineConfig collects everything the engine needs from tuning.
type EngineConfig struct {
	Lifecycle LifecycleConfig

	PointSpacing    float64
	MaxPathPoints   int
	StepPathLength  float64
	AttemptsPerStep int

	// SampleTimeout is the wall-clock gap after which the tracked point
	// counts as lost.
	SampleTimeout time.Duration

	// ExportDir receives per-step and session CSV files when non-empty.
	ExportDir string
}

// EngineConfigFromTuning maps the tuning file onto an EngineConfig.
func EngineConfigFromTuning(cfg *config.TuningConfig) EngineConfig {
	stability := StabilityConfig{
		MovementTolerance: cfg.GetMovementTolerance(),
		RequiredHold:      cfg.GetRequiredHoldDuration().Seconds(),
		SampleTimeout:     cfg.GetSampleTimeout().Seconds(),
	}
	post := stability
	post.InitialGrace = cfg.GetInitialGraceDuration().Seconds()

	return EngineConfig{
		Lifecycle: LifecycleConfig{
			ProximityThreshold: cfg.GetProximityThreshold(),
			ForwardMinDistance: cfg.GetForwardMinDistance(),
			RevealDuration:     cfg.GetRevealDuration().Seconds(),
			MinRecordSpacing:   cfg.GetMinRecordSpacing(),
			PreStability:       stability,
			PostStability:      post,
		},
		PointSpacing:    cfg.GetPointSpacing(),
		MaxPathPoints:   cfg.GetMaxPathPoints(),
		StepPathLength:  cfg.GetStepPathLength(),
		AttemptsPerStep: cfg.GetAttemptsPerStep(),
		SampleTimeout:   cfg.GetSampleTimeout(),
	}
}

// AttemptSink receives completed attempts for persistence. Failures are
// logged and never block the interactive flow.
type AttemptSink interface {
	SaveAttempt(sessionID string, attempt *TraceAttempt) error
}

type controlKind int

const (
	ctrlForceStart controlKind = iota
	ctrlForceStop
	ctrlReset
	ctrlNextStep
)

// Engine wires the pose feed through the lifecycle, recorder, and
// sequencer. All state transitions happen on the single Run goroutine;
// each incoming sample is processed to completion before the next (the
// control surface and snapshot reads are channel/copy based).
type Engine struct {
	cfg   EngineConfig
	specs [NumSteps]StepSpec

	source pose.Source
	clock  timeutil.Clock
	sink   AttemptSink

	lifecycle *Lifecycle
	recorder  *Recorder
	sequencer *Sequencer

	sessionID string
	endpoints Endpoints

	guideVisible   bool
	lastSampleWall time.Time
	haveSample     bool
	lastPos        r3.Vec
	lastTS         float64

	controls chan controlKind

	snapMu sync.RWMutex
	snap   Snapshot
}

// NewEngine builds an engine over the given pose source. The source is
// wrapped with observer-pose caching; sink may be nil.
func NewEngine(cfg EngineConfig, tuning *config.TuningConfig, source pose.Source, clock timeutil.Clock, sink AttemptSink) *Engine {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	e := &Engine{
		cfg:       cfg,
		specs:     BuildStepSpecs(tuning),
		source:    pose.NewObserverCache(source),
		clock:     clock,
		sink:      sink,
		lifecycle: NewLifecycle(cfg.Lifecycle),
		recorder:  NewRecorder(cfg.AttemptsPerStep),
		sequencer: NewSequencer(cfg.AttemptsPerStep),
		sessionID: uuid.NewString(),
		controls:  make(chan controlKind, 8),
	}
	e.publish()
	return e
}

// SessionID returns the engine's session identifier.
func (e *Engine) SessionID() string { return e.sessionID }

// Recorder exposes the attempt recorder for read-only consumers (exports,
// charts).
func (e *Engine) Recorder() *Recorder { return e.recorder }

// StepSpec returns the spec for a step.
func (e *Engine) StepSpec(step Step) StepSpec { return e.specs[step] }

// Run processes samples, controls, and gap-detection ticks until the
// context is cancelled or the sample feed closes.
func (e *Engine) Run(ctx context.Context) error {
	interval := e.cfg.SampleTimeout / 2
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := e.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-e.source.Samples():
			if !ok {
				monitoring.Logf("trace: pose feed closed, stopping engine")
				return nil
			}
			e.processSample(s)
		case c := <-e.controls:
			e.handleControl(c)
		case <-ticker.C():
			e.checkGap()
		}
		e.publish()
	}
}

func (e *Engine) processSample(s pose.Sample) {
	e.lastSampleWall = e.clock.Now()
	e.haveSample = true
	e.lastPos = s.Position
	e.lastTS = s.Timestamp

	step, _ := e.sequencer.Current()

	// Frozen endpoints from a previous step are stale state, never an
	// error: correct defensively and move on.
	if e.endpoints.Set && e.endpoints.Step != step {
		monitoring.Logf("trace: dropping stale endpoints for %s while on %s", e.endpoints.Step, step)
		e.endpoints = Endpoints{}
	}

	obs, haveObs := e.source.Observer()
	tr := e.lifecycle.Observe(s, obs, haveObs)
	e.applyTransition(tr, obs, haveObs)
}

func (e *Engine) applyTransition(tr Transition, obs pose.Observer, haveObs bool) {
	step, attemptNum := e.sequencer.Current()

	if tr.Stabilized {
		e.guideVisible = true
		if !e.endpoints.Set {
			// First attempt of the step: freeze the endpoints every
			// later attempt will reuse.
			end := ComputeEnd(tr.StablePos, obs, e.specs[step], e.cfg.StepPathLength)
			e.endpoints = Endpoints{Step: step, Start: tr.StablePos, End: end, Set: true}
			monitoring.Logf("trace: froze endpoints for %s attempt %d", step, attemptNum)
		}
	}

	if tr.Completed {
		e.finalizeAttempt(step, attemptNum)
	}
}

func (e *Engine) finalizeAttempt(step Step, attemptNum int) {
	attempt, count := e.recorder.Record(step, attemptNum, e.lifecycle.Points(), e.endpoints, e.clock.Now())
	monitoring.Logf("trace: %s attempt %d complete: %d points, length %.3fm, max dev %.3fm",
		step, attemptNum, len(attempt.Points), attempt.TotalLength, attempt.MaxDeviation)

	if e.sink != nil {
		if err := e.sink.SaveAttempt(e.sessionID, attempt); err != nil {
			monitoring.Logf("trace: persisting attempt failed (continuing): %v", err)
		}
	}

	if e.recorder.IsStepComplete(step) && e.cfg.ExportDir != "" {
		rows := e.recorder.ExportRows(e.specs[step], e.endpoints, e.cfg.PointSpacing, e.cfg.MaxPathPoints)
		if path, err := ExportStepFile(e.cfg.ExportDir, step, rows, e.clock.Now()); err != nil {
			monitoring.Logf("trace: step export failed (continuing): %v", err)
		} else {
			monitoring.Logf("trace: exported %s (%d attempts) to %s", step, count, path)
		}
	}

	stepChanged := e.sequencer.AdvanceAttempt()
	e.lifecycle.Reset()
	if stepChanged {
		e.endpoints = Endpoints{}
	}

	if e.sequencer.SessionComplete() && e.cfg.ExportDir != "" {
		if path, err := ExportSessionFile(e.cfg.ExportDir, e.sessionID, e.AllExportRows(), e.clock.Now()); err != nil {
			monitoring.Logf("trace: session export failed (continuing): %v", err)
		} else {
			monitoring.Logf("trace: session complete, exported %s", path)
		}
	}
}

func (e *Engine) handleControl(c controlKind) {
	switch c {
	case ctrlForceStart:
		tr := e.lifecycle.ForceStart(e.lastPos, e.lastTS)
		obs, haveObs := e.source.Observer()
		e.applyTransition(tr, obs, haveObs)
	case ctrlForceStop:
		obs, haveObs := e.source.Observer()
		e.applyTransition(e.lifecycle.ForceStop(), obs, haveObs)
	case ctrlReset:
		e.lifecycle.Reset()
		e.guideVisible = false
	case ctrlNextStep:
		stepChanged := e.sequencer.NextStep()
		e.lifecycle.Reset()
		if stepChanged {
			e.endpoints = Endpoints{}
		}
	}
}

// checkGap detects loss of the tracked point by wall-clock silence on the
// sample feed. Pre-trace state reverts to Idle; on the session's very
// first attempt the guide hides as well, while retries keep it visible.
func (e *Engine) checkGap() {
	if !e.haveSample {
		return
	}
	if e.clock.Since(e.lastSampleWall) <= e.cfg.SampleTimeout {
		return
	}
	e.haveSample = false
	e.lifecycle.HandleGap()

	firstContact := true
	for _, n := range e.recorder.Counts() {
		if n > 0 {
			firstContact = false
			break
		}
	}
	if firstContact {
		e.guideVisible = false
	}
	monitoring.Debugf("trace: tracked point lost (first contact: %v)", firstContact)
}

// ForceStart bypasses proximity and pre-settling for the active attempt.
func (e *Engine) ForceStart() { e.control(ctrlForceStart) }

// ForceStop bypasses post-trace settling and completes the active attempt.
func (e *Engine) ForceStop() { e.control(ctrlForceStop) }

// ResetVisualizations resets the in-flight attempt and hides guides.
func (e *Engine) ResetVisualizations() { e.control(ctrlReset) }

// NextStep abandons the active step and moves to the next one.
func (e *Engine) NextStep() { e.control(ctrlNextStep) }

func (e *Engine) control(c controlKind) {
	select {
	case e.controls <- c:
	default:
		monitoring.Logf("trace: control queue full, dropping control %d", c)
	}
}

// Snapshot returns the most recently published session snapshot.
func (e *Engine) Snapshot() Snapshot {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snap
}

func (e *Engine) publish() {
	step, attemptNum := e.sequencer.Current()

	snap := Snapshot{
		SessionID:       e.sessionID,
		Step:            step,
		StepName:        step.String(),
		AttemptNumber:   attemptNum,
		Phase:           e.lifecycle.Phase(),
		Locked:          e.lifecycle.Locked(),
		Countdown:       e.lifecycle.Countdown(),
		MoveForward:     e.lifecycle.MoveForward(),
		Reveal:          e.lifecycle.RevealProgress(),
		GuideVisible:    e.guideVisible,
		EndpointsSet:    e.endpoints.Set,
		Start:           e.endpoints.Start,
		End:             e.endpoints.End,
		AttemptCounts:   e.recorder.Counts(),
		SessionComplete: e.sequencer.SessionComplete(),
		UpdatedAt:       e.clock.Now(),
	}

	e.snapMu.Lock()
	e.snap = snap
	e.snapMu.Unlock()
}

// StepExportRows returns the export rows for one step, using the
// endpoints recorded with its attempts. A step with no completed attempts
// yields no rows. Safe to call from any goroutine.
func (e *Engine) StepExportRows(step Step) []ExportRow {
	ep, ok := e.recorder.endpointsForStep(step)
	if !ok {
		return nil
	}
	return e.recorder.ExportRows(e.specs[step], ep, e.cfg.PointSpacing, e.cfg.MaxPathPoints)
}

// AllExportRows returns the cumulative export rows for every step with
// recorded attempts, in step order.
func (e *Engine) AllExportRows() []ExportRow {
	var rows []ExportRow
	for step := Step(0); int(step) < NumSteps; step++ {
		rows = append(rows, e.StepExportRows(step)...)
	}
	return rows
}
