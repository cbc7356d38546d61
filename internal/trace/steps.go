package trace

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/motion.report/internal/config"
	"github.com/banshee-data/motion.report/internal/geom"
	"github.com/banshee-data/motion.report/internal/pose"
)

// Step identifies one exercise variant in the fixed session ordering.
type Step int

const (
	Straight1 Step = iota
	Straight2
	Straight3
	Straight4
	ZigzagBeginner
	ZigzagAdvanced

	NumSteps int = iota
)

var stepNames = [NumSteps]string{
	"straight_1",
	"straight_2",
	"straight_3",
	"straight_4",
	"zigzag_beginner",
	"zigzag_advanced",
}

// String returns the step's stable task name, used in exports and the API.
func (s Step) String() string {
	if s < 0 || int(s) >= NumSteps {
		return "unknown"
	}
	return stepNames[s]
}

// Valid reports whether s names a real step.
func (s Step) Valid() bool {
	return s >= 0 && int(s) < NumSteps
}

// PathKind distinguishes the two guide path shapes.
type PathKind string

const (
	PathStraight PathKind = "straight"
	PathZigzag   PathKind = "zigzag"
)

// StepSpec describes one exercise step: its path shape, the direction of
// its end point in the observer's orientation frame, and zig-zag
// parameters where applicable. Specs are immutable once built; per-step
// dispatch is a lookup into the spec table, never a switch.
type StepSpec struct {
	Step Step
	Name string
	Kind PathKind

	// Direction holds coefficients (right, up, forward) in the
	// observer's orientation frame; the end point is placed at
	// start + length * (right*X + up*Y + forward*Z), normalised.
	Direction r3.Vec

	// Zig-zag parameters; zero for straight steps.
	Amplitude float64
	Frequency float64
}

// BuildStepSpecs returns the indexed step table for the session, with
// zig-zag parameters taken from the tuning config.
func BuildStepSpecs(cfg *config.TuningConfig) [NumSteps]StepSpec {
	return [NumSteps]StepSpec{
		Straight1: {Step: Straight1, Name: Straight1.String(), Kind: PathStraight, Direction: r3.Vec{X: 1}},
		Straight2: {Step: Straight2, Name: Straight2.String(), Kind: PathStraight, Direction: r3.Vec{X: -1}},
		Straight3: {Step: Straight3, Name: Straight3.String(), Kind: PathStraight, Direction: r3.Vec{Y: 1}},
		Straight4: {Step: Straight4, Name: Straight4.String(), Kind: PathStraight, Direction: r3.Vec{Y: -1}},
		ZigzagBeginner: {
			Step: ZigzagBeginner, Name: ZigzagBeginner.String(), Kind: PathZigzag,
			Direction: r3.Vec{X: 1},
			Amplitude: cfg.GetZigzagBeginnerAmplitude(),
			Frequency: cfg.GetZigzagBeginnerFrequency(),
		},
		ZigzagAdvanced: {
			Step: ZigzagAdvanced, Name: ZigzagAdvanced.String(), Kind: PathZigzag,
			Direction: r3.Vec{X: 1},
			Amplitude: cfg.GetZigzagAdvancedAmplitude(),
			Frequency: cfg.GetZigzagAdvancedFrequency(),
		},
	}
}

// Endpoints is a step's frozen start/end pair. Once Set on a step's first
// attempt, the same vectors are reused for every remaining attempt of that
// step so repeated trials target an identical path.
type Endpoints struct {
	Step  Step
	Start r3.Vec
	End   r3.Vec
	Set   bool
}

// worldUp matches the geometry engine's up reference for building the
// observer orientation frame.
var worldUp = r3.Vec{X: 0, Y: 0, Z: 1}

// ComputeEnd places a step's end point at the configured path length from
// start, along the spec's direction expressed in the observer's
// orientation frame. A degenerate observer forward falls back to +X so the
// frame never collapses.
func ComputeEnd(start r3.Vec, obs pose.Observer, spec StepSpec, length float64) r3.Vec {
	forward := obs.Forward
	if r3.Norm(forward) == 0 {
		forward = r3.Vec{X: 1}
	}
	forward = r3.Unit(forward)

	up := worldUp
	if math.Abs(r3.Dot(forward, up)) > 0.99 {
		up = r3.Vec{X: 1}
	}
	right := r3.Unit(r3.Cross(forward, up))
	up = r3.Unit(r3.Cross(right, forward))

	dir := r3.Add(
		r3.Add(r3.Scale(spec.Direction.X, right), r3.Scale(spec.Direction.Y, up)),
		r3.Scale(spec.Direction.Z, forward),
	)
	if r3.Norm(dir) == 0 {
		dir = right
	}
	return r3.Add(start, r3.Scale(length, r3.Unit(dir)))
}

// GuidePath generates the ideal point sequence for a step's frozen
// endpoints.
func GuidePath(spec StepSpec, ep Endpoints, spacing float64, maxPoints int) []r3.Vec {
	if spec.Kind == PathZigzag {
		return geom.GenerateZigzagPath(ep.Start, ep.End, spec.Amplitude, spec.Frequency, spacing, maxPoints)
	}
	return geom.GenerateStraightPath(ep.Start, ep.End, spacing, maxPoints)
}
