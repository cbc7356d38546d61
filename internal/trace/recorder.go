package trace

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/motion.report/internal/geom"
)

// TraceAttempt is one completed trace from stabilised start to confirmed
// finish. Immutable after creation; owned by the Recorder.
type TraceAttempt struct {
	Step          Step
	AttemptNumber int
	Timestamp     time.Time

	Points    []TracePoint
	Endpoints Endpoints

	TotalLength      float64
	MaxDeviation     float64
	AverageDeviation float64
}

// Duration returns the elapsed seconds of the last recorded point.
func (a *TraceAttempt) Duration() float64 {
	if len(a.Points) == 0 {
		return 0
	}
	return a.Points[len(a.Points)-1].Elapsed
}

// Recorder owns the per-step collections of completed attempts and
// computes per-attempt metrics. Attempts are appended in completion order
// and never deleted within a session. Safe for concurrent reads.
type Recorder struct {
	mu              sync.RWMutex
	attemptsPerStep int
	attempts        [NumSteps][]*TraceAttempt
}

// NewRecorder returns a Recorder requiring attemptsPerStep completed
// attempts before a step counts as complete.
func NewRecorder(attemptsPerStep int) *Recorder {
	return &Recorder{attemptsPerStep: attemptsPerStep}
}

// Record finalises an attempt: computes its metrics against the straight
// chord between the frozen endpoints, appends it to the step's list, and
// returns the attempt along with the step's updated count. The points
// slice is copied; the caller's buffer may be reused.
func (r *Recorder) Record(step Step, attemptNumber int, points []TracePoint, ep Endpoints, at time.Time) (*TraceAttempt, int) {
	copied := make([]TracePoint, len(points))
	copy(copied, points)

	attempt := &TraceAttempt{
		Step:          step,
		AttemptNumber: attemptNumber,
		Timestamp:     at,
		Points:        copied,
		Endpoints:     ep,
	}
	attempt.TotalLength = traceLength(copied)
	attempt.MaxDeviation, attempt.AverageDeviation = chordDeviation(copied, ep)

	r.mu.Lock()
	r.attempts[step] = append(r.attempts[step], attempt)
	count := len(r.attempts[step])
	r.mu.Unlock()

	return attempt, count
}

// traceLength sums the Euclidean distances between consecutive points.
func traceLength(points []TracePoint) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += geom.Dist(points[i-1].Position, points[i].Position)
	}
	return total
}

// chordDeviation returns the max and mean point-to-segment distance from
// each trace point to the straight start-end chord. The chord is used for
// zig-zag steps as well; deviation there reads as amplitude reached, not
// error against the ideal curve.
func chordDeviation(points []TracePoint, ep Endpoints) (max, avg float64) {
	if len(points) == 0 {
		return 0, 0
	}
	devs := make([]float64, len(points))
	for i, p := range points {
		d := geom.PointToSegmentDistance(p.Position, ep.Start, ep.End)
		devs[i] = d
		if d > max {
			max = d
		}
	}
	return max, stat.Mean(devs, nil)
}

// Count returns the number of completed attempts for a step.
func (r *Recorder) Count(step Step) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.attempts[step])
}

// Counts returns the completed attempt count for every step.
func (r *Recorder) Counts() [NumSteps]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var counts [NumSteps]int
	for i := range r.attempts {
		counts[i] = len(r.attempts[i])
	}
	return counts
}

// IsStepComplete reports whether a step has its full quota of attempts.
func (r *Recorder) IsStepComplete(step Step) bool {
	return r.Count(step) >= r.attemptsPerStep
}

// Attempts returns the step's completed attempts in completion order.
// The returned slice is a copy; the attempts themselves are immutable.
func (r *Recorder) Attempts(step Step) []*TraceAttempt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*TraceAttempt, len(r.attempts[step]))
	copy(out, r.attempts[step])
	return out
}

// ExportRow is one flattened record of the tabular export: guide rows
// carry the ideal path for a step's frozen endpoints, user rows carry
// recorded trace points. Guide rows precede user rows per step.
type ExportRow struct {
	Task          string
	PathType      string // "guide" or "user"
	AttemptNumber int    // 0 for guide rows
	PointIdx      int
	Elapsed       float64 // seconds; unused for guide rows
	X, Y, Z       float64
}

// Export path_type values.
const (
	PathTypeGuide = "guide"
	PathTypeUser  = "user"
)

// ExportRows flattens one step into export rows: the guide path first,
// then every attempt's user points in attempt order.
func (r *Recorder) ExportRows(spec StepSpec, ep Endpoints, spacing float64, maxPoints int) []ExportRow {
	var rows []ExportRow

	if ep.Set {
		for i, p := range GuidePath(spec, ep, spacing, maxPoints) {
			rows = append(rows, ExportRow{
				Task:     spec.Name,
				PathType: PathTypeGuide,
				PointIdx: i,
				X:        p.X, Y: p.Y, Z: p.Z,
			})
		}
	}

	for _, attempt := range r.Attempts(spec.Step) {
		for i, p := range attempt.Points {
			rows = append(rows, ExportRow{
				Task:          spec.Name,
				PathType:      PathTypeUser,
				AttemptNumber: attempt.AttemptNumber,
				PointIdx:      i,
				Elapsed:       p.Elapsed,
				X:             p.Position.X, Y: p.Position.Y, Z: p.Position.Z,
			})
		}
	}
	return rows
}

// endpointsForStep digs the frozen endpoints for a step out of its
// recorded attempts, for exports requested after the session moved on.
func (r *Recorder) endpointsForStep(step Step) (Endpoints, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.attempts[step]) == 0 {
		return Endpoints{}, false
	}
	return r.attempts[step][0].Endpoints, true
}
