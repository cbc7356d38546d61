package trace

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// Snapshot is the immutable session state published to observers (the
// HTTP API, charts, logs) whenever the engine's state changes. The engine
// is the sole writer; consumers only ever see complete values, never
// in-between mutation.
type Snapshot struct {
	SessionID string `json:"session_id"`

	Step          Step   `json:"step"`
	StepName      string `json:"step_name"`
	AttemptNumber int    `json:"attempt_number"`

	Phase       Phase   `json:"phase"`
	Locked      bool    `json:"locked"`
	Countdown   int     `json:"countdown"`
	MoveForward bool    `json:"move_forward"`
	Reveal      float64 `json:"reveal_progress"`

	// GuideVisible carries the first-contact policy: guides hide on
	// tracked-point loss before the session's first completed attempt,
	// and stay visible on retries.
	GuideVisible bool `json:"guide_visible"`

	EndpointsSet bool   `json:"endpoints_set"`
	Start        r3.Vec `json:"start"`
	End          r3.Vec `json:"end"`

	AttemptCounts   [NumSteps]int `json:"attempt_counts"`
	SessionComplete bool          `json:"session_complete"`

	UpdatedAt time.Time `json:"updated_at"`
}
