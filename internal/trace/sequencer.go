package trace

import "sync"

// Sequencer is the authoritative cursor of session progress: the active
// step and the attempt number within it. Exactly one step is active at a
// time; attempt numbers run 1..attemptsPerStep.
type Sequencer struct {
	mu              sync.Mutex
	step            Step
	attempt         int
	attemptsPerStep int
	complete        bool
}

// NewSequencer returns a sequencer positioned at the first step, first
// attempt.
func NewSequencer(attemptsPerStep int) *Sequencer {
	if attemptsPerStep < 1 {
		attemptsPerStep = 1
	}
	return &Sequencer{step: Straight1, attempt: 1, attemptsPerStep: attemptsPerStep}
}

// Current returns the active step and attempt number.
func (s *Sequencer) Current() (Step, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step, s.attempt
}

// SessionComplete reports whether every step's quota has been completed.
func (s *Sequencer) SessionComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.complete
}

// AdvanceAttempt moves the cursor past a completed attempt: increments the
// attempt number, or at the quota rolls over to the next step with the
// counter reset to 1. At the last step it sets the session-complete flag
// instead. Returns true when the active step changed.
func (s *Sequencer) AdvanceAttempt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.complete {
		return false
	}
	if s.attempt < s.attemptsPerStep {
		s.attempt++
		return false
	}
	return s.advanceStepLocked()
}

// NextStep skips the remainder of the active step and moves to the next
// one. Terminal at the last step, where it marks the session complete.
// Returns true when the active step changed.
func (s *Sequencer) NextStep() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.complete {
		return false
	}
	return s.advanceStepLocked()
}

func (s *Sequencer) advanceStepLocked() bool {
	if int(s.step) >= NumSteps-1 {
		s.complete = true
		return false
	}
	s.step++
	s.attempt = 1
	return true
}

// Reset returns the cursor to the first step, first attempt.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step = Straight1
	s.attempt = 1
	s.complete = false
}
