package workflow

import (
	"errors"
)

// ErrNoSuccessfulAttempt is returned when selection runs with zero
// successful attempts; the workflow then terminates in failed, not
// success.
var ErrNoSuccessfulAttempt = errors.New("no successful attempt to select")

// BestAttemptSelector picks the winning attempt once the loop terminates.
type BestAttemptSelector struct{}

// NewBestAttemptSelector creates a selector.
func NewBestAttemptSelector() *BestAttemptSelector {
	return &BestAttemptSelector{}
}

// Select returns the attempt number with the maximum overall score among
// successful attempts. Ties prefer the higher attempt number: later
// attempts incorporated feedback and are assumed non-regressive (a policy
// choice, not a proven property).
func (s *BestAttemptSelector) Select(state *State) (int, error) {
	best := -1
	bestScore := -1

	for _, a := range state.Attempts {
		if a.Status != AttemptSuccess {
			continue
		}
		score := NeutralScore
		if assessment, ok := state.Assessments[a.Number]; ok {
			score = assessment.OverallScore
		}
		// >= implements the later-attempt tie-break: attempts are in
		// ascending number order.
		if score >= bestScore {
			best = a.Number
			bestScore = score
		}
	}

	if best < 0 {
		return 0, ErrNoSuccessfulAttempt
	}
	return best, nil
}
