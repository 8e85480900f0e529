package workflow

import (
	"errors"
	"testing"
)

func stateWithAttempts(attempts []GenerationAttempt, scores map[int]int) *State {
	s := NewState(testRequest())
	s.Attempts = attempts
	for n, score := range scores {
		s.Assessments[n] = QualityAssessment{OverallScore: score}
	}
	return s
}

func TestSelector_PicksHighestScore(t *testing.T) {
	s := stateWithAttempts([]GenerationAttempt{
		{Number: 1, Status: AttemptSuccess},
		{Number: 2, Status: AttemptSuccess},
		{Number: 3, Status: AttemptSuccess},
	}, map[int]int{1: 7, 2: 9, 3: 6})

	got, err := NewBestAttemptSelector().Select(s)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if got != 2 {
		t.Fatalf("Select() = %d, want 2", got)
	}
}

func TestSelector_TieBreaksTowardLaterAttempt(t *testing.T) {
	s := stateWithAttempts([]GenerationAttempt{
		{Number: 1, Status: AttemptSuccess},
		{Number: 2, Status: AttemptSuccess},
		{Number: 3, Status: AttemptSuccess},
	}, map[int]int{1: 6, 2: 6, 3: 6})

	got, err := NewBestAttemptSelector().Select(s)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if got != 3 {
		t.Fatalf("Select() = %d, want 3 (later attempt wins ties)", got)
	}
}

func TestSelector_SkipsFailedAttempts(t *testing.T) {
	s := stateWithAttempts([]GenerationAttempt{
		{Number: 1, Status: AttemptSuccess},
		{Number: 2, Status: AttemptFailed},
		{Number: 3, Status: AttemptFailed},
	}, map[int]int{1: 4})

	got, err := NewBestAttemptSelector().Select(s)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if got != 1 {
		t.Fatalf("Select() = %d, want 1", got)
	}
}

func TestSelector_NoSuccessfulAttempts(t *testing.T) {
	s := stateWithAttempts([]GenerationAttempt{
		{Number: 1, Status: AttemptFailed},
		{Number: 2, Status: AttemptFailed},
	}, nil)

	_, err := NewBestAttemptSelector().Select(s)
	if !errors.Is(err, ErrNoSuccessfulAttempt) {
		t.Fatalf("Select() error = %v, want ErrNoSuccessfulAttempt", err)
	}
}

// A successful attempt without a recorded assessment competes with the
// neutral score rather than being dropped.
func TestSelector_MissingAssessmentUsesNeutralScore(t *testing.T) {
	s := stateWithAttempts([]GenerationAttempt{
		{Number: 1, Status: AttemptSuccess},
		{Number: 2, Status: AttemptSuccess},
	}, map[int]int{1: 4})

	got, err := NewBestAttemptSelector().Select(s)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if got != 2 {
		t.Fatalf("Select() = %d, want 2 (neutral 5 beats 4)", got)
	}
}
