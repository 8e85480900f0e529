// Package workflow implements the generation-quality loop: prompt
// validation, bounded story generation with feedback-driven regeneration,
// automated quality scoring, and best-attempt selection.
package workflow

import (
	"time"

	"github.com/google/uuid"
)

// StoryType discriminates the narrative template a request targets.
type StoryType string

const (
	StoryTypeChild    StoryType = "child"
	StoryTypeHero     StoryType = "hero"
	StoryTypeCombined StoryType = "combined"
)

// Request is the immutable input to one workflow invocation.
type Request struct {
	Prompt       string    `json:"prompt"`
	Language     string    `json:"language"`
	StoryType    StoryType `json:"story_type"`
	ChildContext string    `json:"child_context,omitempty"`
	HeroContext  string    `json:"hero_context,omitempty"`
	Moral        string    `json:"moral,omitempty"`
	TargetWords  int       `json:"target_words,omitempty"`
}

// Recommendation is the validator's verdict.
type Recommendation string

const (
	RecommendationApproved Recommendation = "approved"
	RecommendationRejected Recommendation = "rejected"
)

// ValidationResult is the outcome of prompt validation.
type ValidationResult struct {
	IsSafe                bool           `json:"is_safe"`
	HasLicensedCharacters bool           `json:"has_licensed_characters"`
	IsAgeAppropriate      bool           `json:"is_age_appropriate"`
	Issues                []string       `json:"issues"`
	Recommendation        Recommendation `json:"recommendation"`
}

// Normalize derives the recommendation from the three boolean checks.
// Approved iff safe, no licensed characters, and age appropriate.
func (v *ValidationResult) Normalize() {
	if v.IsSafe && !v.HasLicensedCharacters && v.IsAgeAppropriate {
		v.Recommendation = RecommendationApproved
	} else {
		v.Recommendation = RecommendationRejected
	}
}

// AttemptStatus is the lifecycle state of one generation attempt.
type AttemptStatus string

const (
	AttemptPending AttemptStatus = "pending"
	AttemptSuccess AttemptStatus = "success"
	AttemptFailed  AttemptStatus = "failed"
)

// GenerationParameters are the per-attempt knobs chosen by the schedule.
type GenerationParameters struct {
	Temperature float64 `json:"temperature"`
	Feedback    string  `json:"feedback,omitempty"`
}

// GenerationAttempt is one generate cycle's output. Immutable once its
// status leaves pending.
type GenerationAttempt struct {
	Number      int                  `json:"number"` // 1-based, strictly increasing
	Parameters  GenerationParameters `json:"parameters"`
	Content     string               `json:"content,omitempty"`
	Status      AttemptStatus        `json:"status"`
	Error       string               `json:"error,omitempty"`
	StartedAt   time.Time            `json:"started_at"`
	CompletedAt time.Time            `json:"completed_at"`
}

// Assessment criteria names, in rubric order.
const (
	CriterionAgeAppropriateness   = "age_appropriateness"
	CriterionMoralClarity         = "moral_clarity"
	CriterionNarrativeCoherence   = "narrative_coherence"
	CriterionCharacterConsistency = "character_consistency"
	CriterionEngagement           = "engagement"
	CriterionLanguageQuality      = "language_quality"
	CriterionLengthCompliance     = "length_compliance"
)

// NeutralScore is assigned when the scoring capability fails or returns a
// malformed result. Neutral and below the acceptance threshold, so the
// loop always has a comparable score per attempt.
const NeutralScore = 5

// QualityAssessment rates a successful attempt against weighted criteria.
// Sub-scores are integers in [1,10].
type QualityAssessment struct {
	AgeAppropriateness   int    `json:"age_appropriateness"`
	MoralClarity         int    `json:"moral_clarity"`
	NarrativeCoherence   int    `json:"narrative_coherence"`
	CharacterConsistency int    `json:"character_consistency"`
	Engagement           int    `json:"engagement"`
	LanguageQuality      int    `json:"language_quality"`
	LengthCompliance     int    `json:"length_compliance"`
	OverallScore         int    `json:"overall_score"`
	Feedback             string `json:"feedback"`
}

// SubScores returns the seven sub-scores keyed by criterion name.
func (q QualityAssessment) SubScores() map[string]int {
	return map[string]int{
		CriterionAgeAppropriateness:   q.AgeAppropriateness,
		CriterionMoralClarity:         q.MoralClarity,
		CriterionNarrativeCoherence:   q.NarrativeCoherence,
		CriterionCharacterConsistency: q.CharacterConsistency,
		CriterionEngagement:           q.Engagement,
		CriterionLanguageQuality:      q.LanguageQuality,
		CriterionLengthCompliance:     q.LengthCompliance,
	}
}

// NeutralAssessment returns the fallback assessment used when scoring
// fails: every sub-score neutral, overall neutral.
func NeutralAssessment(reason string) QualityAssessment {
	return QualityAssessment{
		AgeAppropriateness:   NeutralScore,
		MoralClarity:         NeutralScore,
		NarrativeCoherence:   NeutralScore,
		CharacterConsistency: NeutralScore,
		Engagement:           NeutralScore,
		LanguageQuality:      NeutralScore,
		LengthCompliance:     NeutralScore,
		OverallScore:         NeutralScore,
		Feedback:             reason,
	}
}

// Status is the workflow lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusValidating Status = "validating"
	StatusGenerating Status = "generating"
	StatusAssessing  Status = "assessing"
	StatusRejected   Status = "rejected"
	StatusFailed     Status = "failed"
	StatusSuccess    Status = "success"
)

// IsTerminal reports whether no further transition occurs from s.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusFailed || s == StatusSuccess
}

// Transition records one state change for observability.
type Transition struct {
	From   Status    `json:"from"`
	To     Status    `json:"to"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// State is the aggregate root for one workflow invocation. It is owned
// exclusively by the engine running the request and is never shared
// across concurrent requests.
type State struct {
	ID              string                    `json:"id"`
	Request         Request                   `json:"request"`
	Status          Status                    `json:"status"`
	Validation      *ValidationResult         `json:"validation,omitempty"`
	Attempts        []GenerationAttempt       `json:"attempts"`
	Assessments     map[int]QualityAssessment `json:"assessments"`
	SelectedAttempt *int                      `json:"selected_attempt,omitempty"`
	History         []Transition              `json:"history"`
	CreatedAt       time.Time                 `json:"created_at"`
}

// NewState creates the request-scoped aggregate for one invocation.
func NewState(req Request) *State {
	return &State{
		ID:          uuid.NewString(),
		Request:     req,
		Status:      StatusPending,
		Attempts:    make([]GenerationAttempt, 0),
		Assessments: make(map[int]QualityAssessment),
		History:     make([]Transition, 0),
		CreatedAt:   time.Now(),
	}
}

// advance records a state transition. Only engine handlers call this.
func (s *State) advance(to Status, reason string) {
	s.History = append(s.History, Transition{
		From:   s.Status,
		To:     to,
		Reason: reason,
		At:     time.Now(),
	})
	s.Status = to
}

// SuccessfulAttempts returns the attempts that produced content, in
// attempt order.
func (s *State) SuccessfulAttempts() []GenerationAttempt {
	out := make([]GenerationAttempt, 0, len(s.Attempts))
	for _, a := range s.Attempts {
		if a.Status == AttemptSuccess {
			out = append(out, a)
		}
	}
	return out
}

// QualityMetadata is the score transparency block attached to successful
// results.
type QualityMetadata struct {
	SelectedAttempt int               `json:"selected_attempt"`
	AttemptCount    int               `json:"attempt_count"`
	AttemptScores   map[int]int       `json:"attempt_scores"`
	Assessment      QualityAssessment `json:"assessment"`
}

// Result is the terminal outcome exposed to the persistence collaborator.
// Intermediate attempt state stays inside the engine.
type Result struct {
	ID               string           `json:"id"`
	Request          Request          `json:"request"`
	Status           Status           `json:"status"` // success, rejected, or failed
	SelectedContent  string           `json:"selected_content,omitempty"`
	Quality          *QualityMetadata `json:"quality,omitempty"`
	RejectionReasons []string         `json:"rejection_reasons,omitempty"`
	Message          string           `json:"message,omitempty"`
	CompletedAt      time.Time        `json:"completed_at"`
}
