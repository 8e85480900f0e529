package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"storyforge/internal/logging"
)

// AttemptCoordinator decides per-attempt generation parameters and drives
// one generate+assess cycle. Parameters follow a fixed schedule: explore
// on the second attempt, converge on the third, with feedback growing more
// specific each round.
type AttemptCoordinator struct {
	generator      *ContentGenerator
	assessor       *QualityAssessor
	attemptTimeout time.Duration
}

// NewAttemptCoordinator creates a coordinator. attemptTimeout bounds each
// generation call.
func NewAttemptCoordinator(generator *ContentGenerator, assessor *QualityAssessor, attemptTimeout time.Duration) *AttemptCoordinator {
	if attemptTimeout <= 0 {
		attemptTimeout = 30 * time.Second
	}
	return &AttemptCoordinator{
		generator:      generator,
		assessor:       assessor,
		attemptTimeout: attemptTimeout,
	}
}

// weakCriterionCutoff marks sub-scores worth calling out in feedback.
const weakCriterionCutoff = 7

// weaknessSummary names the weak sub-scores of one assessment, appending
// the assessor's free-text feedback.
func weaknessSummary(a QualityAssessment) string {
	type weak struct {
		name  string
		score int
	}
	var weaks []weak
	for name, score := range a.SubScores() {
		if score < weakCriterionCutoff {
			weaks = append(weaks, weak{name, score})
		}
	}
	sort.Slice(weaks, func(i, j int) bool {
		if weaks[i].score != weaks[j].score {
			return weaks[i].score < weaks[j].score
		}
		return weaks[i].name < weaks[j].name
	})

	var sb strings.Builder
	if len(weaks) > 0 {
		sb.WriteString("Weak criteria: ")
		for i, w := range weaks {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s (%d/10)", strings.ReplaceAll(w.name, "_", " "), w.score)
		}
		sb.WriteString(".")
	}
	if a.Feedback != "" {
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(a.Feedback)
	}
	return sb.String()
}

// ParametersFor returns the schedule entry for the given attempt number,
// injecting feedback derived from the state's prior assessments.
//
// Attempt 1 explores at the default temperature with no feedback.
// Attempt 2 raises temperature and feeds back the first attempt's weak
// criteria. Attempt 3 and beyond lower temperature below the default and
// feed back the cumulative weaknesses with a conservative framing, so
// feedback strictly grows in specificity while temperature converges.
func (c *AttemptCoordinator) ParametersFor(state *State, attemptNumber int) GenerationParameters {
	switch {
	case attemptNumber <= 1:
		return GenerationParameters{Temperature: 0.7}

	case attemptNumber == 2:
		params := GenerationParameters{Temperature: 0.8}
		if a, ok := state.Assessments[1]; ok {
			params.Feedback = weaknessSummary(a)
		}
		return params

	default:
		params := GenerationParameters{Temperature: 0.6}
		var parts []string
		for n := 1; n < attemptNumber; n++ {
			if a, ok := state.Assessments[n]; ok {
				if s := weaknessSummary(a); s != "" {
					parts = append(parts, fmt.Sprintf("Attempt %d: %s", n, s))
				}
			}
		}
		parts = append(parts, "Be more conservative this time: prioritize narrative coherence and a clearly stated moral over novelty.")
		params.Feedback = strings.Join(parts, "\n")
		return params
	}
}

// RunAttempt executes one generate+assess cycle. The returned attempt is
// final (success or failed); the assessment is nil when generation failed.
// The caller appends the attempt to state and records the assessment.
func (c *AttemptCoordinator) RunAttempt(ctx context.Context, state *State, attemptNumber int) (GenerationAttempt, *QualityAssessment) {
	params := c.ParametersFor(state, attemptNumber)

	attempt := GenerationAttempt{
		Number:     attemptNumber,
		Parameters: params,
		Status:     AttemptPending,
		StartedAt:  time.Now(),
	}

	logging.Workflow("attempt %d starting (temp=%.1f)", attemptNumber, params.Temperature)

	genCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	content, err := c.generator.Generate(genCtx, state.Request, params)
	cancel()

	if err != nil {
		attempt.Status = AttemptFailed
		attempt.Error = err.Error()
		attempt.CompletedAt = time.Now()
		logging.Get(logging.CategoryWorkflow).Warn("attempt %d failed: %v", attemptNumber, err)
		return attempt, nil
	}

	attempt.Content = content
	attempt.Status = AttemptSuccess
	attempt.CompletedAt = time.Now()

	// Assessment happens after generation completes and before the next
	// generation starts; it never fails (neutral fallback). The scoring
	// call gets its own budget so a hung evaluator cannot starve the
	// remaining attempts.
	assessCtx, assessCancel := context.WithTimeout(ctx, c.attemptTimeout)
	assessment := c.assessor.Assess(assessCtx, state.Request, content)
	assessCancel()

	logging.Workflow("attempt %d scored %d/10", attemptNumber, assessment.OverallScore)

	return attempt, &assessment
}
