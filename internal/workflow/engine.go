package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storyforge/internal/logging"
)

// EngineConfig holds the loop's tunables. Passed explicitly at
// construction; there is no ambient global configuration.
type EngineConfig struct {
	// Minimum overall score accepted without regeneration.
	QualityThreshold int

	// Upper bound on generate+assess cycles per request.
	MaxAttempts int

	// Budget for the prompt classification call. A hung classifier must
	// not consume the whole request budget.
	ValidationTimeout time.Duration

	// Budget for the whole request, covering all attempts.
	TotalTimeout time.Duration
}

// DefaultEngineConfig returns sensible defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		QualityThreshold:  7,
		MaxAttempts:       3,
		ValidationTimeout: 30 * time.Second,
		TotalTimeout:      90 * time.Second,
	}
}

// Engine is the state machine coordinating validation, generation,
// assessment, and selection for one request at a time. A single Engine is
// safe for concurrent Run calls: all mutable state is request-scoped.
type Engine struct {
	config      EngineConfig
	validator   *PromptValidator
	coordinator *AttemptCoordinator
	selector    *BestAttemptSelector
}

// NewEngine creates an engine from its collaborators.
func NewEngine(config EngineConfig, validator *PromptValidator, coordinator *AttemptCoordinator, selector *BestAttemptSelector) *Engine {
	if config.QualityThreshold == 0 {
		config.QualityThreshold = DefaultEngineConfig().QualityThreshold
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = DefaultEngineConfig().MaxAttempts
	}
	if config.ValidationTimeout == 0 {
		config.ValidationTimeout = DefaultEngineConfig().ValidationTimeout
	}
	if config.TotalTimeout == 0 {
		config.TotalTimeout = DefaultEngineConfig().TotalTimeout
	}
	return &Engine{
		config:      config,
		validator:   validator,
		coordinator: coordinator,
		selector:    selector,
	}
}

// Run drives one request through the workflow to a terminal status.
// External-service failures never escape as errors: they become rejection
// (validator, fail-safe), failed attempts (generator), or neutral scores
// (assessor). The returned error covers only malformed requests.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("request prompt is empty")
	}

	state := NewState(req)

	ctx, cancel := context.WithTimeout(ctx, e.config.TotalTimeout)
	defer cancel()

	logging.Workflow("request %s started (type=%s, lang=%s)", state.ID, req.StoryType, req.Language)

	// pending -> validating
	state.advance(StatusValidating, "request received")

	vctx, vcancel := context.WithTimeout(ctx, e.config.ValidationTimeout)
	validation, err := e.validator.Validate(vctx, req)
	vcancel()
	if err != nil {
		// Fail-safe: a validator failure is never a silent approval.
		logging.Get(logging.CategoryWorkflow).Warn("request %s: validation unavailable, rejecting: %v", state.ID, err)
		state.Validation = &ValidationResult{
			IsSafe:         false,
			Issues:         []string{"safety validation unavailable, request rejected as a precaution"},
			Recommendation: RecommendationRejected,
		}
		state.advance(StatusRejected, "validation capability failed")
		return e.buildResult(state), nil
	}

	state.Validation = validation
	if validation.Recommendation == RecommendationRejected {
		state.advance(StatusRejected, "prompt rejected by validator")
		logging.Workflow("request %s rejected: %v", state.ID, validation.Issues)
		return e.buildResult(state), nil
	}

	// validating -> generating; then the bounded generate/assess loop.
	for attemptNumber := 1; attemptNumber <= e.config.MaxAttempts; attemptNumber++ {
		state.advance(StatusGenerating, fmt.Sprintf("attempt %d", attemptNumber))

		attempt, assessment := e.coordinator.RunAttempt(ctx, state, attemptNumber)
		state.Attempts = append(state.Attempts, attempt)

		if attempt.Status == AttemptFailed {
			if ctx.Err() != nil {
				// Total timeout or cancellation mid-attempt: degrade
				// gracefully and select from what succeeded so far.
				logging.Workflow("request %s: budget exhausted during attempt %d", state.ID, attemptNumber)
				break
			}
			// A failed generation consumes its attempt slot.
			continue
		}

		state.advance(StatusAssessing, fmt.Sprintf("attempt %d generated", attemptNumber))
		state.Assessments[attemptNumber] = *assessment

		if assessment.OverallScore >= e.config.QualityThreshold {
			logging.Workflow("request %s: attempt %d met threshold (%d >= %d)",
				state.ID, attemptNumber, assessment.OverallScore, e.config.QualityThreshold)
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	// Terminal selection. Reaching the attempt bound forces success via
	// the selector regardless of score; only zero successes yields failed.
	selected, err := e.selector.Select(state)
	if err != nil {
		state.advance(StatusFailed, "all generation attempts failed")
		logging.Workflow("request %s failed: no successful attempts", state.ID)
		return e.buildResult(state), nil
	}

	state.SelectedAttempt = &selected
	state.advance(StatusSuccess, fmt.Sprintf("selected attempt %d", selected))
	logging.Workflow("request %s succeeded with attempt %d", state.ID, selected)

	return e.buildResult(state), nil
}

// buildResult projects the terminal state into the exposed result shape.
// Intermediate attempt state is not exposed beyond score metadata.
func (e *Engine) buildResult(state *State) *Result {
	result := &Result{
		ID:          state.ID,
		Request:     state.Request,
		Status:      state.Status,
		CompletedAt: time.Now(),
	}

	switch state.Status {
	case StatusRejected:
		if state.Validation != nil {
			result.RejectionReasons = state.Validation.Issues
		}
		result.Message = "the request was rejected; please adjust your prompt and try again"

	case StatusFailed:
		result.Message = "story generation is temporarily unavailable; please try again later"

	case StatusSuccess:
		selected := *state.SelectedAttempt
		for _, a := range state.Attempts {
			if a.Number == selected {
				result.SelectedContent = a.Content
				break
			}
		}
		scores := make(map[int]int, len(state.Assessments))
		for n, a := range state.Assessments {
			scores[n] = a.OverallScore
		}
		result.Quality = &QualityMetadata{
			SelectedAttempt: selected,
			AttemptCount:    len(state.Attempts),
			AttemptScores:   scores,
			Assessment:      state.Assessments[selected],
		}
	}

	return result
}
