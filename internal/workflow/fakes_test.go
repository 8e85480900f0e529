package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storyforge/internal/llm"
)

// stubClient is a scripted llm.Client for tests. Each call pops the next
// scripted response; fn-based stubs get the full request for inspection.
type stubClient struct {
	mu    sync.Mutex
	calls []llm.Request
	fn    func(ctx context.Context, req llm.Request) (string, error)
}

func (s *stubClient) Complete(ctx context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return s.fn(ctx, req)
}

func (s *stubClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubClient) call(i int) llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[i]
}

// fixedClient always returns the same response.
func fixedClient(text string, err error) *stubClient {
	return &stubClient{fn: func(ctx context.Context, req llm.Request) (string, error) {
		return text, err
	}}
}

// sequenceClient returns scripted responses in order, repeating the last
// one when the script runs out.
func sequenceClient(responses ...func(ctx context.Context, req llm.Request) (string, error)) *stubClient {
	i := 0
	var mu sync.Mutex
	return &stubClient{fn: func(ctx context.Context, req llm.Request) (string, error) {
		mu.Lock()
		idx := i
		if i < len(responses)-1 {
			i++
		}
		mu.Unlock()
		return responses[idx](ctx, req)
	}}
}

func respond(text string) func(ctx context.Context, req llm.Request) (string, error) {
	return func(ctx context.Context, req llm.Request) (string, error) {
		return text, nil
	}
}

func respondErr(err error) func(ctx context.Context, req llm.Request) (string, error) {
	return func(ctx context.Context, req llm.Request) (string, error) {
		return "", err
	}
}

// blockUntilCancelled parks until the context is done.
func blockUntilCancelled(ctx context.Context, req llm.Request) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

const approvedJSON = `{"is_safe":true,"has_licensed_characters":false,"is_age_appropriate":true,"issues":[]}`

// assessJSON builds an assessor reply where every sub-score is score.
func assessJSON(score int, feedback string) string {
	return fmt.Sprintf(`{
		"age_appropriateness": %d,
		"moral_clarity": %d,
		"narrative_coherence": %d,
		"character_consistency": %d,
		"engagement": %d,
		"language_quality": %d,
		"length_compliance": %d,
		"feedback": %q
	}`, score, score, score, score, score, score, score, feedback)
}

func testRequest() Request {
	return Request{
		Prompt:       "Mia and the lost star",
		Language:     "English",
		StoryType:    StoryTypeChild,
		ChildContext: "Mia, age 5, loves astronomy",
		Moral:        "kindness",
		TargetWords:  300,
	}
}

// newTestEngine wires an engine from three stub clients with fast
// timeouts.
func newTestEngine(cfg EngineConfig, validation, generation, assessment llm.Client) *Engine {
	blocklist, _ := LoadBlocklist("")
	return NewEngine(cfg,
		NewPromptValidator(validation, blocklist),
		NewAttemptCoordinator(
			NewContentGenerator(generation),
			NewQualityAssessor(assessment),
			5*time.Second,
		),
		NewBestAttemptSelector(),
	)
}
