package workflow

import (
	"context"
	"fmt"
	"strings"

	"storyforge/internal/llm"
	"storyforge/internal/logging"
)

// ContentGenerator turns a request plus per-attempt parameters into
// narrative text through one external generation call.
type ContentGenerator struct {
	client    llm.Client
	maxTokens int
}

// NewContentGenerator creates a generator backed by the given client.
func NewContentGenerator(client llm.Client) *ContentGenerator {
	return &ContentGenerator{client: client, maxTokens: 8192}
}

const generatorSystemPrompt = `You are a warm, imaginative storyteller writing for young children.
Write complete, self-contained stories with a clear beginning, middle, and end.
Keep the language gentle and positive. Never include violence, fear, or adult themes.
Output only the story text, no titles, headers, or commentary.`

// buildPrompt assembles the generation prompt from the request and the
// attempt parameters. Feedback from a prior attempt, when present, is
// appended as explicit revision instructions.
func buildPrompt(req Request, params GenerationParameters) string {
	var sb strings.Builder

	switch req.StoryType {
	case StoryTypeHero:
		sb.WriteString("Write a story where the child's favorite hero is the protagonist.\n")
	case StoryTypeCombined:
		sb.WriteString("Write a story where the child and their favorite hero share an adventure together.\n")
	default:
		sb.WriteString("Write a story where the child is the protagonist.\n")
	}

	sb.WriteString("\nStory idea: ")
	sb.WriteString(req.Prompt)
	sb.WriteString("\n")

	if req.ChildContext != "" {
		sb.WriteString("\nAbout the child: ")
		sb.WriteString(req.ChildContext)
		sb.WriteString("\n")
	}
	if req.HeroContext != "" {
		sb.WriteString("\nAbout the hero: ")
		sb.WriteString(req.HeroContext)
		sb.WriteString("\n")
	}
	if req.Moral != "" {
		sb.WriteString("\nThe story should carry this moral, woven naturally into the plot: ")
		sb.WriteString(req.Moral)
		sb.WriteString("\n")
	}
	if req.Language != "" {
		sb.WriteString("\nWrite the story in ")
		sb.WriteString(req.Language)
		sb.WriteString(".\n")
	}
	if req.TargetWords > 0 {
		fmt.Fprintf(&sb, "\nTarget length: about %d words.\n", req.TargetWords)
	}

	if params.Feedback != "" {
		sb.WriteString("\nA previous draft of this story had weaknesses. Revision instructions:\n")
		sb.WriteString(params.Feedback)
		sb.WriteString("\n")
	}

	return sb.String()
}

// Generate performs one external generation call. The caller bounds ctx
// with the single-attempt budget; on timeout or external error the attempt
// is marked failed and consumes its slot.
func (g *ContentGenerator) Generate(ctx context.Context, req Request, params GenerationParameters) (string, error) {
	timer := logging.StartTimer(logging.CategoryGeneration, "Generate")
	defer timer.Stop()

	content, err := g.client.Complete(ctx, llm.Request{
		System:      generatorSystemPrompt,
		Prompt:      buildPrompt(req, params),
		Temperature: params.Temperature,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("generation call failed: %w", err)
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("generation returned empty content")
	}

	logging.Generation("generated %d words (temp=%.1f, feedback=%v)",
		len(strings.Fields(content)), params.Temperature, params.Feedback != "")

	return content, nil
}
