package workflow

import (
	"context"
	"strings"
	"testing"
)

func TestBuildPrompt(t *testing.T) {
	req := testRequest()
	req.StoryType = StoryTypeCombined
	req.HeroContext = "Captain Luma, a gentle lighthouse keeper"

	prompt := buildPrompt(req, GenerationParameters{Temperature: 0.7})

	for _, want := range []string{
		"share an adventure together",
		req.Prompt,
		"Mia, age 5",
		"Captain Luma",
		"kindness",
		"English",
		"about 300 words",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "Revision instructions") {
		t.Fatal("first attempt should carry no revision block")
	}
}

func TestBuildPrompt_FeedbackBecomesRevisionBlock(t *testing.T) {
	params := GenerationParameters{
		Temperature: 0.8,
		Feedback:    "Weak criteria: moral clarity (4/10).",
	}

	prompt := buildPrompt(testRequest(), params)
	if !strings.Contains(prompt, "Revision instructions") {
		t.Fatalf("prompt missing revision block:\n%s", prompt)
	}
	if !strings.Contains(prompt, params.Feedback) {
		t.Fatalf("prompt missing feedback text:\n%s", prompt)
	}
}

func TestGenerator_TrimsContent(t *testing.T) {
	g := NewContentGenerator(fixedClient("\n  a quiet story  \n", nil))

	got, err := g.Generate(context.Background(), testRequest(), GenerationParameters{Temperature: 0.7})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "a quiet story" {
		t.Fatalf("Generate() = %q", got)
	}
}

func TestGenerator_EmptyContentIsAnError(t *testing.T) {
	g := NewContentGenerator(fixedClient("   \n", nil))

	if _, err := g.Generate(context.Background(), testRequest(), GenerationParameters{}); err == nil {
		t.Fatal("expected error for empty generation")
	}
}

func TestGenerator_PassesParameters(t *testing.T) {
	client := fixedClient("a story", nil)
	g := NewContentGenerator(client)

	params := GenerationParameters{Temperature: 0.6}
	if _, err := g.Generate(context.Background(), testRequest(), params); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	sent := client.call(0)
	if sent.Temperature != 0.6 {
		t.Fatalf("Temperature = %v, want 0.6", sent.Temperature)
	}
	if sent.MaxTokens != 8192 {
		t.Fatalf("MaxTokens = %d, want 8192", sent.MaxTokens)
	}
	if sent.System == "" {
		t.Fatal("system prompt must be set")
	}
}
