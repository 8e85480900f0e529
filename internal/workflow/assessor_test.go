package workflow

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

func TestAssessor_ParsesScores(t *testing.T) {
	client := fixedClient(`{
		"age_appropriateness": 9,
		"moral_clarity": 7,
		"narrative_coherence": 8,
		"character_consistency": 8,
		"engagement": 9,
		"language_quality": 8,
		"length_compliance": 10,
		"feedback": "strong overall"
	}`, nil)
	a := NewQualityAssessor(client)

	got := a.Assess(context.Background(), testRequest(), "once upon a time")
	if got.AgeAppropriateness != 9 || got.MoralClarity != 7 || got.LengthCompliance != 10 {
		t.Fatalf("sub-scores = %+v", got)
	}
	// mean of 9 7 8 8 9 8 10 = 59/7 = 8.43 -> 8
	if got.OverallScore != 8 {
		t.Fatalf("OverallScore = %d, want 8", got.OverallScore)
	}
	if got.Feedback != "strong overall" {
		t.Fatalf("Feedback = %q", got.Feedback)
	}
}

func TestAssessor_AcceptsFencedJSON(t *testing.T) {
	client := fixedClient("```json\n"+assessJSON(6, "ok")+"\n```", nil)
	a := NewQualityAssessor(client)

	got := a.Assess(context.Background(), testRequest(), "story")
	if got.OverallScore != 6 {
		t.Fatalf("OverallScore = %d, want 6", got.OverallScore)
	}
}

func TestAssessor_ClampsOutOfRangeScores(t *testing.T) {
	client := fixedClient(`{
		"age_appropriateness": 15,
		"moral_clarity": 0,
		"narrative_coherence": -3,
		"character_consistency": 10,
		"engagement": 10,
		"language_quality": 10,
		"length_compliance": 10,
		"feedback": ""
	}`, nil)
	a := NewQualityAssessor(client)

	got := a.Assess(context.Background(), testRequest(), "story")
	if got.AgeAppropriateness != 10 {
		t.Fatalf("AgeAppropriateness = %d, want clamped to 10", got.AgeAppropriateness)
	}
	if got.MoralClarity != 1 || got.NarrativeCoherence != 1 {
		t.Fatalf("low scores = %d/%d, want clamped to 1", got.MoralClarity, got.NarrativeCoherence)
	}
}

func TestAssessor_NeutralOnCallFailure(t *testing.T) {
	a := NewQualityAssessor(fixedClient("", fmt.Errorf("503 from upstream")))

	got := a.Assess(context.Background(), testRequest(), "story")
	if got.OverallScore != NeutralScore {
		t.Fatalf("OverallScore = %d, want neutral %d", got.OverallScore, NeutralScore)
	}
	for name, score := range got.SubScores() {
		if score != NeutralScore {
			t.Fatalf("%s = %d, want neutral", name, score)
		}
	}
}

func TestAssessor_NeutralOnUnparseableReply(t *testing.T) {
	a := NewQualityAssessor(fixedClient("I'd rate this story quite highly!", nil))

	got := a.Assess(context.Background(), testRequest(), "story")
	if got.OverallScore != NeutralScore {
		t.Fatalf("OverallScore = %d, want neutral", got.OverallScore)
	}
}

func TestAssessor_NeutralOnMissingSubScore(t *testing.T) {
	client := fixedClient(`{
		"age_appropriateness": 9,
		"moral_clarity": 7,
		"feedback": "partial"
	}`, nil)
	a := NewQualityAssessor(client)

	got := a.Assess(context.Background(), testRequest(), "story")
	if got.OverallScore != NeutralScore {
		t.Fatalf("OverallScore = %d, want neutral on incomplete reply", got.OverallScore)
	}
}

// The rubric prompt carries the actual word count so length_compliance is
// grounded.
func TestAssessor_PromptIncludesWordCounts(t *testing.T) {
	client := fixedClient(assessJSON(7, ""), nil)
	a := NewQualityAssessor(client)

	content := strings.Repeat("word ", 120)
	a.Assess(context.Background(), testRequest(), content)

	prompt := client.call(0).Prompt
	if !strings.Contains(prompt, "Target length: 300 words") {
		t.Fatalf("prompt missing target length:\n%s", prompt)
	}
	if !strings.Contains(prompt, "actual: 120 words") {
		t.Fatalf("prompt missing actual length:\n%s", prompt)
	}
}
