package workflow

import (
	"context"
	"fmt"
	"strings"

	"storyforge/internal/llm"
	"storyforge/internal/logging"
)

// QualityAssessor rates generated text against the seven-criterion rubric
// by delegating to an external LLM evaluator.
//
// Assess never returns an error: when the scoring call fails or the reply
// is malformed, it falls back to a neutral assessment so the loop always
// has a comparable score per attempt.
type QualityAssessor struct {
	client llm.Client
}

// NewQualityAssessor creates an assessor backed by the given client.
func NewQualityAssessor(client llm.Client) *QualityAssessor {
	return &QualityAssessor{client: client}
}

const assessorSystemPrompt = `You are a strict editor scoring children's stories.
Rate the story on each criterion with an integer from 1 (poor) to 10 (excellent).
Respond with ONLY a JSON object:
{
  "age_appropriateness": int,   // content and themes fit the stated age
  "moral_clarity": int,         // the moral is explicit and well integrated
  "narrative_coherence": int,   // logical flow, no contradictions
  "character_consistency": int, // characters behave consistently
  "engagement": int,            // sustains a child's interest
  "language_quality": int,      // grammar, vocabulary, register
  "length_compliance": int,     // word count vs. target, tolerance +/-20%
  "feedback": "2-4 sentences naming the weakest criteria and how to improve them"
}`

// assessmentResponse is the strict schema for the evaluator's reply.
// Pointer fields distinguish a genuine score from a missing one.
type assessmentResponse struct {
	AgeAppropriateness   *int   `json:"age_appropriateness"`
	MoralClarity         *int   `json:"moral_clarity"`
	NarrativeCoherence   *int   `json:"narrative_coherence"`
	CharacterConsistency *int   `json:"character_consistency"`
	Engagement           *int   `json:"engagement"`
	LanguageQuality      *int   `json:"language_quality"`
	LengthCompliance     *int   `json:"length_compliance"`
	Feedback             string `json:"feedback"`
}

func clampScore(n int) int {
	if n < 1 {
		return 1
	}
	if n > 10 {
		return 10
	}
	return n
}

// overallScore is the arithmetic mean of the sub-scores rounded to the
// nearest integer, clamped to [1,10].
func overallScore(subs ...int) int {
	sum := 0
	for _, s := range subs {
		sum += s
	}
	// Round half up: (sum + n/2) / n for positive sums.
	n := len(subs)
	return clampScore((sum + n/2) / n)
}

func buildRubricPrompt(req Request, content string) string {
	var sb strings.Builder

	sb.WriteString("Story to score:\n---\n")
	sb.WriteString(content)
	sb.WriteString("\n---\n")

	sb.WriteString("\nRequirements:\n")
	if req.ChildContext != "" {
		sb.WriteString("- Audience: ")
		sb.WriteString(req.ChildContext)
		sb.WriteString("\n")
	}
	if req.Moral != "" {
		sb.WriteString("- Intended moral: ")
		sb.WriteString(req.Moral)
		sb.WriteString("\n")
	}
	if req.Language != "" {
		sb.WriteString("- Language: ")
		sb.WriteString(req.Language)
		sb.WriteString("\n")
	}
	actual := len(strings.Fields(content))
	if req.TargetWords > 0 {
		fmt.Fprintf(&sb, "- Target length: %d words (actual: %d words)\n", req.TargetWords, actual)
	} else {
		fmt.Fprintf(&sb, "- Actual length: %d words (no target given; score length_compliance 10)\n", actual)
	}

	return sb.String()
}

// Assess scores content against the request's requirements.
func (a *QualityAssessor) Assess(ctx context.Context, req Request, content string) QualityAssessment {
	timer := logging.StartTimer(logging.CategoryAssessment, "Assess")
	defer timer.Stop()

	raw, err := a.client.Complete(ctx, llm.Request{
		System:      assessorSystemPrompt,
		Prompt:      buildRubricPrompt(req, content),
		Temperature: 0.0,
	})
	if err != nil {
		logging.Get(logging.CategoryAssessment).Warn("scoring call failed, using neutral score: %v", err)
		return NeutralAssessment("automated scoring unavailable for this attempt")
	}

	var resp assessmentResponse
	if err := llm.DecodeInto(raw, &resp); err != nil {
		logging.Get(logging.CategoryAssessment).Warn("scoring response unparseable, using neutral score: %v", err)
		return NeutralAssessment("automated scoring returned an unreadable result")
	}

	subs := []*int{
		resp.AgeAppropriateness,
		resp.MoralClarity,
		resp.NarrativeCoherence,
		resp.CharacterConsistency,
		resp.Engagement,
		resp.LanguageQuality,
		resp.LengthCompliance,
	}
	for _, s := range subs {
		if s == nil {
			logging.Get(logging.CategoryAssessment).Warn("scoring response missing sub-scores, using neutral score")
			return NeutralAssessment("automated scoring returned an incomplete result")
		}
	}

	assessment := QualityAssessment{
		AgeAppropriateness:   clampScore(*resp.AgeAppropriateness),
		MoralClarity:         clampScore(*resp.MoralClarity),
		NarrativeCoherence:   clampScore(*resp.NarrativeCoherence),
		CharacterConsistency: clampScore(*resp.CharacterConsistency),
		Engagement:           clampScore(*resp.Engagement),
		LanguageQuality:      clampScore(*resp.LanguageQuality),
		LengthCompliance:     clampScore(*resp.LengthCompliance),
		Feedback:             strings.TrimSpace(resp.Feedback),
	}
	assessment.OverallScore = overallScore(
		assessment.AgeAppropriateness,
		assessment.MoralClarity,
		assessment.NarrativeCoherence,
		assessment.CharacterConsistency,
		assessment.Engagement,
		assessment.LanguageQuality,
		assessment.LengthCompliance,
	)

	logging.Assessment("overall=%d feedback_len=%d", assessment.OverallScore, len(assessment.Feedback))

	return assessment
}
