package workflow

import (
	"context"
	"fmt"
	"strings"

	"storyforge/internal/llm"
	"storyforge/internal/logging"
)

// PromptValidator classifies a story request as safe or unsafe before any
// generation happens. It consults the local licensed-character blocklist
// first, then an external classification call for safety and age fit.
//
// The validator itself returns an error when the external call fails; the
// engine applies the fail-safe policy (treat as rejected, never silently
// approve).
type PromptValidator struct {
	client    llm.Client
	blocklist *Blocklist
}

// NewPromptValidator creates a validator. blocklist may be nil to skip the
// local pre-check.
func NewPromptValidator(client llm.Client, blocklist *Blocklist) *PromptValidator {
	return &PromptValidator{client: client, blocklist: blocklist}
}

const validatorSystemPrompt = `You are a content-safety classifier for a children's story service.
Given a story prompt and the child's age context, respond with ONLY a JSON object:
{
  "is_safe": bool,              // no violence, fear, adult themes, or harmful content
  "has_licensed_characters": bool, // any trademarked/licensed characters (Disney, Marvel, etc.)
  "is_age_appropriate": bool,   // themes and complexity fit the stated age
  "issues": ["specific reason", ...] // one entry per failed check, empty if all pass
}
Be strict: when in doubt about safety or age fit, fail the check and say why.`

// validationResponse is the strict schema for the classifier's reply.
// Pointer fields distinguish "false" from "missing".
type validationResponse struct {
	IsSafe                *bool    `json:"is_safe"`
	HasLicensedCharacters *bool    `json:"has_licensed_characters"`
	IsAgeAppropriate      *bool    `json:"is_age_appropriate"`
	Issues                []string `json:"issues"`
}

// Validate classifies the request prompt. The returned result carries the
// specific issues for user-facing explanation on rejection.
func (v *PromptValidator) Validate(ctx context.Context, req Request) (*ValidationResult, error) {
	timer := logging.StartTimer(logging.CategoryValidation, "Validate")
	defer timer.Stop()

	// Local blocklist check first: cheap, deterministic, and catches the
	// common licensed-character case without an API call.
	if v.blocklist != nil {
		if hits := v.blocklist.Match(req.Prompt); len(hits) > 0 {
			issues := make([]string, 0, len(hits))
			for _, h := range hits {
				issues = append(issues, fmt.Sprintf("licensed character detected: %s", h))
			}
			logging.Validation("blocklist rejected prompt: %v", hits)
			result := &ValidationResult{
				IsSafe:                true,
				HasLicensedCharacters: true,
				IsAgeAppropriate:      true,
				Issues:                issues,
			}
			result.Normalize()
			return result, nil
		}
	}

	var sb strings.Builder
	sb.WriteString("Story prompt:\n")
	sb.WriteString(req.Prompt)
	sb.WriteString("\n")
	if req.ChildContext != "" {
		sb.WriteString("\nChild context: ")
		sb.WriteString(req.ChildContext)
	}
	if req.HeroContext != "" {
		sb.WriteString("\nHero context: ")
		sb.WriteString(req.HeroContext)
	}

	raw, err := v.client.Complete(ctx, llm.Request{
		System:      validatorSystemPrompt,
		Prompt:      sb.String(),
		Temperature: 0.0,
	})
	if err != nil {
		return nil, fmt.Errorf("classification call failed: %w", err)
	}

	var resp validationResponse
	if err := llm.DecodeInto(raw, &resp); err != nil {
		return nil, fmt.Errorf("classification response unparseable: %w", err)
	}
	if resp.IsSafe == nil || resp.HasLicensedCharacters == nil || resp.IsAgeAppropriate == nil {
		return nil, fmt.Errorf("classification response missing required fields")
	}

	result := &ValidationResult{
		IsSafe:                *resp.IsSafe,
		HasLicensedCharacters: *resp.HasLicensedCharacters,
		IsAgeAppropriate:      *resp.IsAgeAppropriate,
		Issues:                resp.Issues,
	}
	if result.Issues == nil {
		result.Issues = []string{}
	}
	result.Normalize()

	// A rejected verdict must explain itself even when the classifier
	// forgot to fill in issues.
	if result.Recommendation == RecommendationRejected && len(result.Issues) == 0 {
		if !result.IsSafe {
			result.Issues = append(result.Issues, "content flagged as unsafe")
		}
		if result.HasLicensedCharacters {
			result.Issues = append(result.Issues, "licensed character detected")
		}
		if !result.IsAgeAppropriate {
			result.Issues = append(result.Issues, "content not age appropriate")
		}
	}

	logging.Validation("verdict=%s safe=%v licensed=%v age_ok=%v issues=%d",
		result.Recommendation, result.IsSafe, result.HasLicensedCharacters, result.IsAgeAppropriate, len(result.Issues))

	return result, nil
}
