package llm

import (
	"fmt"

	"storyforge/internal/config"
)

// NewClient builds a Client for the configured provider. The model argument
// selects the capability-specific model (generation, validation, or
// assessment); pass an empty string to use the provider default.
func NewClient(cfg *config.Config, model string) (Client, error) {
	if model == "" {
		model = cfg.LLM.Model
	}

	switch cfg.LLM.Provider {
	case "gemini":
		return NewGeminiClient(GeminiConfig{
			APIKey: cfg.LLM.APIKey,
			Model:  model,
		})

	case "openai":
		c := DefaultOpenAIConfig(cfg.LLM.APIKey)
		c.Model = model
		c.Timeout = cfg.GetLLMTimeout()
		if cfg.LLM.BaseURL != "" {
			c.BaseURL = cfg.LLM.BaseURL
		}
		return NewOpenAIClient(c), nil

	case "zai":
		c := OpenAIConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: "https://api.z.ai/api/paas/v4",
			Model:   model,
			Timeout: cfg.GetLLMTimeout(),
		}
		if cfg.LLM.BaseURL != "" {
			c.BaseURL = cfg.LLM.BaseURL
		}
		return NewOpenAIClient(c), nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLM.Provider)
	}
}
