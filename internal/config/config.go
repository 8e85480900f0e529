package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all storyforge configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM provider configuration
	LLM LLMConfig `yaml:"llm"`

	// Workflow engine configuration
	Workflow WorkflowConfig `yaml:"workflow"`

	// Content safety configuration
	Safety SafetyConfig `yaml:"safety"`

	// Story persistence
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the LLM provider and the model used per capability.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini, openai, zai
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`

	// Per-capability model identifiers. Empty values fall back to Model.
	Model           string `yaml:"model"`
	GenerationModel string `yaml:"generation_model"`
	ValidationModel string `yaml:"validation_model"`
	AssessmentModel string `yaml:"assessment_model"`
}

// WorkflowConfig configures the generation-quality loop.
type WorkflowConfig struct {
	// Minimum overall score accepted without regeneration [1,10].
	QualityThreshold int `yaml:"quality_threshold"`

	// Upper bound on generate+assess cycles per request.
	MaxAttempts int `yaml:"max_attempts"`

	// Budget for a single generation call.
	AttemptTimeout string `yaml:"attempt_timeout"`

	// Budget for the whole request, covering all attempts.
	TotalTimeout string `yaml:"total_timeout"`

	// Concurrent request bound for batch execution.
	MaxConcurrentRequests int `yaml:"max_concurrent_requests"`
}

// SafetyConfig configures prompt validation.
type SafetyConfig struct {
	// Newline-delimited list of licensed character names.
	BlocklistPath string `yaml:"blocklist_path"`

	// Reload the blocklist when the file changes on disk.
	WatchBlocklist bool `yaml:"watch_blocklist"`
}

// StoreConfig configures story persistence.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures the category file logger.
type LoggingConfig struct {
	DebugMode  bool   `yaml:"debug_mode"`
	Level      string `yaml:"level"` // debug, info, warn, error
	Dir        string `yaml:"dir"`
	JSONFormat bool   `yaml:"json_format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "storyforge",
		Version: "0.3.0",

		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-flash",
			Timeout:  "120s",
		},

		Workflow: WorkflowConfig{
			QualityThreshold:      7,
			MaxAttempts:           3,
			AttemptTimeout:        "30s",
			TotalTimeout:          "90s",
			MaxConcurrentRequests: 4,
		},

		Safety: SafetyConfig{
			BlocklistPath:  "data/licensed_characters.txt",
			WatchBlocklist: false,
		},

		Store: StoreConfig{
			DatabasePath: "data/storyforge.db",
		},

		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
			Dir:       "logs",
		},
	}
}

// Load loads configuration from a YAML file, applying defaults for any
// missing fields and environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// API key from environment (check in priority order)
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "gemini"
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
	}
	if key := os.Getenv("ZAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "zai"
	}

	if model := os.Getenv("STORYFORGE_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if path := os.Getenv("STORYFORGE_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if path := os.Getenv("STORYFORGE_BLOCKLIST"); path != "" {
		c.Safety.BlocklistPath = path
	}
}

// GenerationModel returns the model used for story generation.
func (c *LLMConfig) GetGenerationModel() string {
	if c.GenerationModel != "" {
		return c.GenerationModel
	}
	return c.Model
}

// GetValidationModel returns the model used for prompt classification.
func (c *LLMConfig) GetValidationModel() string {
	if c.ValidationModel != "" {
		return c.ValidationModel
	}
	return c.Model
}

// GetAssessmentModel returns the model used for quality scoring.
func (c *LLMConfig) GetAssessmentModel() string {
	if c.AssessmentModel != "" {
		return c.AssessmentModel
	}
	return c.Model
}

// GetLLMTimeout returns the LLM client timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetAttemptTimeout returns the single-attempt budget as a duration.
func (c *Config) GetAttemptTimeout() time.Duration {
	d, err := time.ParseDuration(c.Workflow.AttemptTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetTotalTimeout returns the whole-request budget as a duration.
func (c *Config) GetTotalTimeout() time.Duration {
	d, err := time.ParseDuration(c.Workflow.TotalTimeout)
	if err != nil {
		return 90 * time.Second
	}
	return d
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"gemini", "openai", "zai"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set GEMINI_API_KEY, OPENAI_API_KEY, or ZAI_API_KEY)")
	}

	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	if c.Workflow.QualityThreshold < 1 || c.Workflow.QualityThreshold > 10 {
		return fmt.Errorf("quality_threshold must be in [1,10], got %d", c.Workflow.QualityThreshold)
	}
	if c.Workflow.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1, got %d", c.Workflow.MaxAttempts)
	}
	if c.Workflow.MaxConcurrentRequests < 1 {
		return fmt.Errorf("max_concurrent_requests must be >= 1, got %d", c.Workflow.MaxConcurrentRequests)
	}

	return nil
}
