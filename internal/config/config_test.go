package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnvOverrides(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GEMINI_API_KEY", "OPENAI_API_KEY", "ZAI_API_KEY",
		"STORYFORGE_MODEL", "STORYFORGE_DB", "STORYFORGE_BLOCKLIST",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "storyforge", cfg.Name)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, 7, cfg.Workflow.QualityThreshold)
	assert.Equal(t, 3, cfg.Workflow.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.GetAttemptTimeout())
	assert.Equal(t, 90*time.Second, cfg.GetTotalTimeout())
	assert.Equal(t, 4, cfg.Workflow.MaxConcurrentRequests)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnvOverrides(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Workflow, cfg.Workflow)
}

func TestLoad_MergesFileOverDefaults(t *testing.T) {
	clearEnvOverrides(t)

	path := filepath.Join(t.TempDir(), "storyforge.yaml")
	content := `
llm:
  provider: openai
  api_key: file-key
  model: gpt-4o
workflow:
  quality_threshold: 8
  total_timeout: 120s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "file-key", cfg.LLM.APIKey)
	assert.Equal(t, 8, cfg.Workflow.QualityThreshold)
	assert.Equal(t, 120*time.Second, cfg.GetTotalTimeout())
	// Fields absent from the file keep their defaults.
	assert.Equal(t, 3, cfg.Workflow.MaxAttempts)
	assert.Equal(t, "data/storyforge.db", cfg.Store.DatabasePath)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnvOverrides(t)
	t.Setenv("OPENAI_API_KEY", "env-key")
	t.Setenv("STORYFORGE_DB", "/tmp/override.db")

	path := filepath.Join(t.TempDir(), "storyforge.yaml")
	content := `
llm:
  provider: gemini
  api_key: file-key
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.LLM.APIKey)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "/tmp/override.db", cfg.Store.DatabasePath)
}

func TestPerCapabilityModelsFallBack(t *testing.T) {
	llm := LLMConfig{Model: "base-model"}
	assert.Equal(t, "base-model", llm.GetGenerationModel())
	assert.Equal(t, "base-model", llm.GetValidationModel())
	assert.Equal(t, "base-model", llm.GetAssessmentModel())

	llm.ValidationModel = "small-model"
	assert.Equal(t, "small-model", llm.GetValidationModel())
	assert.Equal(t, "base-model", llm.GetGenerationModel())
}

func TestTimeoutParsing_FallsBackOnGarbage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workflow.AttemptTimeout = "not a duration"
	cfg.Workflow.TotalTimeout = ""

	assert.Equal(t, 30*time.Second, cfg.GetAttemptTimeout())
	assert.Equal(t, 90*time.Second, cfg.GetTotalTimeout())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.LLM.APIKey = "key"
		return cfg
	}

	assert.NoError(t, valid().Validate())

	cfg := valid()
	cfg.LLM.APIKey = ""
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.LLM.Provider = "mystery"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Workflow.QualityThreshold = 11
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Workflow.MaxAttempts = 0
	assert.Error(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnvOverrides(t)

	path := filepath.Join(t.TempDir(), "nested", "storyforge.yaml")

	cfg := DefaultConfig()
	cfg.LLM.APIKey = "saved-key"
	cfg.Workflow.QualityThreshold = 9
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "saved-key", loaded.LLM.APIKey)
	assert.Equal(t, 9, loaded.Workflow.QualityThreshold)
}
