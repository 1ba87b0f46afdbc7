package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProjectConfig(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "loupe-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	// Isolate HOME to prevent loading other configs
	oldHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", oldHome)

	projectConfig := `{
		"$schema": "https://loupe.ai/config.json",
		"model": "anthropic/claude-sonnet-4-20250514",
		"summary_model": "anthropic/claude-3-5-haiku-20241022",
		"provider": {
			"anthropic": {
				"options": {
					"apiKey": "sk-ant-test123"
				}
			}
		},
		"session": {
			"time_limit_seconds": 600,
			"token_threshold": 80000,
			"preserve_exchanges": 3
		}
	}`

	configPath := filepath.Join(tmpDir, "loupe.json")
	require.NoError(t, os.WriteFile(configPath, []byte(projectConfig), 0644))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "https://loupe.ai/config.json", cfg.Schema)
	assert.Equal(t, "anthropic/claude-sonnet-4-20250514", cfg.Model)
	assert.Equal(t, "anthropic/claude-3-5-haiku-20241022", cfg.SummaryModel)

	// Nested provider options are normalized into direct fields
	anthropic := cfg.Provider["anthropic"]
	assert.Equal(t, "sk-ant-test123", anthropic.APIKey)

	require.NotNil(t, cfg.Session)
	assert.Equal(t, 600, cfg.Session.TimeLimitSeconds)
	assert.Equal(t, 80000, cfg.Session.TokenThreshold)
	assert.Equal(t, 3, cfg.Session.PreserveExchanges)
}

func TestJSONCComments(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "loupe-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	oldHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", oldHome)

	jsoncConfig := `{
		// This is a single-line comment
		"model": "anthropic/claude-sonnet-4-20250514",
		/* This is a
		   multi-line comment */
		"provider": {
			"anthropic": {
				"apiKey": "test-key" // inline comment
			}
		}
	}`

	configPath := filepath.Join(tmpDir, "loupe.jsonc")
	require.NoError(t, os.WriteFile(configPath, []byte(jsoncConfig), 0644))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "anthropic/claude-sonnet-4-20250514", cfg.Model)
	assert.Equal(t, "test-key", cfg.Provider["anthropic"].APIKey)
}

func TestEnvInterpolation(t *testing.T) {
	os.Setenv("TEST_API_KEY", "interpolated-key")
	defer os.Unsetenv("TEST_API_KEY")

	tmpDir, err := os.MkdirTemp("", "loupe-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	oldHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", oldHome)

	config := `{
		"model": "anthropic/claude-sonnet-4",
		"provider": {
			"anthropic": {
				"apiKey": "{env:TEST_API_KEY}"
			}
		}
	}`

	configPath := filepath.Join(tmpDir, "loupe.json")
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0644))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "interpolated-key", cfg.Provider["anthropic"].APIKey)
}

func TestFileInterpolation(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "loupe-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	oldHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", oldHome)

	promptFile := filepath.Join(tmpDir, "system.txt")
	require.NoError(t, os.WriteFile(promptFile, []byte("Always cite sources"), 0644))

	config := `{
		"model": "anthropic/claude-sonnet-4",
		"provider": {
			"anthropic": {
				"apiKey": "{file:system.txt}"
			}
		}
	}`

	configPath := filepath.Join(tmpDir, "loupe.json")
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0644))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "Always cite sources", cfg.Provider["anthropic"].APIKey)
}

func TestConfigMerge(t *testing.T) {
	tmpHome, err := os.MkdirTemp("", "loupe-home-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpHome)

	tmpProject, err := os.MkdirTemp("", "loupe-project-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpProject)

	oldHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpHome)
	defer os.Setenv("HOME", oldHome)

	globalConfig := `{
		"model": "anthropic/claude-sonnet-4",
		"provider": {
			"anthropic": {
				"apiKey": "global-key"
			}
		}
	}`

	globalConfigDir := filepath.Join(tmpHome, ".config", "loupe")
	require.NoError(t, os.MkdirAll(globalConfigDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(globalConfigDir, "loupe.json"), []byte(globalConfig), 0644))

	projectConfig := `{
		"model": "openai/gpt-4o"
	}`
	require.NoError(t, os.WriteFile(filepath.Join(tmpProject, "loupe.json"), []byte(projectConfig), 0644))

	cfg, err := Load(tmpProject)
	require.NoError(t, err)

	// Project model overrides global; global provider is preserved
	assert.Equal(t, "openai/gpt-4o", cfg.Model)
	assert.Equal(t, "global-key", cfg.Provider["anthropic"].APIKey)
}

func TestEnvVarOverride(t *testing.T) {
	os.Setenv("LOUPE_MODEL", "env-model")
	os.Setenv("ANTHROPIC_API_KEY", "env-anthropic-key")
	defer func() {
		os.Unsetenv("LOUPE_MODEL")
		os.Unsetenv("ANTHROPIC_API_KEY")
	}()

	tmpDir, err := os.MkdirTemp("", "loupe-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	oldHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", oldHome)

	config := `{
		"model": "file-model"
	}`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "loupe.json"), []byte(config), 0644))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	// Environment variable should override file config
	assert.Equal(t, "env-model", cfg.Model)
	assert.Equal(t, "env-anthropic-key", cfg.Provider["anthropic"].APIKey)
}

func TestConfigFileOverride(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "loupe-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	oldHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", oldHome)

	customConfig := `{
		"model": "custom-config-model"
	}`
	customConfigPath := filepath.Join(tmpDir, "custom-config.json")
	require.NoError(t, os.WriteFile(customConfigPath, []byte(customConfig), 0644))

	os.Setenv("LOUPE_CONFIG", customConfigPath)
	defer os.Unsetenv("LOUPE_CONFIG")

	cfg, err := Load("/tmp")
	require.NoError(t, err)

	assert.Equal(t, "custom-config-model", cfg.Model)
}

func TestInlineConfigContent(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "loupe-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	oldHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", oldHome)

	inlineConfig := `{"model": "inline-model", "summary_model": "inline-summary"}`
	os.Setenv("LOUPE_CONFIG_CONTENT", inlineConfig)
	defer os.Unsetenv("LOUPE_CONFIG_CONTENT")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "inline-model", cfg.Model)
	assert.Equal(t, "inline-summary", cfg.SummaryModel)
}

func TestDefaults(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "loupe-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	oldHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", oldHome)

	config := `{"model": "anthropic/claude-sonnet-4"}`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "loupe.json"), []byte(config), 0644))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	require.NotNil(t, cfg.Session)
	assert.Equal(t, 1800, cfg.Session.TimeLimitSeconds)
	assert.Equal(t, 150000, cfg.Session.TokenThreshold)
	assert.Equal(t, 2, cfg.Session.PreserveExchanges)

	require.NotNil(t, cfg.Server)
	assert.Equal(t, 7865, cfg.Server.Port)

	// Summary model falls back to the conversation model
	assert.Equal(t, "anthropic/claude-sonnet-4", cfg.SummaryModel)

	require.NotNil(t, cfg.Pools)
	assert.Equal(t, []string{"anthropic/claude-sonnet-4"}, cfg.Pools.Conversation)
	assert.Equal(t, []string{"anthropic/claude-sonnet-4"}, cfg.Pools.Summary)
	assert.Equal(t, cfg.Pools.Summary, cfg.Pools.Termination)
}
