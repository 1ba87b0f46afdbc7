package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"

	"github.com/loupe-ai/loupe/pkg/types"
)

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/loupe/)
// 2. Project config (loupe.json / loupe.jsonc in directory)
// 3. LOUPE_CONFIG file
// 4. LOUPE_CONFIG_CONTENT inline JSON
// 5. Environment variables
func Load(directory string) (*types.Config, error) {
	// .env is a development convenience; a missing file is not an error.
	_ = godotenv.Load(filepath.Join(directory, ".env"))

	config := &types.Config{
		Provider: make(map[string]types.ProviderConfig),
	}

	// Track loaded files to avoid duplicates
	loaded := make(map[string]bool)

	loadOnce := func(path string, baseDir string) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return
		}
		if loaded[absPath] {
			return
		}
		if loadConfigFile(path, config, baseDir) == nil {
			loaded[absPath] = true
		}
	}

	// 1. Global config (~/.config/loupe/)
	globalPath := GetPaths().Config
	loadOnce(filepath.Join(globalPath, "loupe.json"), globalPath)
	loadOnce(filepath.Join(globalPath, "loupe.jsonc"), globalPath)

	// 2. Project config
	if directory != "" {
		loadOnce(filepath.Join(directory, "loupe.json"), directory)
		loadOnce(filepath.Join(directory, "loupe.jsonc"), directory)
	}

	// 3. LOUPE_CONFIG file override
	if configPath := os.Getenv("LOUPE_CONFIG"); configPath != "" {
		loadOnce(configPath, filepath.Dir(configPath))
	}

	// 4. LOUPE_CONFIG_CONTENT inline JSON
	if configContent := os.Getenv("LOUPE_CONFIG_CONTENT"); configContent != "" {
		var inlineConfig types.Config
		if err := json.Unmarshal([]byte(configContent), &inlineConfig); err == nil {
			mergeConfig(config, &inlineConfig)
		}
	}

	// 5. Environment variables (highest priority)
	applyEnvOverrides(config)

	// Normalize provider config (merge Options into direct fields)
	normalizeProviderConfig(config)

	applyDefaults(config)

	return config, nil
}

// loadConfigFile loads a single config file with interpolation support.
func loadConfigFile(path string, config *types.Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err // File doesn't exist, skip
	}

	// Strip JSONC comments using tidwall/jsonc
	data = jsonc.ToJSON(data)

	// Apply interpolation
	data = interpolate(data, baseDir)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := string(data)

	// Handle {env:VAR_NAME} placeholders
	envPattern := regexp.MustCompile(`\{env:([^}]+)\}`)
	str = envPattern.ReplaceAllStringFunc(str, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})

	// Handle {file:path} placeholders
	filePattern := regexp.MustCompile(`\{file:([^}]+)\}`)
	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]

		// Resolve path
		if strings.HasPrefix(filePath, "~/") {
			home := os.Getenv("HOME")
			filePath = filepath.Join(home, filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match // Keep original if file not found
		}

		// Escape for JSON string
		escaped := strings.ReplaceAll(string(content), "\\", "\\\\")
		escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
		escaped = strings.ReplaceAll(escaped, "\n", "\\n")
		escaped = strings.ReplaceAll(escaped, "\r", "\\r")
		escaped = strings.ReplaceAll(escaped, "\t", "\\t")

		return escaped
	})

	return []byte(str)
}

// normalizeProviderConfig merges Options fields into direct fields for compatibility.
func normalizeProviderConfig(config *types.Config) {
	for name, provider := range config.Provider {
		if provider.Options != nil {
			// Options take precedence over direct fields
			if provider.Options.APIKey != "" {
				provider.APIKey = provider.Options.APIKey
			}
			if provider.Options.BaseURL != "" {
				provider.BaseURL = provider.Options.BaseURL
			}
		}
		config.Provider[name] = provider
	}
}

// mergeConfig merges source config into target.
func mergeConfig(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.Model != "" {
		target.Model = source.Model
	}
	if source.SummaryModel != "" {
		target.SummaryModel = source.SummaryModel
	}

	// Merge providers
	if source.Provider != nil {
		if target.Provider == nil {
			target.Provider = make(map[string]types.ProviderConfig)
		}
		for k, v := range source.Provider {
			target.Provider[k] = v
		}
	}

	// Merge tools
	if source.Tools != nil {
		if target.Tools == nil {
			target.Tools = make(map[string]bool)
		}
		for k, v := range source.Tools {
			target.Tools[k] = v
		}
	}

	if source.Pools != nil {
		target.Pools = source.Pools
	}
	if source.Session != nil {
		target.Session = source.Session
	}
	if source.Credits != nil {
		target.Credits = source.Credits
	}
	if source.Server != nil {
		target.Server = source.Server
	}
	if source.Storage != nil {
		target.Storage = source.Storage
	}
	if source.Log != nil {
		target.Log = source.Log
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *types.Config) {
	// Provider API keys
	providerEnvMap := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"ark":       "ARK_API_KEY",
	}

	for provider, envVar := range providerEnvMap {
		if apiKey := os.Getenv(envVar); apiKey != "" {
			if config.Provider == nil {
				config.Provider = make(map[string]types.ProviderConfig)
			}
			p := config.Provider[provider]
			if p.APIKey == "" {
				p.APIKey = apiKey
				config.Provider[provider] = p
			}
		}
	}

	// Model overrides
	if model := os.Getenv("LOUPE_MODEL"); model != "" {
		config.Model = model
	}
	if summaryModel := os.Getenv("LOUPE_SUMMARY_MODEL"); summaryModel != "" {
		config.SummaryModel = summaryModel
	}

	// Log level override
	if level := os.Getenv("LOUPE_LOG_LEVEL"); level != "" {
		if config.Log == nil {
			config.Log = &types.LogConfig{}
		}
		config.Log.Level = level
	}
}

// applyDefaults fills service-level defaults so downstream code never
// nil-checks the optional sections.
func applyDefaults(config *types.Config) {
	if config.Session == nil {
		config.Session = &types.SessionDefaults{}
	}
	s := config.Session
	if s.TimeLimitSeconds <= 0 {
		s.TimeLimitSeconds = 1800
	}
	if s.TokenThreshold <= 0 {
		s.TokenThreshold = 150000
	}
	if s.PreserveExchanges <= 0 {
		s.PreserveExchanges = 2
	}
	if s.Retries <= 0 {
		s.Retries = 2
	}

	if config.Server == nil {
		config.Server = &types.ServerConfig{}
	}
	if config.Server.Host == "" {
		config.Server.Host = "127.0.0.1"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 7865
	}

	if config.SummaryModel == "" {
		config.SummaryModel = config.Model
	}

	if config.Pools == nil {
		config.Pools = &types.PoolConfig{}
	}
	if len(config.Pools.Conversation) == 0 && config.Model != "" {
		config.Pools.Conversation = []string{config.Model}
	}
	if len(config.Pools.Summary) == 0 && config.SummaryModel != "" {
		config.Pools.Summary = []string{config.SummaryModel}
	}
	if len(config.Pools.Termination) == 0 {
		config.Pools.Termination = config.Pools.Summary
	}
}

// Save saves the configuration to a file.
func Save(config *types.Config, path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
