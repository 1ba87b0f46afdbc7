// Package config provides configuration loading, merging, and path management
// for the Loupe research service.
//
// # Configuration Loading
//
// The Load function searches for and merges configuration from multiple
// sources in priority order:
//
//  1. Global config (~/.config/loupe/ - XDG compatible)
//  2. Project config (loupe.json / loupe.jsonc in the working directory)
//  3. LOUPE_CONFIG file
//  4. LOUPE_CONFIG_CONTENT inline JSON
//  5. Environment variables
//
// Later sources override earlier ones; environment variables have the
// highest precedence. A .env file in the working directory is loaded
// first as a development convenience.
//
// # Supported Formats
//
// Both JSON and JSONC (JSON with Comments) are supported:
//   - loupe.json - Standard JSON configuration
//   - loupe.jsonc - JSON with comments, processed using tidwall/jsonc
//
// # Variable Interpolation
//
// Configuration files support two types of variable interpolation:
//   - {env:VAR_NAME} - Expands to environment variable values
//   - {file:path} - Expands to file contents (properly escaped for JSON)
//
// File paths in {file:path} placeholders support absolute paths, paths
// relative to the config file directory, and home expansion (~/).
//
// Example configuration with interpolation:
//
//	{
//	  "model": "anthropic/claude-sonnet-4",
//	  "provider": {
//	    "anthropic": {
//	      "options": {
//	        "apiKey": "{env:ANTHROPIC_API_KEY}"
//	      }
//	    }
//	  }
//	}
//
// # Environment Variable Overrides
//
// Several environment variables provide direct configuration overrides:
//   - LOUPE_MODEL - Override the default conversation model
//   - LOUPE_SUMMARY_MODEL - Override the summarization model
//   - LOUPE_LOG_LEVEL - Override the log level
//   - LOUPE_CONFIG - Path to a specific config file
//   - LOUPE_CONFIG_CONTENT - Inline JSON configuration
//
// # Path Management
//
// The package provides XDG Base Directory Specification compliant path
// management through the Paths type:
//   - Data: ~/.local/share/loupe (XDG_DATA_HOME)
//   - Config: ~/.config/loupe (XDG_CONFIG_HOME)
//   - Cache: ~/.cache/loupe (XDG_CACHE_HOME)
//   - State: ~/.local/state/loupe (XDG_STATE_HOME)
//
// On Windows, these paths are adapted to use APPDATA as appropriate.
package config
