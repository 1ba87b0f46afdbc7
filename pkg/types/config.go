package types

// Config represents the Loupe service configuration.
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty"`

	// Default model selection, "provider/model" form
	Model        string `json:"model,omitempty"`         // conversation turns
	SummaryModel string `json:"summary_model,omitempty"` // compaction and termination checks

	// Model pools tried in order by the LLM adapter; entries are
	// "provider/model". When empty the pools are derived from Model
	// and SummaryModel.
	Pools *PoolConfig `json:"pools,omitempty"`

	// Provider configs
	Provider map[string]ProviderConfig `json:"provider,omitempty"`

	// Defaults applied to sessions that omit a field
	Session *SessionDefaults `json:"session,omitempty"`

	// Global tools enable/disable
	Tools map[string]bool `json:"tools,omitempty"`

	// Credit accounting
	Credits *CreditsConfig `json:"credits,omitempty"`

	// HTTP server
	Server *ServerConfig `json:"server,omitempty"`

	// Durable session snapshots; empty dir disables persistence
	Storage *StorageConfig `json:"storage,omitempty"`

	// Logging
	Log *LogConfig `json:"log,omitempty"`
}

// PoolConfig lists fallback model pools per concern.
type PoolConfig struct {
	Conversation []string `json:"conversation,omitempty"`
	Summary      []string `json:"summary,omitempty"`
	Termination  []string `json:"termination,omitempty"`
}

// ProviderConfig holds configuration for a specific LLM provider.
type ProviderConfig struct {
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty"`

	// Model/Endpoint ID (for providers like ARK that require endpoint
	// specification)
	Model string `json:"model,omitempty"`

	// Nested options
	Options *ProviderOptions `json:"options,omitempty"`

	// Disable provider
	Disable bool `json:"disable,omitempty"`
}

// ProviderOptions holds nested provider options.
type ProviderOptions struct {
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty"`
	Timeout *int   `json:"timeout,omitempty"` // ms, nil = default, 0 = disabled
}

// SessionDefaults fills SessionConfig fields a start-research request
// leaves unset.
type SessionDefaults struct {
	TimeLimitSeconds  int   `json:"time_limit_seconds,omitempty"`
	TokenThreshold    int   `json:"token_threshold,omitempty"`
	PreserveExchanges int   `json:"preserve_exchanges,omitempty"`
	CheckTermination  bool  `json:"check_termination,omitempty"`
	TurnCost          int64 `json:"turn_cost,omitempty"`
	Retries           int   `json:"retries,omitempty"`
}

// CreditsConfig configures the credit gate.
type CreditsConfig struct {
	Enabled        bool     `json:"enabled,omitempty"`
	InitialBalance int64    `json:"initial_balance,omitempty"`
	Unlimited      []string `json:"unlimited,omitempty"` // user IDs with unlimited access
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`
}

// StorageConfig holds the durable snapshot settings.
type StorageConfig struct {
	Dir string `json:"dir,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `json:"level,omitempty"` // trace|debug|info|warn|error
	Pretty bool   `json:"pretty,omitempty"`
}

// Model represents an LLM model available from a provider.
type Model struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	ProviderID      string  `json:"providerID"`
	ContextLength   int     `json:"contextLength"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	SupportsTools   bool    `json:"supportsTools"`
	InputPrice      float64 `json:"inputPrice,omitempty"`  // per 1M tokens
	OutputPrice     float64 `json:"outputPrice,omitempty"` // per 1M tokens
}
