package config

import "time"

// Config is the root configuration for Orbit.
type Config struct {
	Remote    RemoteConfig    `json:"remote"`
	Gateway   GatewayConfig   `json:"gateway"`
	Events    EventsConfig    `json:"events"`
	Models    ModelsConfig    `json:"models"`
	Inference InferenceConfig `json:"inference"`
	Sync      SyncConfig      `json:"sync"`
	Sessions  SessionsConfig  `json:"sessions"`
}

// RemoteConfig selects the authoritative store.
type RemoteConfig struct {
	// DSN is one of memory://, sqlite://<path>, postgres://..., http(s)://<orbit serve>.
	DSN     string   `json:"dsn"`
	Timeout Duration `json:"timeout,omitempty"`
}

// GatewayConfig holds the `orbit serve` settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	// DSN is the database served; defaults to remote.dsn.
	DSN string `json:"dsn,omitempty"`
}

// ModelsConfig holds model provider configuration.
type ModelsConfig struct {
	Default   string                    `json:"default"`
	Providers map[string]ProviderConfig `json:"providers"`
}

// ProviderConfig configures a single LLM provider.
type ProviderConfig struct {
	Driver      string         `json:"driver"` // "gemini", "anthropic", "openai", "mistral", "ollama"
	Model       string         `json:"model"`
	BaseURL     string         `json:"base_url,omitempty"`
	Auth        AuthConfig     `json:"auth"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Temperature *float32       `json:"temperature,omitempty"`
	Timeout     Duration       `json:"timeout,omitempty"`
	Options     map[string]any `json:"options,omitempty"`
}

// AuthConfig configures API key resolution.
type AuthConfig struct {
	APIKey string `json:"api_key,omitempty"` // Direct API key or ${{ .Env.VAR }} template
	Token  string `json:"token,omitempty"`   // Bearer token, takes precedence over api_key
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int `json:"buffer_size"`
}

// InferenceConfig maps inference tasks to model providers.
type InferenceConfig struct {
	Roles     RolesConfig     `json:"roles"`
	WebSearch WebSearchConfig `json:"web_search"`
	Timeout   Duration        `json:"timeout,omitempty"`
}

// RolesConfig names the provider used for each inference task. Empty roles
// use models.default.
type RolesConfig struct {
	Classifier   string `json:"classifier,omitempty"`
	Oracle       string `json:"oracle,omitempty"`
	Research     string `json:"research,omitempty"`
	DeepResearch string `json:"deep_research,omitempty"`
}

// WebSearchConfig grounds research queries on live search results.
type WebSearchConfig struct {
	Provider       string `json:"provider,omitempty"` // "", "duckduckgo", "google", "bing"
	MaxResults     int    `json:"max_results,omitempty"`
	APIKey         string `json:"api_key,omitempty"`
	SearchEngineID string `json:"search_engine_id,omitempty"`
}

// SyncConfig configures the periodic full resync.
type SyncConfig struct {
	Resync   string `json:"resync"` // cron expression
	Disabled bool   `json:"disabled,omitempty"`
}

// SessionsConfig configures the local session state.
type SessionsConfig struct {
	Dir string `json:"dir"`
	// EncryptToken stores the cached access token age-encrypted (default true).
	EncryptToken *bool `json:"encrypt_token,omitempty"`
	// HistoryLimit bounds the chat transcript replayed at startup.
	HistoryLimit int `json:"history_limit,omitempty"`
}

// Encrypt reports whether the cached token is encrypted.
func (s SessionsConfig) Encrypt() bool {
	return s.EncryptToken == nil || *s.EncryptToken
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	// Remove quotes
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
