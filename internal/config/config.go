// Package config provides the configuration schema, loader, and provider
// registry for Chalkboard.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [Default] and by [LoadFromReader] for omitted fields.
const (
	DefaultListenAddr    = ":8501"
	DefaultProvider      = "openai"
	DefaultBaseURL       = "https://models.github.ai/inference"
	DefaultModel         = "openai/gpt-4.1-mini"
	DefaultAPIKeyEnv     = "GITHUB_TOKEN"
	DefaultTemperature   = 0.7
	DefaultMaxTokens     = 2000
	DefaultDiagramsDir   = "diagrams"
	DefaultMaxAge        = time.Hour
	DefaultSweepSchedule = "@every 10m"
)

// Config is the root configuration structure for Chalkboard.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Chat      ChatConfig      `yaml:"chat"`
	Diagrams  DiagramsConfig  `yaml:"diagrams"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the web server listens on (e.g., ":8501").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig declares which provider implementation backs the tutor.
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`

	// Fallbacks are tried in order when LLM fails or its circuit breaker is
	// open. Empty disables failover.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// Breaker tunes the per-backend circuit breakers used with Fallbacks.
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes a provider circuit breaker. Zero values select the
// breaker defaults.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the breaker.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long an open breaker waits before probing again.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// ProviderEntry is the configuration block of one provider.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "ollama").
	Name string `yaml:"name"`

	// APIKey is a literal credential. It wins over APIKeyEnv.
	APIKey string `yaml:"api_key"`

	// APIKeyEnv names the environment variable holding the credential.
	APIKeyEnv string `yaml:"api_key_env"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above (e.g., timeout: 60s).
	Options map[string]any `yaml:"options"`
}

// ChatConfig tunes the conversation engine.
type ChatConfig struct {
	// Temperature is the sampling temperature in [0, 2].
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps the length of each completion.
	MaxTokens int `yaml:"max_tokens"`

	// SystemPrompt replaces the built-in tutor prompt when non-empty.
	SystemPrompt string `yaml:"system_prompt"`
}

// DiagramsConfig locates generated diagrams and controls their cleanup.
type DiagramsConfig struct {
	// Dir is the directory diagrams are written to. Created on demand.
	Dir string `yaml:"dir"`

	// MaxAge is the age after which the sweeper deletes a diagram.
	// Zero deletes every diagram on each sweep.
	MaxAge time.Duration `yaml:"max_age"`

	// SweepSchedule is a cron expression (or @every descriptor) for the
	// periodic sweep in long-running modes. Empty disables it.
	SweepSchedule string `yaml:"sweep_schedule"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: DefaultListenAddr,
			LogLevel:   LogInfo,
		},
		Providers: ProvidersConfig{
			LLM: ProviderEntry{
				Name:      DefaultProvider,
				BaseURL:   DefaultBaseURL,
				Model:     DefaultModel,
				APIKeyEnv: DefaultAPIKeyEnv,
			},
		},
		Chat: ChatConfig{
			Temperature: DefaultTemperature,
			MaxTokens:   DefaultMaxTokens,
		},
		Diagrams: DiagramsConfig{
			Dir:           DefaultDiagramsDir,
			MaxAge:        DefaultMaxAge,
			SweepSchedule: DefaultSweepSchedule,
		},
	}
}
