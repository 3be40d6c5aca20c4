package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// ErrMissingCredential is returned by [ResolveAPIKey] when a provider that
// needs a credential has none configured.
var ErrMissingCredential = errors.New("config: missing API credential")

// ValidProviderNames lists the known LLM provider names.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// keylessProviders run locally and accept requests without a credential.
var keylessProviders = []string{"ollama", "llamacpp", "llamafile"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader]. An empty path returns
// [Default].
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Unknown keys are rejected.
//
// The provider entry is not merged field by field: when the file names a
// provider, only the GitHub Models defaults of the "openai" provider are
// filled in.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	cfg.Providers.LLM = ProviderEntry{}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyProviderDefaults(&cfg.Providers.LLM)
	for i := range cfg.Providers.Fallbacks {
		applyProviderDefaults(&cfg.Providers.Fallbacks[i])
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyProviderDefaults(e *ProviderEntry) {
	if e.Name == "" {
		e.Name = DefaultProvider
	}
	if e.Name != DefaultProvider {
		return
	}
	if e.BaseURL == "" {
		e.BaseURL = DefaultBaseURL
	}
	if e.Model == "" {
		e.Model = DefaultModel
	}
	if e.APIKey == "" && e.APIKeyEnv == "" {
		e.APIKeyEnv = DefaultAPIKeyEnv
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Providers
	errs = append(errs, validateProviderEntry("providers.llm", cfg.Providers.LLM)...)
	for i, fb := range cfg.Providers.Fallbacks {
		errs = append(errs, validateProviderEntry(fmt.Sprintf("providers.fallbacks[%d]", i), fb)...)
	}
	if cfg.Providers.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("providers.breaker.max_failures %d must not be negative", cfg.Providers.Breaker.MaxFailures))
	}
	if cfg.Providers.Breaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("providers.breaker.reset_timeout %s must not be negative", cfg.Providers.Breaker.ResetTimeout))
	}

	// Chat
	if cfg.Chat.Temperature < 0 || cfg.Chat.Temperature > 2 {
		errs = append(errs, fmt.Errorf("chat.temperature %.2f is out of range [0, 2]", cfg.Chat.Temperature))
	}
	if cfg.Chat.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("chat.max_tokens %d must be positive", cfg.Chat.MaxTokens))
	}

	// Diagrams
	if strings.TrimSpace(cfg.Diagrams.Dir) == "" {
		errs = append(errs, errors.New("diagrams.dir is required"))
	}
	if cfg.Diagrams.MaxAge < 0 {
		errs = append(errs, fmt.Errorf("diagrams.max_age %s must not be negative", cfg.Diagrams.MaxAge))
	}
	if spec := cfg.Diagrams.SweepSchedule; spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("diagrams.sweep_schedule %q is invalid: %w", spec, err))
		}
	}

	return errors.Join(errs...)
}

// ResolveAPIKey returns the credential for e: the literal APIKey if set,
// otherwise the value of the APIKeyEnv environment variable. Keyless local
// providers resolve to "" without error. Any other provider without a
// credential yields [ErrMissingCredential].
func ResolveAPIKey(e ProviderEntry) (string, error) {
	if e.APIKey != "" {
		return e.APIKey, nil
	}
	if e.APIKeyEnv != "" {
		if v := os.Getenv(e.APIKeyEnv); v != "" {
			return v, nil
		}
	}
	if slices.Contains(keylessProviders, e.Name) {
		return "", nil
	}
	if e.APIKeyEnv != "" {
		return "", fmt.Errorf("%w: set %s or api_key for %q", ErrMissingCredential, e.APIKeyEnv, e.Name)
	}
	return "", fmt.Errorf("%w: api_key is empty for %q", ErrMissingCredential, e.Name)
}

// Timeout returns the "timeout" option of e, or zero when unset or invalid.
func (e ProviderEntry) Timeout() time.Duration {
	v, ok := e.Options["timeout"]
	if !ok {
		return 0
	}
	d, _ := durationOption(v)
	return d
}

// durationOption accepts a duration string ("60s") or a number of seconds.
func durationOption(v any) (time.Duration, error) {
	switch t := v.(type) {
	case string:
		d, err := time.ParseDuration(t)
		if err != nil {
			return 0, err
		}
		if d < 0 {
			return 0, fmt.Errorf("duration %s must not be negative", d)
		}
		return d, nil
	case int:
		if t < 0 {
			return 0, fmt.Errorf("duration %d must not be negative", t)
		}
		return time.Duration(t) * time.Second, nil
	case float64:
		if t < 0 {
			return 0, fmt.Errorf("duration %g must not be negative", t)
		}
		return time.Duration(t * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("unsupported value %v (%T); use a duration like 60s", v, v)
	}
}

func validateProviderEntry(path string, e ProviderEntry) []error {
	var errs []error
	if e.Name == "" {
		errs = append(errs, fmt.Errorf("%s.name is required", path))
	} else {
		validateProviderName(e.Name)
	}
	if v, ok := e.Options["timeout"]; ok {
		if _, err := durationOption(v); err != nil {
			errs = append(errs, fmt.Errorf("%s.options.timeout: %w", path, err))
		}
	}
	return errs
}

// validateProviderName logs a warning if name is not found in
// [ValidProviderNames].
func validateProviderName(name string) {
	if slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", "llm",
		"name", name,
		"known", ValidProviderNames,
	)
}
