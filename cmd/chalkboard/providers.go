package main

import (
	"errors"
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/chalkboard/internal/config"
	"github.com/MrWong99/chalkboard/internal/observe"
	"github.com/MrWong99/chalkboard/internal/resilience"
	"github.com/MrWong99/chalkboard/pkg/provider/llm"
	"github.com/MrWong99/chalkboard/pkg/provider/llm/anyllm"
	"github.com/MrWong99/chalkboard/pkg/provider/llm/openai"
)

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the LLM factories that ship with Chalkboard
// into reg. "openai" talks to any OpenAI-compatible endpoint (GitHub Models
// by default); every other backend goes through any-llm-go.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		key, err := config.ResolveAPIKey(entry)
		if err != nil {
			return nil, err
		}
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if d := entry.Timeout(); d > 0 {
			opts = append(opts, openai.WithTimeout(d))
		}
		return openai.New(key, entry.Model, opts...)
	})

	for _, backend := range anyllm.Backends {
		if backend == "openai" {
			continue
		}
		reg.RegisterLLM(backend, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			key, err := config.ResolveAPIKey(entry)
			switch {
			case err == nil:
				if key != "" {
					opts = append(opts, anyllmlib.WithAPIKey(key))
				}
			case errors.Is(err, config.ErrMissingCredential) && entry.APIKeyEnv == "":
				// any-llm-go reads the backend's conventional variable itself.
			default:
				return nil, err
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			p, err := anyllm.New(backend, entry.Model, opts...)
			if err != nil {
				return nil, err
			}
			p.SetTimeout(entry.Timeout())
			return p, nil
		})
	}

	for _, name := range reg.LLMNames() {
		slog.Debug("registered provider", "kind", "llm", "name", name)
	}
}

// buildProvider instantiates the configured LLM. With fallbacks configured
// the result is a [resilience.Failover] over the primary and every fallback,
// in configuration order.
func buildProvider(pc config.ProvidersConfig, reg *config.Registry, m *observe.Metrics) (llm.Provider, error) {
	entries := append([]config.ProviderEntry{pc.LLM}, pc.Fallbacks...)
	backends := make([]resilience.Backend, 0, len(entries))
	for i, entry := range entries {
		p, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
		}
		kind := "llm"
		if i > 0 {
			kind = "llm-fallback"
		}
		slog.Info("provider created", "kind", kind, "name", entry.Name, "model", entry.Model)
		backends = append(backends, resilience.Backend{Name: backendName(entry, i), Provider: p})
	}
	if len(backends) == 1 {
		return backends[0].Provider, nil
	}
	return resilience.NewFailover(resilience.BreakerConfig{
		MaxFailures:  pc.Breaker.MaxFailures,
		ResetTimeout: pc.Breaker.ResetTimeout,
	}, backends, resilience.WithMetrics(m))
}

// backendName labels a failover backend in logs and metrics. Position keeps
// two entries of the same provider apart.
func backendName(e config.ProviderEntry, i int) string {
	if e.Model == "" {
		return fmt.Sprintf("%d:%s", i, e.Name)
	}
	return fmt.Sprintf("%d:%s/%s", i, e.Name, e.Model)
}
