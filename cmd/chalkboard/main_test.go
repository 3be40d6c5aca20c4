package main

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/chalkboard/internal/config"
	"github.com/MrWong99/chalkboard/internal/diagram"
	"github.com/MrWong99/chalkboard/internal/health"
	"github.com/MrWong99/chalkboard/internal/resilience"
	"github.com/MrWong99/chalkboard/pkg/provider/llm/anyllm"
	"github.com/MrWong99/chalkboard/pkg/provider/llm/mock"
)

// ── Provider wiring ───────────────────────────────────────────────────────────

func TestRegisterBuiltinProviders_Names(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	got := reg.LLMNames()
	for _, name := range anyllm.Backends {
		if !slices.Contains(got, name) {
			t.Errorf("backend %q not registered; have %v", name, got)
		}
	}
}

func TestRegisterBuiltinProviders_OpenAI(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	p, err := reg.CreateLLM(config.ProviderEntry{
		Name:    "openai",
		APIKey:  "sk-test",
		BaseURL: config.DefaultBaseURL,
		Model:   config.DefaultModel,
		Options: map[string]any{"timeout": "30s"},
	})
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if p == nil {
		t.Fatal("CreateLLM returned nil provider")
	}
}

func TestRegisterBuiltinProviders_MissingCredential(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	_, err := reg.CreateLLM(config.ProviderEntry{
		Name:      "openai",
		APIKeyEnv: "CHALKBOARD_TEST_UNSET_TOKEN",
		Model:     config.DefaultModel,
	})
	if !errors.Is(err, config.ErrMissingCredential) {
		t.Fatalf("err = %v, want ErrMissingCredential", err)
	}
	if !strings.Contains(err.Error(), "CHALKBOARD_TEST_UNSET_TOKEN") {
		t.Errorf("error %q does not name the variable", err)
	}
}

func TestRegisterBuiltinProviders_KeylessBackend(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	p, err := reg.CreateLLM(config.ProviderEntry{
		Name:    "ollama",
		BaseURL: "http://localhost:11434",
		Model:   "llama3.2",
	})
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if p == nil {
		t.Fatal("CreateLLM returned nil provider")
	}
}

func TestBuildProvider(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	primary := config.ProviderEntry{Name: "openai", APIKey: "sk-test", BaseURL: config.DefaultBaseURL, Model: config.DefaultModel}

	single, err := buildProvider(config.ProvidersConfig{LLM: primary}, reg, nil)
	if err != nil {
		t.Fatalf("buildProvider single: %v", err)
	}
	if _, ok := single.(*resilience.Failover); ok {
		t.Error("single provider wrapped in a Failover")
	}

	multi, err := buildProvider(config.ProvidersConfig{
		LLM:       primary,
		Fallbacks: []config.ProviderEntry{{Name: "ollama", Model: "llama3.2"}},
	}, reg, nil)
	if err != nil {
		t.Fatalf("buildProvider with fallback: %v", err)
	}
	f, ok := multi.(*resilience.Failover)
	if !ok {
		t.Fatalf("provider = %T, want *resilience.Failover", multi)
	}
	if got := f.Names(); !slices.Equal(got, []string{"0:openai/openai/gpt-4.1-mini", "1:ollama/llama3.2"}) {
		t.Errorf("Names = %v", got)
	}
}

func TestReadinessCheckers(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	names := func(cs []health.Checker) []string {
		var out []string
		for _, c := range cs {
			out = append(out, c.Name)
		}
		return out
	}

	if got := names(readinessCheckers(dir, &mock.Provider{})); !slices.Equal(got, []string{"diagrams"}) {
		t.Errorf("single provider checks = %v, want [diagrams]", got)
	}

	f, err := resilience.NewFailover(resilience.BreakerConfig{}, []resilience.Backend{
		{Name: "a", Provider: &mock.Provider{}},
		{Name: "b", Provider: &mock.Provider{}},
	})
	if err != nil {
		t.Fatalf("NewFailover: %v", err)
	}
	checks := readinessCheckers(dir, f)
	if got := names(checks); !slices.Equal(got, []string{"diagrams", "providers"}) {
		t.Fatalf("failover checks = %v, want [diagrams providers]", got)
	}
	for _, c := range checks {
		if err := c.Check(t.Context()); err != nil {
			t.Errorf("check %s: %v", c.Name, err)
		}
	}
}

func TestBuildProvider_FallbackError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	_, err := buildProvider(config.ProvidersConfig{
		LLM:       config.ProviderEntry{Name: "openai", APIKey: "sk-test", Model: "m"},
		Fallbacks: []config.ProviderEntry{{Name: "nope", Model: "m"}},
	}, reg, nil)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

// ── Sweep mode ────────────────────────────────────────────────────────────────

func TestRunSweep(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	old := time.Now().Add(-2 * time.Hour)
	for _, name := range []string{"old.png", "fresh.png"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
			t.Fatal(err)
		}
		if name == "old.png" {
			if err := os.Chtimes(path, old, old); err != nil {
				t.Fatal(err)
			}
		}
	}

	s := diagram.NewSweeper(dir)
	if code := runSweep(s, 24*time.Hour, []string{"-max-age", "1h"}); code != 0 {
		t.Fatalf("runSweep = %d, want 0", code)
	}
	if _, err := os.Stat(filepath.Join(dir, "old.png")); !os.IsNotExist(err) {
		t.Errorf("old.png still present (err=%v)", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "fresh.png")); err != nil {
		t.Errorf("fresh.png removed: %v", err)
	}
}

func TestRunSweep_BadFlag(t *testing.T) {
	t.Parallel()
	if code := runSweep(diagram.NewSweeper(t.TempDir()), time.Hour, []string{"-max-age", "soon"}); code != 2 {
		t.Errorf("runSweep = %d, want 2", code)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func TestPrintStartupSummary(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Diagrams.SweepSchedule = ""

	var buf bytes.Buffer
	printStartupSummary(&buf, cfg)
	out := buf.String()
	for _, want := range []string{"openai / openai/gp…", "diagrams", "1h0m0s", "(disabled)", ":8501"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func TestNewLogger_Levels(t *testing.T) {
	t.Parallel()
	tests := []struct {
		level config.LogLevel
		mode  string
		want  slog.Level
	}{
		{config.LogDebug, "web", slog.LevelDebug},
		{config.LogInfo, "web", slog.LevelInfo},
		{"", "web", slog.LevelInfo},
		{config.LogInfo, "chat", slog.LevelWarn},
		{config.LogDebug, "chat", slog.LevelDebug},
		{config.LogError, "mcp", slog.LevelError},
	}
	for _, tc := range tests {
		l := newLogger(tc.level, tc.mode)
		if !l.Enabled(t.Context(), tc.want) {
			t.Errorf("%s/%s: level %v disabled", tc.level, tc.mode, tc.want)
		}
		if tc.want > slog.LevelDebug && l.Enabled(t.Context(), tc.want-4) {
			t.Errorf("%s/%s: level below %v enabled", tc.level, tc.mode, tc.want)
		}
	}
}
