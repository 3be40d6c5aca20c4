// Command chalkboard is the entry point for the Chalkboard diagram tutor.
//
// Usage:
//
//	chalkboard [-config path] [chat|web|mcp|sweep [-max-age d]]
//
// chat (the default) runs the terminal tutor, web serves the browser UI, mcp
// exposes the diagram tools to MCP hosts over stdio and sweep deletes stale
// diagrams once.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/chalkboard/internal/cli"
	"github.com/MrWong99/chalkboard/internal/config"
	"github.com/MrWong99/chalkboard/internal/conversation"
	"github.com/MrWong99/chalkboard/internal/diagram"
	"github.com/MrWong99/chalkboard/internal/health"
	"github.com/MrWong99/chalkboard/internal/mcpserve"
	"github.com/MrWong99/chalkboard/internal/observe"
	"github.com/MrWong99/chalkboard/internal/resilience"
	"github.com/MrWong99/chalkboard/internal/tools"
	"github.com/MrWong99/chalkboard/internal/tools/diagramtools"
	"github.com/MrWong99/chalkboard/internal/web"
	"github.com/MrWong99/chalkboard/pkg/provider/llm"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	fs := flag.NewFlagSet("chalkboard", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to the YAML configuration file (defaults are used when empty)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: chalkboard [-config path] [chat|web|mcp|sweep [-max-age d]]\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	mode, rest := "chat", fs.Args()
	if len(rest) > 0 {
		mode, rest = rest[0], rest[1:]
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "chalkboard: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "chalkboard: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel, mode))

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.Init(ctx, version)
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Diagram sweep ─────────────────────────────────────────────────────────
	sweeper := diagram.NewSweeper(cfg.Diagrams.Dir, diagram.WithSweepMetrics(metrics))
	if mode == "sweep" {
		return runSweep(sweeper, cfg.Diagrams.MaxAge, rest)
	}
	startupSweep(sweeper, cfg.Diagrams.MaxAge)

	// ── Tools ─────────────────────────────────────────────────────────────────
	renderer, err := diagram.NewRenderer(cfg.Diagrams.Dir)
	if err != nil {
		slog.Error("failed to prepare diagram directory", "dir", cfg.Diagrams.Dir, "err", err)
		return 1
	}
	toolReg, err := tools.NewRegistry(diagramtools.Tools(renderer), tools.WithMetrics(metrics))
	if err != nil {
		slog.Error("failed to register diagram tools", "err", err)
		return 1
	}

	if mode == "mcp" {
		if err := mcpserve.Serve(ctx, toolReg, version); err != nil {
			slog.Error("mcp server error", "err", err)
			return 1
		}
		return 0
	}

	// ── Provider ──────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	provider, err := buildProvider(cfg.Providers, reg, metrics)
	if err != nil {
		slog.Error("failed to build llm provider", "err", err)
		return 1
	}

	newEngine := func() *conversation.Engine {
		return conversation.New(provider, toolReg,
			conversation.WithSystemPrompt(cfg.Chat.SystemPrompt),
			conversation.WithTemperature(cfg.Chat.Temperature),
			conversation.WithMaxTokens(cfg.Chat.MaxTokens),
			conversation.WithMetrics(metrics),
			conversation.WithProviderName(cfg.Providers.LLM.Name),
		)
	}

	switch mode {
	case "chat":
		return runChat(ctx, cfg, sweeper, newEngine())
	case "web":
		return runWeb(ctx, cfg, sweeper, renderer.Dir(), newEngine, metrics, provider)
	default:
		fmt.Fprintf(os.Stderr, "chalkboard: unknown mode %q\n", mode)
		fs.Usage()
		return 2
	}
}

// ── Modes ─────────────────────────────────────────────────────────────────────

func runChat(ctx context.Context, cfg *config.Config, sweeper *diagram.Sweeper, e *conversation.Engine) int {
	if cfg.Diagrams.SweepSchedule != "" {
		stopSweep, err := sweeper.Schedule(cfg.Diagrams.SweepSchedule, cfg.Diagrams.MaxAge)
		if err != nil {
			slog.Error("failed to schedule diagram sweep", "err", err)
			return 1
		}
		defer stopSweep()
	}

	if err := cli.New(e, sweeper).Run(ctx); err != nil {
		slog.Error("chat error", "err", err)
		return 1
	}
	return 0
}

func runWeb(ctx context.Context, cfg *config.Config, sweeper *diagram.Sweeper, dir string, factory web.EngineFactory, metrics *observe.Metrics, provider llm.Provider) int {
	printStartupSummary(os.Stdout, cfg)

	srv := web.New(factory, dir,
		web.WithSweeper(sweeper),
		web.WithMetrics(metrics),
		web.WithCheckers(readinessCheckers(dir, provider)...),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx, cfg.Server.ListenAddr) })
	if cfg.Diagrams.SweepSchedule != "" {
		g.Go(func() error { return sweeper.Run(gctx, cfg.Diagrams.SweepSchedule, cfg.Diagrams.MaxAge) })
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

func runSweep(sweeper *diagram.Sweeper, maxAge time.Duration, args []string) int {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	fs.DurationVar(&maxAge, "max-age", maxAge, "delete diagrams older than this (0 deletes all)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	n, err := sweeper.Sweep(maxAge)
	fmt.Printf("Removed %d diagram(s)\n", n)
	if err != nil {
		slog.Error("sweep incomplete", "err", err)
		return 1
	}
	return 0
}

// startupSweep removes diagrams left over from earlier runs. Failures are
// logged and never stop startup.
func startupSweep(sweeper *diagram.Sweeper, maxAge time.Duration) {
	n, err := sweeper.Sweep(maxAge)
	if err != nil {
		slog.Warn("startup sweep incomplete", "removed", n, "err", err)
		return
	}
	if n > 0 {
		slog.Info("startup sweep", "removed", n, "max_age", maxAge)
	}
}

// readinessCheckers always probes the diagram directory. With fallbacks
// configured the instance also reports not ready while every provider
// breaker is open.
func readinessCheckers(dir string, p llm.Provider) []health.Checker {
	checks := []health.Checker{health.DirWritable("diagrams", dir)}
	if f, ok := p.(*resilience.Failover); ok {
		checks = append(checks, health.Checker{Name: "providers", Check: f.Ready})
	}
	return checks
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║       Chalkboard startup summary      ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printRow(w, "LLM", summarise(cfg.Providers.LLM.Name, cfg.Providers.LLM.Model))
	for _, fb := range cfg.Providers.Fallbacks {
		printRow(w, "  fallback", summarise(fb.Name, fb.Model))
	}
	printRow(w, "Diagrams", cfg.Diagrams.Dir)
	printRow(w, "Max age", cfg.Diagrams.MaxAge.String())
	sweep := cfg.Diagrams.SweepSchedule
	if sweep == "" {
		sweep = "(disabled)"
	}
	printRow(w, "Sweep", sweep)
	printRow(w, "Listen addr", cfg.Server.ListenAddr)
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func summarise(name, model string) string {
	if name == "" {
		return "(not configured)"
	}
	if model != "" {
		return name + " / " + model
	}
	return name
}

func printRow(w io.Writer, label, value string) {
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger writes to stderr. The chat REPL owns the terminal, so it only
// sees warnings unless debug logging was asked for.
func newLogger(level config.LogLevel, mode string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	if mode == "chat" && lvl == slog.LevelInfo {
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
