// Package web serves the browser front end of the tutor.
//
// Every browser gets its own conversation engine, keyed by a random session
// cookie. Turns run either as a plain JSON request (POST /api/chat) or over a
// websocket that streams fragments as they are produced (GET /api/stream).
// Generated diagrams are served from the diagrams directory under
// /diagrams/{name}.
package web

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrWong99/chalkboard/internal/conversation"
	"github.com/MrWong99/chalkboard/internal/health"
	"github.com/MrWong99/chalkboard/internal/observe"
	"github.com/MrWong99/chalkboard/pkg/provider/llm"
)

//go:embed index.html
var indexHTML []byte

const (
	defaultSessionTTL = 24 * time.Hour
	maxMessageBytes   = 16 << 10
)

// Sweeper deletes generated diagrams. [diagram.Sweeper] satisfies it.
type Sweeper interface {
	Sweep(maxAge time.Duration) (int, error)
}

// Server is the HTTP front end.
type Server struct {
	sessions   *Sessions
	dir        string
	sweeper    Sweeper
	metrics    *observe.Metrics
	checkers   []health.Checker
	sessionTTL time.Duration
	log        *slog.Logger
}

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithSweeper makes POST /api/clear delete every generated diagram.
func WithSweeper(s Sweeper) Option {
	return func(srv *Server) { srv.sweeper = s }
}

// WithMetrics records HTTP and session metrics into m.
func WithMetrics(m *observe.Metrics) Option {
	return func(srv *Server) { srv.metrics = m }
}

// WithCheckers adds readiness checks to /readyz.
func WithCheckers(cs ...health.Checker) Option {
	return func(srv *Server) { srv.checkers = append(srv.checkers, cs...) }
}

// WithSessionTTL sets how long an idle session is kept. Default: 24h.
func WithSessionTTL(d time.Duration) Option {
	return func(srv *Server) { srv.sessionTTL = d }
}

// WithLogger sets the server logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(srv *Server) { srv.log = l }
}

// New returns a Server creating one engine per session with factory and
// serving diagrams from dir.
func New(factory EngineFactory, dir string, opts ...Option) *Server {
	s := &Server{
		dir:        dir,
		sessionTTL: defaultSessionTTL,
		log:        slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	s.sessions = NewSessions(factory, s.metrics)
	s.log = s.log.With("component", "web")
	return s
}

// Sessions returns the session store.
func (s *Server) Sessions() *Sessions { return s.sessions }

// Handler returns the routed handler wrapped in the observability middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/stream", s.handleStream)
	mux.HandleFunc("POST /api/clear", s.handleClear)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /diagrams/{name}", s.handleDiagram)
	health.New(s.checkers...).Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler())

	if s.metrics == nil {
		return mux
	}
	return observe.Middleware(s.metrics)(mux)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. Idle sessions are expired in the background.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go s.expireLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("web server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutting down web server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}

func (s *Server) expireLoop(ctx context.Context) {
	interval := min(s.sessionTTL, 10*time.Minute)
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.sessions.Expire(ctx, s.sessionTTL); n > 0 {
				s.log.Debug("idle sessions expired", "count", n)
			}
		}
	}
}

// ── Handlers ─────────────────────────────────────────────────────────────────

// handleIndex serves the page and makes sure the browser has a session
// before its first API call.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.sessions.Get(w, r)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply     string   `json:"reply"`
	Artifacts []string `json:"artifacts"`
	Error     string   `json:"error,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, chatResponse{Error: "invalid request body"})
		return
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		writeJSON(w, http.StatusBadRequest, chatResponse{Error: "message is required"})
		return
	}

	e, _ := s.sessions.Get(w, r)
	reply, err := e.Submit(r.Context(), msg)
	resp := chatResponse{Reply: reply.Text, Artifacts: diagramURLs(reply.Artifacts)}
	switch {
	case errors.Is(err, conversation.ErrTurnInProgress):
		resp.Error = err.Error()
		writeJSON(w, http.StatusConflict, resp)
	case err != nil:
		observe.Logger(r.Context()).Warn("chat turn failed", "err", err)
		resp.Error = "Sorry, I encountered an error: " + err.Error()
		writeJSON(w, http.StatusBadGateway, resp)
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if e, ok := s.sessions.Lookup(r); ok {
		e.Clear()
	}
	if s.sweeper != nil {
		if _, err := s.sweeper.Sweep(0); err != nil {
			observe.Logger(r.Context()).Warn("diagram cleanup failed", "err", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

type historyEntry struct {
	Role       string   `json:"role"`
	Content    string   `json:"content"`
	ToolCallID string   `json:"tool_call_id,omitempty"`
	Tools      []string `json:"tools,omitempty"`
}

// handleHistory returns the session's messages after the system message.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	out := []historyEntry{}
	if e, ok := s.sessions.Lookup(r); ok {
		for _, m := range e.History() {
			if m.Role == llm.RoleSystem {
				continue
			}
			he := historyEntry{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
			for _, c := range m.ToolCalls {
				he.Tools = append(he.Tools, c.Name)
			}
			out = append(out, he)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDiagram(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name != filepath.Base(name) || !strings.EqualFold(filepath.Ext(name), ".png") || strings.HasPrefix(name, ".") {
		http.NotFound(w, r)
		return
	}
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, path)
}

// diagramURLs maps artifact paths to the URLs they are served under.
func diagramURLs(paths []string) []string {
	urls := make([]string, 0, len(paths))
	for _, p := range paths {
		urls = append(urls, diagramURL(p))
	}
	return urls
}

func diagramURL(path string) string {
	if path == "" {
		return ""
	}
	return "/diagrams/" + filepath.Base(path)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write json response", "err", err)
	}
}
