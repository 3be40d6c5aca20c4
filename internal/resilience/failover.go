package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/chalkboard/internal/observe"
	"github.com/MrWong99/chalkboard/pkg/provider/llm"
)

// ErrAllFailed is returned when every backend of a [Failover] failed or had
// an open breaker.
var ErrAllFailed = errors.New("resilience: all llm backends failed")

// ErrAllOpen is reported by [Failover.Ready] while every breaker is open.
var ErrAllOpen = errors.New("resilience: every llm backend breaker is open")

// Backend is one named provider in a [Failover].
type Backend struct {
	Name     string
	Provider llm.Provider
}

type guarded struct {
	Backend
	breaker *Breaker
}

// Failover implements [llm.Provider] by trying its backends in order. Each
// backend has its own [Breaker]; an open breaker skips the backend without
// calling it.
//
// Only the start of a stream is covered: once StreamCompletion has returned a
// channel, errors inside the stream belong to the caller.
type Failover struct {
	backends []guarded
	metrics  *observe.Metrics
}

// Option configures a [Failover].
type Option func(*Failover)

// WithMetrics counts every backend failure that caused a failover.
func WithMetrics(m *observe.Metrics) Option {
	return func(f *Failover) { f.metrics = m }
}

var _ llm.Provider = (*Failover)(nil)

// NewFailover returns a Failover over backends, tried in the given order.
// cfg tunes every backend's breaker; its Name is replaced by the backend
// name.
func NewFailover(cfg BreakerConfig, backends []Backend, opts ...Option) (*Failover, error) {
	if len(backends) == 0 {
		return nil, errors.New("resilience: at least one backend is required")
	}
	f := &Failover{}
	for _, b := range backends {
		if b.Provider == nil {
			return nil, fmt.Errorf("resilience: backend %q has no provider", b.Name)
		}
		bc := cfg
		bc.Name = b.Name
		f.backends = append(f.backends, guarded{Backend: b, breaker: NewBreaker(bc)})
	}
	for _, o := range opts {
		o(f)
	}
	return f, nil
}

// Names returns the backend names in failover order.
func (f *Failover) Names() []string {
	names := make([]string, len(f.backends))
	for i, b := range f.backends {
		names[i] = b.Name
	}
	return names
}

// Ready returns nil while at least one backend would be tried, and an error
// wrapping [ErrAllOpen] otherwise. A breaker whose reset timeout has passed
// counts as available.
func (f *Failover) Ready(context.Context) error {
	open := make([]string, 0, len(f.backends))
	for _, b := range f.backends {
		if b.breaker.State() != StateOpen {
			return nil
		}
		open = append(open, b.Name)
	}
	return fmt.Errorf("%w: %s", ErrAllOpen, strings.Join(open, ", "))
}

// Complete implements [llm.Provider].
func (f *Failover) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return try(ctx, f, "complete", func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// StreamCompletion implements [llm.Provider].
func (f *Failover) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return try(ctx, f, "stream", func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// try runs fn against each backend until one succeeds. A done ctx stops the
// walk immediately.
func try[R any](ctx context.Context, f *Failover, kind string, fn func(llm.Provider) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for i := range f.backends {
		b := &f.backends[i]
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		var out R
		err := b.breaker.Execute(func() error {
			var callErr error
			out, callErr = fn(b.Provider)
			return callErr
		})
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}

		errs = append(errs, fmt.Errorf("%s: %w", b.Name, err))
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping llm backend, circuit open", "backend", b.Name)
			continue
		}
		slog.Warn("llm backend failed, trying next", "backend", b.Name, "kind", kind, "err", err)
		if f.metrics != nil {
			f.metrics.RecordProviderError(ctx, b.Name, kind)
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
