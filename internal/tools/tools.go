// Package tools defines the [Tool] type and the [Registry] that dispatches
// model tool requests to in-process handlers.
//
// The registry is the boundary between the conversation loop and the diagram
// renderers: [Registry.Invoke] always produces a [Result] whose Text can be
// handed straight back to the model, and never fails out of its boundary.
// Bad arguments, handler errors and even handler panics are folded into the
// failure text.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/chalkboard/internal/observe"
	"github.com/MrWong99/chalkboard/pkg/provider/llm"
)

// Handler runs a tool with its JSON object arguments and returns the path of
// the artifact it produced. Implementations must be safe for concurrent use.
type Handler func(ctx context.Context, args json.RawMessage) (artifact string, err error)

// Tool pairs the descriptor advertised to the model with its handler.
type Tool struct {
	// Definition is the tool's LLM-facing schema including its name,
	// description and JSON Schema for its parameters.
	Definition llm.ToolDefinition

	// Handler executes the tool.
	Handler Handler
}

// Result is the outcome of one tool request.
type Result struct {
	// CallID echoes the id of the request this result answers.
	CallID string

	// Tool is the requested tool name.
	Tool string

	// Text is the description returned to the model; it embeds Artifact on
	// success and the error message on failure.
	Text string

	// Artifact is the absolute path of the produced file, empty on failure.
	Artifact string

	// Err is the underlying failure, nil on success.
	Err error
}

// OK reports whether the tool produced an artifact.
func (r Result) OK() bool { return r.Err == nil }

// ErrUnknownTool is the Result.Err of a request naming an unregistered tool.
var ErrUnknownTool = errors.New("tools: unknown tool")

// Result texts.
const (
	successPrefix = "Diagram created successfully: "
	failurePrefix = "Error creating diagram: "
	unknownPrefix = "Unknown tool: "
)

// Registry is an immutable name → tool table. It is safe for concurrent use.
type Registry struct {
	tools   map[string]Tool
	order   []string
	metrics *observe.Metrics
}

// Option configures a [Registry].
type Option func(*Registry)

// WithMetrics records tool latency and outcome counters into m.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry builds a registry from ts. Tool names must be non-empty and
// unique, and every tool needs a handler.
func NewRegistry(ts []Tool, opts ...Option) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(ts))}
	var errs []error
	for _, t := range ts {
		name := t.Definition.Name
		switch {
		case name == "":
			errs = append(errs, errors.New("tools: tool with empty name"))
			continue
		case t.Handler == nil:
			errs = append(errs, fmt.Errorf("tools: tool %q has no handler", name))
			continue
		}
		if _, dup := r.tools[name]; dup {
			errs = append(errs, fmt.Errorf("tools: duplicate tool %q", name))
			continue
		}
		r.tools[name] = t
		r.order = append(r.order, name)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Definitions returns the tool descriptors in registration order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition)
	}
	return defs
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Invoke runs the tool named by call. An empty argument payload is treated
// as an empty object. The returned Result always carries a Text suitable for
// a tool message.
func (r *Registry) Invoke(ctx context.Context, call llm.ToolCall) Result {
	res := Result{CallID: call.ID, Tool: call.Name}

	t, ok := r.tools[call.Name]
	if !ok {
		res.Err = fmt.Errorf("%w %q", ErrUnknownTool, call.Name)
		res.Text = unknownPrefix + call.Name
		r.record(ctx, call.Name, "unknown", 0)
		return res
	}

	ctx, span := observe.StartSpan(ctx, "tool "+call.Name,
		trace.WithAttributes(attribute.String("tool.name", call.Name)))
	defer span.End()

	start := time.Now()
	artifact, err := r.run(ctx, t.Handler, call.Arguments)
	elapsed := time.Since(start)

	if err != nil {
		observe.FailSpan(span, err)
		res.Err = err
		res.Text = failurePrefix + err.Error()
		r.record(ctx, call.Name, "error", elapsed)
		observe.Logger(ctx).Warn("tool failed", "tool", call.Name, "err", err)
		return res
	}

	res.Artifact = artifact
	res.Text = successPrefix + artifact
	r.record(ctx, call.Name, "ok", elapsed)
	observe.Logger(ctx).Debug("tool succeeded", "tool", call.Name, "artifact", artifact, "duration", elapsed)
	return res
}

// run hands the handler a syntactically valid JSON payload and turns a
// handler panic into an error.
func (r *Registry) run(ctx context.Context, h Handler, raw string) (artifact string, err error) {
	args := json.RawMessage(raw)
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if !json.Valid(args) {
		return "", fmt.Errorf("invalid arguments: malformed JSON %q", truncate(raw, 80))
	}

	defer func() {
		if p := recover(); p != nil {
			slog.Error("tool handler panicked", "panic", p)
			artifact, err = "", fmt.Errorf("internal error: %v", p)
		}
	}()
	return h(ctx, args)
}

func (r *Registry) record(ctx context.Context, name, status string, elapsed time.Duration) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordToolCall(ctx, name, status)
	if status != "unknown" {
		r.metrics.ToolExecutionDuration.Record(ctx, elapsed.Seconds(),
			metric.WithAttributes(attribute.String("tool", name)))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
