// Package conversation implements the tool-calling conversation loop.
//
// An [Engine] owns one ordered message history that always starts with the
// system message. Each turn appends the user's message, asks the model for a
// reply with the diagram tools attached and, when the model requests tools,
// runs them through a [tools.Registry], appends one tool message per request
// and asks the model once more (tools omitted) for the final answer. There is
// at most one tool round per turn.
//
// Turns run either blocking ([Engine.Submit]) or as a pull iterator of
// [Fragment] values ([Engine.SubmitStream]). One turn may be in flight per
// engine; a concurrent turn fails with [ErrTurnInProgress].
//
// History invariants held at every commit point:
//   - the first message is the system message;
//   - every tool message answers a request of the assistant message that
//     immediately precedes the run of tool messages it belongs to;
//   - every tool request is answered exactly once.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/chalkboard/internal/observe"
	"github.com/MrWong99/chalkboard/internal/tools"
	"github.com/MrWong99/chalkboard/pkg/provider/llm"
)

// ErrTurnInProgress is returned when a turn is started while another turn on
// the same engine has not finished.
var ErrTurnInProgress = errors.New("conversation: a turn is already in progress")

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 2000

	// skippedToolText answers tool requests that were not run because the
	// consumer stopped the turn.
	skippedToolText = "Tool call skipped: the turn was cancelled before it ran."

	errorPrefix = "Sorry, I encountered an error: "
)

// Reply is the result of a blocking turn.
type Reply struct {
	// Text is the final assistant text. It may be empty.
	Text string

	// Artifacts lists the files produced by tools during the turn, in
	// request order.
	Artifacts []string
}

// Engine runs conversation turns against an [llm.Provider].
type Engine struct {
	provider     llm.Provider
	providerName string
	registry     *tools.Registry
	systemPrompt string
	temperature  float64
	maxTokens    int
	metrics      *observe.Metrics

	busy atomic.Bool

	mu      sync.Mutex
	history []llm.Message
	// epoch is bumped by Clear so that a turn still in flight cannot write
	// into the fresh history.
	epoch uint64

	// wg tracks background stream drains.
	wg sync.WaitGroup
}

// Option is a functional option for configuring an Engine during construction.
type Option func(*Engine)

// WithSystemPrompt replaces [DefaultSystemPrompt]. An empty string keeps the
// default.
func WithSystemPrompt(p string) Option {
	return func(e *Engine) {
		if p != "" {
			e.systemPrompt = p
		}
	}
}

// WithTemperature sets the sampling temperature. Default: 0.7.
func WithTemperature(t float64) Option {
	return func(e *Engine) { e.temperature = t }
}

// WithMaxTokens caps completion length. Default: 2000.
func WithMaxTokens(n int) Option {
	return func(e *Engine) { e.maxTokens = n }
}

// WithMetrics records LLM latency, provider and turn counters into m.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithProviderName sets the provider label used on metrics. Default: "llm".
func WithProviderName(name string) Option {
	return func(e *Engine) { e.providerName = name }
}

// New returns an engine with a history holding only the system message. A
// nil registry disables tools.
func New(p llm.Provider, reg *tools.Registry, opts ...Option) *Engine {
	e := &Engine{
		provider:     p,
		providerName: "llm",
		registry:     reg,
		systemPrompt: DefaultSystemPrompt,
		temperature:  defaultTemperature,
		maxTokens:    defaultMaxTokens,
	}
	if e.registry == nil {
		e.registry, _ = tools.NewRegistry(nil)
	}
	for _, o := range opts {
		o(e)
	}
	e.history = []llm.Message{llm.SystemMessage(e.systemPrompt)}
	return e
}

// History returns a copy of the conversation history.
func (e *Engine) History() []llm.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]llm.Message(nil), e.history...)
}

// Clear truncates the history to the system message. It is idempotent. A
// turn in flight keeps running but its remaining writes are discarded.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = []llm.Message{e.history[0]}
	e.epoch++
}

// Wait blocks until background stream drains spawned by abandoned streaming
// turns have finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// ─── Blocking turn ────────────────────────────────────────────────────────────

// Submit runs one blocking turn for text.
//
// When the first completion fails nothing is recorded and the error is
// returned, so the caller can resubmit the same text without duplicating it.
// This differs from [Engine.SubmitStream], which has already shown the user
// message and keeps it next to its error fragment. When the follow-up
// completion after a tool round fails, the user message, the assistant tool
// request and the tool messages stay recorded and the error is returned.
func (e *Engine) Submit(ctx context.Context, text string) (reply Reply, err error) {
	if !e.busy.CompareAndSwap(false, true) {
		return Reply{}, ErrTurnInProgress
	}
	defer e.busy.Store(false)

	ctx, span := observe.StartSpan(ctx, "conversation.submit",
		trace.WithAttributes(attribute.String("turn.mode", "blocking")))
	defer func() {
		e.endTurn(ctx, span, "blocking", err)
	}()

	t := e.begin()
	t.msgs = append(t.msgs, llm.UserMessage(text))

	first, err := e.complete(ctx, t.msgs, true)
	if err != nil {
		return Reply{}, fmt.Errorf("conversation: completion: %w", err)
	}

	if len(first.ToolCalls) == 0 {
		e.commit(t, llm.UserMessage(text), assistant(first.Content, nil))
		return Reply{Text: first.Content}, nil
	}

	pending := []llm.Message{llm.UserMessage(text), assistant(first.Content, first.ToolCalls)}
	for _, call := range first.ToolCalls {
		res := e.registry.Invoke(ctx, call)
		pending = append(pending, llm.ToolMessage(call.ID, res.Text))
		if res.Artifact != "" {
			reply.Artifacts = append(reply.Artifacts, res.Artifact)
		}
	}
	e.commit(t, pending...)
	t.msgs = append(t.msgs, pending[1:]...)

	final, err := e.complete(ctx, t.msgs, false)
	if err != nil {
		return reply, fmt.Errorf("conversation: follow-up completion: %w", err)
	}
	e.commit(t, assistant(final.Content, nil))
	reply.Text = final.Content
	return reply, nil
}

// ─── Internals ────────────────────────────────────────────────────────────────

// turn is the engine-side state of one turn: the epoch it started in and the
// messages sent to the model so far.
type turn struct {
	epoch uint64
	msgs  []llm.Message
}

func (e *Engine) begin() *turn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return &turn{epoch: e.epoch, msgs: append([]llm.Message(nil), e.history...)}
}

// commit appends msgs to the history unless Clear ran since the turn began.
func (e *Engine) commit(t *turn, msgs ...llm.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch != t.epoch {
		return
	}
	e.history = append(e.history, msgs...)
}

func (e *Engine) request(msgs []llm.Message, withTools bool) llm.CompletionRequest {
	temperature := e.temperature
	req := llm.CompletionRequest{
		Messages:    msgs,
		Temperature: &temperature,
		MaxTokens:   e.maxTokens,
	}
	if withTools {
		if defs := e.registry.Definitions(); len(defs) > 0 {
			req.Tools = defs
		}
	}
	return req
}

func (e *Engine) complete(ctx context.Context, msgs []llm.Message, withTools bool) (*llm.CompletionResponse, error) {
	start := time.Now()
	resp, err := e.provider.Complete(ctx, e.request(msgs, withTools))
	e.recordProvider(ctx, "complete", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (e *Engine) recordProvider(ctx context.Context, kind string, elapsed time.Duration, err error) {
	if e.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		e.metrics.RecordProviderError(ctx, e.providerName, kind)
	}
	e.metrics.RecordProviderRequest(ctx, e.providerName, kind, status)
	e.metrics.LLMDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("provider", e.providerName),
		attribute.String("kind", kind),
	))
}

func (e *Engine) endTurn(ctx context.Context, span trace.Span, mode string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		observe.FailSpan(span, err)
		observe.Logger(ctx).Warn("turn failed", "mode", mode, "err", err)
	}
	span.End()
	if e.metrics != nil {
		e.metrics.RecordTurn(ctx, mode, status)
	}
}

func assistant(content string, calls []llm.ToolCall) llm.Message {
	return llm.Message{Role: llm.RoleAssistant, Content: content, ToolCalls: calls}
}

// drainChunks discards the rest of ch so the provider goroutine can exit.
func drainChunks(ch <-chan llm.Chunk) {
	for range ch {
	}
}
