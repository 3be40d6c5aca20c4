package conversation

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/chalkboard/internal/observe"
	"github.com/MrWong99/chalkboard/pkg/provider/llm"
)

// FragmentKind tells a consumer how to present a [Fragment].
type FragmentKind int

const (
	// FragmentText is assistant text: the whole reply of a tool-less turn,
	// or one chunk of the follow-up stream.
	FragmentText FragmentKind = iota

	// FragmentToolNotice announces a tool run before it starts.
	FragmentToolNotice

	// FragmentToolResult carries the outcome of one tool run.
	FragmentToolResult

	// FragmentError is terminal: nothing follows it.
	FragmentError
)

// String returns the wire name of the kind.
func (k FragmentKind) String() string {
	switch k {
	case FragmentText:
		return "text"
	case FragmentToolNotice:
		return "tool_notice"
	case FragmentToolResult:
		return "tool_result"
	case FragmentError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText lets fragments encode their kind by name.
func (k FragmentKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Fragment is one piece of a streamed turn.
type Fragment struct {
	Kind FragmentKind `json:"kind"`

	// Text is the displayable text of the fragment.
	Text string `json:"text"`

	// Tool names the tool for notice and result fragments.
	Tool string `json:"tool,omitempty"`

	// Artifact is the produced file of a successful tool result.
	Artifact string `json:"artifact,omitempty"`

	// Err is the cause of an error fragment.
	Err error `json:"-"`
}

// SubmitStream returns an iterator that runs one turn for text when ranged
// over. Every range starts a new turn.
//
// The user message is recorded first. The initial completion is blocking; a
// tool-less reply is yielded as a single text fragment. With tool requests,
// each request yields a notice and then a result fragment, after which the
// follow-up reply is streamed chunk by chunk and recorded as the final
// assistant message once complete.
//
// Failures never escape as panics or lost state: a failed initial completion
// yields one error fragment and leaves only the user message recorded; a
// failed or cancelled follow-up yields one error fragment whose text is also
// recorded as the assistant message. When the consumer stops early, tool
// requests that have not been answered get a "skipped" tool message and a
// partially read follow-up is drained in the background and its text so far
// recorded.
//
// A concurrent turn yields a single error fragment wrapping
// [ErrTurnInProgress] and records nothing.
func (e *Engine) SubmitStream(ctx context.Context, text string) iter.Seq[Fragment] {
	return func(yield func(Fragment) bool) {
		if !e.busy.CompareAndSwap(false, true) {
			yield(Fragment{Kind: FragmentError, Text: errorPrefix + ErrTurnInProgress.Error(), Err: ErrTurnInProgress})
			return
		}
		defer e.busy.Store(false)

		ctx, span := observe.StartSpan(ctx, "conversation.stream",
			trace.WithAttributes(attribute.String("turn.mode", "stream")))
		var turnErr error
		defer func() { e.endTurn(ctx, span, "stream", turnErr) }()

		turnErr = e.stream(ctx, text, yield)
	}
}

// stream runs the streaming turn and returns the error reported to the
// consumer, if any.
func (e *Engine) stream(ctx context.Context, text string, yield func(Fragment) bool) error {
	t := e.begin()
	user := llm.UserMessage(text)
	t.msgs = append(t.msgs, user)
	e.commit(t, user)

	first, err := e.complete(ctx, t.msgs, true)
	if err != nil {
		yield(errorFragment(err))
		return err
	}

	if len(first.ToolCalls) == 0 {
		e.commit(t, assistant(first.Content, nil))
		yield(Fragment{Kind: FragmentText, Text: first.Content})
		return nil
	}

	req := assistant(first.Content, first.ToolCalls)
	e.commit(t, req)
	t.msgs = append(t.msgs, req)

	for i, call := range first.ToolCalls {
		if err := ctx.Err(); err != nil {
			e.skip(t, first.ToolCalls[i:])
			return e.fail(t, err, yield)
		}
		if !yield(Fragment{Kind: FragmentToolNotice, Text: "Creating diagram: " + call.Name + "...", Tool: call.Name}) {
			e.skip(t, first.ToolCalls[i:])
			return nil
		}

		res := e.registry.Invoke(ctx, call)
		msg := llm.ToolMessage(call.ID, res.Text)
		e.commit(t, msg)
		t.msgs = append(t.msgs, msg)

		if !yield(Fragment{Kind: FragmentToolResult, Text: res.Text, Tool: call.Name, Artifact: res.Artifact}) {
			e.skip(t, first.ToolCalls[i+1:])
			return nil
		}
	}

	return e.followUp(ctx, t, yield)
}

// followUp streams the final reply with tools omitted.
func (e *Engine) followUp(ctx context.Context, t *turn, yield func(Fragment) bool) error {
	if err := ctx.Err(); err != nil {
		return e.fail(t, err, yield)
	}

	start := time.Now()
	ch, err := e.provider.StreamCompletion(ctx, e.request(t.msgs, false))
	e.recordProvider(ctx, "stream", time.Since(start), err)
	if err != nil {
		return e.fail(t, err, yield)
	}

	var buf strings.Builder
	for {
		select {
		case <-ctx.Done():
			e.abandon(ch)
			return e.fail(t, ctx.Err(), yield)

		case chunk, ok := <-ch:
			if !ok {
				// Providers close the channel on cancellation too.
				if err := ctx.Err(); err != nil {
					return e.fail(t, err, yield)
				}
				e.commit(t, assistant(buf.String(), nil))
				return nil
			}
			if chunk.FinishReason == llm.FinishReasonError {
				e.abandon(ch)
				if e.metrics != nil {
					e.metrics.RecordProviderError(ctx, e.providerName, "stream")
				}
				return e.fail(t, fmt.Errorf("stream: %s", chunk.Text), yield)
			}
			if chunk.Text != "" {
				buf.WriteString(chunk.Text)
				if !yield(Fragment{Kind: FragmentText, Text: chunk.Text}) {
					e.abandon(ch)
					e.commit(t, assistant(buf.String(), nil))
					return nil
				}
			}
		}
	}
}

// fail records the error text as the final assistant message and yields it
// as a terminal fragment.
func (e *Engine) fail(t *turn, err error, yield func(Fragment) bool) error {
	f := errorFragment(err)
	e.commit(t, assistant(f.Text, nil))
	yield(f)
	return err
}

// skip answers calls with a skipped tool message each.
func (e *Engine) skip(t *turn, calls []llm.ToolCall) {
	if len(calls) == 0 {
		return
	}
	msgs := make([]llm.Message, 0, len(calls))
	for _, c := range calls {
		msgs = append(msgs, llm.ToolMessage(c.ID, skippedToolText))
	}
	e.commit(t, msgs...)
}

// abandon drains ch in the background.
func (e *Engine) abandon(ch <-chan llm.Chunk) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		drainChunks(ch)
	}()
}

func errorFragment(err error) Fragment {
	return Fragment{Kind: FragmentError, Text: errorPrefix + err.Error(), Err: err}
}
