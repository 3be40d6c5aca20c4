// Package llm defines the Provider interface for chat-completion backends.
//
// A provider wraps a hosted or local model API (GitHub Models, OpenAI,
// Anthropic, a local Ollama instance, ...) and exposes a uniform interface
// the conversation engine uses to request blocking or streamed completions
// with optional tool definitions attached.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends
// or when the supplied context is cancelled.
package llm

import "context"

// FinishReasonError is the FinishReason of the chunk a provider emits when a
// stream fails after it was opened. The chunk's Text carries the error text.
const FinishReasonError = "error"

// Usage holds token accounting returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
type CompletionRequest struct {
	// Messages is the ordered conversation history, system message included.
	Messages []Message

	// Tools is the set of tool definitions offered to the model. When empty
	// the model cannot request tool calls for this request.
	Tools []ToolDefinition

	// Temperature controls sampling randomness in [0.0, 2.0]. Nil leaves the
	// provider default in place; a pointer to 0 asks for greedy sampling.
	Temperature *float64

	// MaxTokens caps the number of completion tokens. Zero means provider
	// default.
	MaxTokens int
}

// Chunk is one fragment of a streamed completion.
type Chunk struct {
	// Text is the incremental text of this chunk. For a chunk whose
	// FinishReason is [FinishReasonError] it holds the error message.
	Text string

	// FinishReason is set on the final chunk: "stop", "length",
	// "tool_calls", or [FinishReasonError].
	FinishReason string

	// ToolCalls holds fully accumulated tool calls. Providers emit them on
	// the final chunk only.
	ToolCalls []ToolCall
}

// CompletionResponse is returned by the blocking Complete method.
type CompletionResponse struct {
	// Content is the reply text. Empty when the model answered only with
	// tool calls.
	Content string

	// ToolCalls lists the tool invocations requested by the model, in the
	// order the model emitted them.
	ToolCalls []ToolCall

	Usage Usage
}

// Provider is the abstraction over any chat-completion backend.
type Provider interface {
	// StreamCompletion sends req and returns a channel emitting chunks as
	// they arrive. The channel is closed when generation finishes or ctx is
	// cancelled.
	//
	// Callers must drain the channel. Errors after the stream opened are
	// delivered as a chunk with FinishReason [FinishReasonError]; the
	// returned error is non-nil only when the stream could not start. The
	// channel is never nil when the error is nil.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req and waits for the whole response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
