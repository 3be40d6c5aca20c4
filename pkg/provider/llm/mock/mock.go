// Package mock provides a scripted test double for the llm.Provider interface.
//
// Responses are consumed in call order: the n-th call to Complete returns
// CompleteResponses[n] (or the last entry once the script is exhausted), and
// the n-th call to StreamCompletion emits StreamScripts[n]. Every call is
// recorded so tests can assert on the requests the engine sent.
//
// Example:
//
//	p := &mock.Provider{
//	    CompleteResponses: []*llm.CompletionResponse{{Content: "Hello!"}},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/chalkboard/pkg/provider/llm"
)

// Call records a single invocation of Complete or StreamCompletion.
type Call struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// CompleteResponses is the script of Complete results, consumed in order.
	// Once exhausted the last entry is repeated. A nil entry yields an empty
	// response.
	CompleteResponses []*llm.CompletionResponse

	// CompleteErr, if non-nil, is returned by every Complete call.
	CompleteErr error

	// CompleteErrors scripts per-call failures: the n-th Complete call fails
	// with CompleteErrors[n] when that entry is non-nil. Calls beyond the
	// slice fall through to CompleteErr and CompleteResponses.
	CompleteErrors []error

	// CompleteGate, if non-nil, makes Complete block until the channel is
	// closed or the call's context is done.
	CompleteGate <-chan struct{}

	// StreamScripts holds one chunk sequence per StreamCompletion call,
	// consumed in order. Once exhausted the last script is repeated.
	StreamScripts [][]llm.Chunk

	// StreamErr, if non-nil, is returned by StreamCompletion instead of a
	// channel.
	StreamErr error

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []Call

	// StreamCalls records every invocation of StreamCompletion in order.
	StreamCalls []Call
}

// Complete records the call and returns the next scripted response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	n := len(p.CompleteCalls)
	p.CompleteCalls = append(p.CompleteCalls, Call{Ctx: ctx, Req: cloneRequest(req)})
	gate := p.CompleteGate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if n < len(p.CompleteErrors) && p.CompleteErrors[n] != nil {
		return nil, p.CompleteErrors[n]
	}
	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	if len(p.CompleteResponses) == 0 {
		return &llm.CompletionResponse{}, nil
	}
	resp := p.CompleteResponses[min(n, len(p.CompleteResponses)-1)]
	if resp == nil {
		return &llm.CompletionResponse{}, nil
	}
	out := *resp
	return &out, nil
}

// StreamCompletion records the call and returns a channel emitting the next
// scripted chunk sequence.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	n := len(p.StreamCalls)
	p.StreamCalls = append(p.StreamCalls, Call{Ctx: ctx, Req: cloneRequest(req)})
	if p.StreamErr != nil {
		err := p.StreamErr
		p.mu.Unlock()
		return nil, err
	}
	var chunks []llm.Chunk
	if len(p.StreamScripts) > 0 {
		chunks = append(chunks, p.StreamScripts[min(n, len(p.StreamScripts)-1)]...)
	}
	p.mu.Unlock()

	ch := make(chan llm.Chunk)
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- c:
			}
		}
	}()
	return ch, nil
}

// Calls returns copies of the recorded Complete and StreamCompletion calls.
func (p *Provider) Calls() (complete, stream []Call) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.CompleteCalls...), append([]Call(nil), p.StreamCalls...)
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
	p.StreamCalls = nil
}

// cloneRequest copies the message slice so later history mutation by the
// caller does not rewrite what was recorded.
func cloneRequest(req llm.CompletionRequest) llm.CompletionRequest {
	req.Messages = append([]llm.Message(nil), req.Messages...)
	req.Tools = append([]llm.ToolDefinition(nil), req.Tools...)
	return req
}

var _ llm.Provider = (*Provider)(nil)
