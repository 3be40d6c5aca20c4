package anyllm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/chalkboard/pkg/provider/llm"
)

// ── convertMessage ────────────────────────────────────────────────────────────

func TestConvertMessage_PreservesRoleAndContent(t *testing.T) {
	t.Parallel()
	tests := []llm.Message{
		llm.SystemMessage("You are a patient tutor."),
		llm.UserMessage("What is a parabola?"),
		{Role: llm.RoleAssistant, Content: "A U-shaped curve."},
	}
	for _, m := range tests {
		t.Run(m.Role, func(t *testing.T) {
			got := convertMessage(m)
			if got.Role != m.Role {
				t.Errorf("role = %q, want %q", got.Role, m.Role)
			}
			if got.ContentString() != m.Content {
				t.Errorf("content = %q, want %q", got.ContentString(), m.Content)
			}
		})
	}
}

func TestConvertMessage_AssistantWithToolCalls(t *testing.T) {
	t.Parallel()
	got := convertMessage(llm.Message{
		Role: llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{
			{ID: "call_1", Name: "draw_cell_diagram", Arguments: `{"cell_type":"plant"}`},
		},
	})
	if len(got.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(got.ToolCalls))
	}
	tc := got.ToolCalls[0]
	if tc.ID != "call_1" || tc.Type != "function" {
		t.Errorf("tool call = %+v", tc)
	}
	if tc.Function.Name != "draw_cell_diagram" || tc.Function.Arguments != `{"cell_type":"plant"}` {
		t.Errorf("function = %+v", tc.Function)
	}
}

func TestConvertMessage_Tool(t *testing.T) {
	t.Parallel()
	got := convertMessage(llm.ToolMessage("call_1", "Diagram created successfully: /d/plant_cell.png"))
	if got.Role != llm.RoleTool {
		t.Errorf("role = %q, want tool", got.Role)
	}
	if got.ToolCallID != "call_1" {
		t.Errorf("ToolCallID = %q, want call_1", got.ToolCallID)
	}
}

// ── buildParams ───────────────────────────────────────────────────────────────

func TestBuildParams(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "llama3.2"}
	temperature := 0.7
	params := p.buildParams(llm.CompletionRequest{
		Messages:    []llm.Message{llm.SystemMessage("s"), llm.UserMessage("u")},
		Tools:       []llm.ToolDefinition{{Name: "draw_triangle", Description: "d", Parameters: map[string]any{"type": "object"}}},
		Temperature: &temperature,
		MaxTokens:   2000,
	})
	if params.Model != "llama3.2" {
		t.Errorf("model = %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Errorf("messages = %d, want 2", len(params.Messages))
	}
	if params.Temperature == nil || *params.Temperature != 0.7 {
		t.Errorf("temperature = %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 2000 {
		t.Errorf("max tokens = %v", params.MaxTokens)
	}
	if len(params.Tools) != 1 || params.Tools[0].Function.Name != "draw_triangle" {
		t.Errorf("tools = %+v", params.Tools)
	}
}

func TestBuildParams_ExplicitZeroTemperature(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "m"}
	zero := 0.0
	params := p.buildParams(llm.CompletionRequest{
		Messages:    []llm.Message{llm.UserMessage("u")},
		Temperature: &zero,
	})
	if params.Temperature == nil || *params.Temperature != 0 {
		t.Errorf("temperature = %v, want pointer to 0", params.Temperature)
	}
}

func TestBuildParams_ZeroValuesOmitted(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "m"}
	params := p.buildParams(llm.CompletionRequest{Messages: []llm.Message{llm.UserMessage("u")}})
	if params.Temperature != nil {
		t.Error("temperature should be nil")
	}
	if params.MaxTokens != nil {
		t.Error("max tokens should be nil")
	}
	if len(params.Tools) != 0 {
		t.Error("tools should be empty")
	}
}

// ── New ───────────────────────────────────────────────────────────────────────

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New("", "m"); err == nil {
		t.Error("expected error for empty backend")
	}
	if _, err := New("openai", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("fakecloud", "m", anyllmlib.WithAPIKey("k")); err == nil {
		t.Error("expected error for unsupported backend")
	}
}

func TestNew_Backends(t *testing.T) {
	tests := []struct {
		backend string
		opts    []anyllmlib.Option
	}{
		{"openai", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-test")}},
		{"anthropic", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-ant-test")}},
		{"ollama", nil},
		{"llamacpp", nil},
		{"llamafile", nil},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			p, err := New(tt.backend, "some-model", tt.opts...)
			if err != nil {
				t.Fatalf("New(%q): %v", tt.backend, err)
			}
			if p.model != "some-model" {
				t.Errorf("model = %q", p.model)
			}
		})
	}
}

func TestNew_OpenAIMissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New("openai", "gpt-4o"); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

// ── Timeout ───────────────────────────────────────────────────────────────────

func TestComplete_TimeoutBoundsRequest(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	p, err := New("llamacpp", "m", anyllmlib.WithBaseURL(srv.URL+"/v1"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.SetTimeout(50 * time.Millisecond)

	start := time.Now()
	_, err = p.Complete(context.Background(), llm.CompletionRequest{Messages: []llm.Message{llm.UserMessage("hi")}})
	if err == nil {
		t.Fatal("Complete against a stalled server: want error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Complete returned after %s, want the 50ms timeout to apply", elapsed)
	}
}

func TestRequestContext(t *testing.T) {
	t.Parallel()
	p := &Provider{}
	ctx, cancel := p.requestContext(context.Background())
	if _, ok := ctx.Deadline(); ok {
		t.Error("no timeout configured: want no deadline")
	}
	cancel()

	p.SetTimeout(time.Minute)
	ctx, cancel = p.requestContext(context.Background())
	defer cancel()
	if d, ok := ctx.Deadline(); !ok || time.Until(d) > time.Minute {
		t.Errorf("deadline = %v, %v; want within a minute", d, ok)
	}
}
