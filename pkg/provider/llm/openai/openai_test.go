package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/chalkboard/pkg/provider/llm"
)

// ── convertMessage ────────────────────────────────────────────────────────────

func TestConvertMessage_Roles(t *testing.T) {
	t.Parallel()

	sys, err := convertMessage(llm.SystemMessage("You are a tutor."))
	if err != nil || sys.OfSystem == nil {
		t.Fatalf("system: OfSystem not set (err=%v)", err)
	}
	usr, err := convertMessage(llm.UserMessage("Hello!"))
	if err != nil || usr.OfUser == nil {
		t.Fatalf("user: OfUser not set (err=%v)", err)
	}
	asst, err := convertMessage(llm.Message{Role: llm.RoleAssistant, Content: "Hi"})
	if err != nil || asst.OfAssistant == nil {
		t.Fatalf("assistant: OfAssistant not set (err=%v)", err)
	}
}

func TestConvertMessage_AssistantWithToolCalls(t *testing.T) {
	t.Parallel()
	msg := llm.Message{
		Role: llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{
			{ID: "call_1", Name: "plot_linear_function", Arguments: `{"m":2,"c":3}`},
		},
	}
	p, err := convertMessage(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.OfAssistant == nil {
		t.Fatal("expected OfAssistant to be set")
	}
	if len(p.OfAssistant.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(p.OfAssistant.ToolCalls))
	}
	tc := p.OfAssistant.ToolCalls[0]
	if tc.ID != "call_1" || tc.Function.Name != "plot_linear_function" {
		t.Errorf("tool call = %+v", tc)
	}
	if tc.Function.Arguments != `{"m":2,"c":3}` {
		t.Errorf("arguments = %s", tc.Function.Arguments)
	}
}

func TestConvertMessage_Tool(t *testing.T) {
	t.Parallel()
	p, err := convertMessage(llm.ToolMessage("call_1", "Diagram created successfully: /tmp/x.png"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.OfTool == nil {
		t.Fatal("expected OfTool to be set")
	}
	if p.OfTool.ToolCallID != "call_1" {
		t.Errorf("ToolCallID = %s, want call_1", p.OfTool.ToolCallID)
	}
}

func TestConvertMessage_UnknownRole(t *testing.T) {
	t.Parallel()
	if _, err := convertMessage(llm.Message{Role: "narrator"}); err == nil {
		t.Fatal("expected error for unknown role, got nil")
	}
}

// ── New ───────────────────────────────────────────────────────────────────────

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New("", "m"); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestNew_DefaultModel(t *testing.T) {
	t.Parallel()
	p, err := New("token", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Model() != DefaultModel {
		t.Errorf("Model() = %q, want %q", p.Model(), DefaultModel)
	}
}

// ── buildParams ───────────────────────────────────────────────────────────────

func TestBuildParams_ToolChoiceOnlyWithTools(t *testing.T) {
	t.Parallel()
	p, _ := New("token", "m")

	withTools, err := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{llm.UserMessage("hi")},
		Tools:    []llm.ToolDefinition{{Name: "t", Parameters: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if !withTools.ToolChoice.OfAuto.Valid() || withTools.ToolChoice.OfAuto.Value != "auto" {
		t.Errorf("tool choice not set to auto")
	}
	if len(withTools.Tools) != 1 {
		t.Errorf("tools = %d, want 1", len(withTools.Tools))
	}

	noTools, err := p.buildParams(llm.CompletionRequest{Messages: []llm.Message{llm.UserMessage("hi")}})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if noTools.ToolChoice.OfAuto.Valid() {
		t.Error("tool choice must be omitted when no tools are offered")
	}
}

func TestBuildParams_Temperature(t *testing.T) {
	t.Parallel()
	p, _ := New("token", "m")
	zero := 0.0
	tests := []struct {
		name      string
		temp      *float64
		wantValid bool
	}{
		{"unset uses provider default", nil, false},
		{"explicit zero is sent", &zero, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			params, err := p.buildParams(llm.CompletionRequest{
				Messages:    []llm.Message{llm.UserMessage("hi")},
				Temperature: tc.temp,
			})
			if err != nil {
				t.Fatalf("buildParams: %v", err)
			}
			if got := params.Temperature.Valid(); got != tc.wantValid {
				t.Fatalf("temperature set = %v, want %v", got, tc.wantValid)
			}
			if tc.wantValid && params.Temperature.Value != 0 {
				t.Errorf("temperature = %v, want 0", params.Temperature.Value)
			}
		})
	}
}

func TestBuildParams_RejectsUnknownRole(t *testing.T) {
	t.Parallel()
	p, _ := New("token", "m")
	_, err := p.buildParams(llm.CompletionRequest{Messages: []llm.Message{{Role: "bogus"}}})
	if err == nil {
		t.Fatal("expected error")
	}
}

// ── HTTP round trips ──────────────────────────────────────────────────────────

// newServer starts a fake chat completions endpoint. handler receives the
// decoded request body.
func newServer(t *testing.T, handler func(w http.ResponseWriter, body map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			http.Error(w, "bad auth "+got, http.StatusUnauthorized)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		handler(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestComplete_ToolCalls(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		gotBody map[string]any
	)
	srv := newServer(t, func(w http.ResponseWriter, body map[string]any) {
		mu.Lock()
		gotBody = body
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "cmpl-1", "object": "chat.completion", "created": 1, "model": "m",
			"choices": [{
				"index": 0, "finish_reason": "tool_calls",
				"message": {"role": "assistant", "content": null, "tool_calls": [
					{"id": "call_1", "type": "function",
					 "function": {"name": "plot_quadratic_function", "arguments": "{\"a\":1,\"b\":-5,\"c\":6}"}}
				]}
			}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`)
	})

	p, err := New("token", "m", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	temperature := 0.7
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages:    []llm.Message{llm.SystemMessage("sys"), llm.UserMessage("draw")},
		Tools:       []llm.ToolDefinition{{Name: "plot_quadratic_function", Parameters: map[string]any{"type": "object"}}},
		Temperature: &temperature,
		MaxTokens:   2000,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].ID != "call_1" || resp.ToolCalls[0].Name != "plot_quadratic_function" {
		t.Errorf("tool call = %+v", resp.ToolCalls[0])
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("total tokens = %d, want 15", resp.Usage.TotalTokens)
	}
	mu.Lock()
	defer mu.Unlock()
	if gotBody["tool_choice"] != "auto" {
		t.Errorf("tool_choice = %v, want auto", gotBody["tool_choice"])
	}
	if gotBody["max_tokens"] != float64(2000) {
		t.Errorf("max_tokens = %v, want 2000", gotBody["max_tokens"])
	}
}

func TestComplete_ServerErrorNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, _ map[string]any) {
		calls.Add(1)
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	})

	p, _ := New("token", "m", WithBaseURL(srv.URL))
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{llm.UserMessage("hi")},
	}); err == nil {
		t.Fatal("expected error")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server called %d times, want 1", n)
	}
}

func TestStreamCompletion_Text(t *testing.T) {
	t.Parallel()

	srv := newServer(t, func(w http.ResponseWriter, _ map[string]any) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"The ", "vertex ", "is (2.5, -0.25)."} {
			fmt.Fprintf(w, "data: {\"id\":\"c\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q},\"finish_reason\":null}]}\n\n", part)
		}
		fmt.Fprint(w, "data: {\"id\":\"c\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	p, _ := New("token", "m", WithBaseURL(srv.URL))
	ch, err := p.StreamCompletion(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{llm.UserMessage("hi")},
	})
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}

	var sb strings.Builder
	var finish string
	for c := range ch {
		sb.WriteString(c.Text)
		if c.FinishReason != "" {
			finish = c.FinishReason
		}
	}
	if sb.String() != "The vertex is (2.5, -0.25)." {
		t.Errorf("text = %q", sb.String())
	}
	if finish != "stop" {
		t.Errorf("finish = %q, want stop", finish)
	}
}

// ── toolCallAccumulator ───────────────────────────────────────────────────────

func TestToolCallAccumulator_MergesFragments(t *testing.T) {
	t.Parallel()
	a := newToolCallAccumulator()
	a.add(0, "call_1", "plot_linear_function", `{"m":`)
	a.add(1, "call_2", "draw_triangle", `{"triangle_type":"right"}`)
	a.add(0, "", "", `2,"c":3}`)

	got := a.calls()
	if len(got) != 2 {
		t.Fatalf("calls = %d, want 2", len(got))
	}
	if got[0].Arguments != `{"m":2,"c":3}` {
		t.Errorf("call 0 args = %s", got[0].Arguments)
	}
	if got[1].ID != "call_2" {
		t.Errorf("call 1 id = %s", got[1].ID)
	}
}
