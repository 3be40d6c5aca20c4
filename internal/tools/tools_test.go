package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/chalkboard/internal/observe"
	"github.com/MrWong99/chalkboard/pkg/provider/llm"
)

// ─────────────────────────────────────────────────────────────────────────────
// helpers
// ─────────────────────────────────────────────────────────────────────────────

func stubTool(name string, h Handler) Tool {
	return Tool{
		Definition: llm.ToolDefinition{
			Name:        name,
			Description: "stub " + name,
			Parameters:  map[string]any{"type": "object"},
		},
		Handler: h,
	}
}

// echoPath returns "/diagrams/<x>.png" built from the "x" argument.
func echoPath(_ context.Context, args json.RawMessage) (string, error) {
	var a struct {
		X string `json:"x"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return "", err
	}
	return "/diagrams/" + a.X + ".png", nil
}

func mustRegistry(t *testing.T, ts ...Tool) *Registry {
	t.Helper()
	r, err := NewRegistry(ts)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

// ─────────────────────────────────────────────────────────────────────────────
// construction
// ─────────────────────────────────────────────────────────────────────────────

func TestNewRegistry_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		tools []Tool
		want  string
	}{
		{"empty name", []Tool{stubTool("", echoPath)}, "empty name"},
		{"nil handler", []Tool{stubTool("a", nil)}, `"a" has no handler`},
		{"duplicate", []Tool{stubTool("a", echoPath), stubTool("a", echoPath)}, `duplicate tool "a"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewRegistry(tt.tools)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestDefinitions_PreservesOrder(t *testing.T) {
	t.Parallel()
	r := mustRegistry(t, stubTool("zeta", echoPath), stubTool("alpha", echoPath), stubTool("mid", echoPath))

	var names []string
	for _, d := range r.Definitions() {
		names = append(names, d.Name)
	}
	if got := strings.Join(names, ","); got != "zeta,alpha,mid" {
		t.Errorf("definition order = %s, want zeta,alpha,mid", got)
	}
	if len(r.Tools()) != 3 {
		t.Errorf("Tools() len = %d, want 3", len(r.Tools()))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Invoke
// ─────────────────────────────────────────────────────────────────────────────

func TestInvoke(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	r := mustRegistry(t,
		stubTool("echo", echoPath),
		stubTool("fail", func(context.Context, json.RawMessage) (string, error) { return "", boom }),
		stubTool("panic", func(context.Context, json.RawMessage) (string, error) { panic("kaput") }),
		stubTool("args", func(_ context.Context, args json.RawMessage) (string, error) { return string(args), nil }),
	)

	tests := []struct {
		name         string
		call         llm.ToolCall
		wantText     string
		wantArtifact string
		wantErr      bool
	}{
		{
			name:         "success embeds artifact",
			call:         llm.ToolCall{ID: "c1", Name: "echo", Arguments: `{"x":"plot"}`},
			wantText:     "Diagram created successfully: /diagrams/plot.png",
			wantArtifact: "/diagrams/plot.png",
		},
		{
			name:     "handler error",
			call:     llm.ToolCall{ID: "c2", Name: "fail", Arguments: `{}`},
			wantText: "Error creating diagram: boom",
			wantErr:  true,
		},
		{
			name:     "malformed JSON",
			call:     llm.ToolCall{ID: "c3", Name: "echo", Arguments: `{"x":`},
			wantText: "Error creating diagram: invalid arguments",
			wantErr:  true,
		},
		{
			name:     "unknown tool",
			call:     llm.ToolCall{ID: "c4", Name: "draw_hexagon", Arguments: `{}`},
			wantText: "Unknown tool: draw_hexagon",
			wantErr:  true,
		},
		{
			name:     "handler panic",
			call:     llm.ToolCall{ID: "c5", Name: "panic"},
			wantText: "Error creating diagram: internal error: kaput",
			wantErr:  true,
		},
		{
			name:         "empty payload becomes object",
			call:         llm.ToolCall{ID: "c6", Name: "args", Arguments: ""},
			wantText:     "Diagram created successfully: {}",
			wantArtifact: "{}",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := r.Invoke(context.Background(), tt.call)
			if !strings.HasPrefix(res.Text, tt.wantText) {
				t.Errorf("Text = %q, want prefix %q", res.Text, tt.wantText)
			}
			if res.Artifact != tt.wantArtifact {
				t.Errorf("Artifact = %q, want %q", res.Artifact, tt.wantArtifact)
			}
			if (res.Err != nil) != tt.wantErr || res.OK() == tt.wantErr {
				t.Errorf("Err = %v, wantErr %v", res.Err, tt.wantErr)
			}
			if res.CallID != tt.call.ID || res.Tool != tt.call.Name {
				t.Errorf("result ids = (%q, %q), want (%q, %q)", res.CallID, res.Tool, tt.call.ID, tt.call.Name)
			}
		})
	}
}

func TestInvoke_UnknownToolSentinel(t *testing.T) {
	t.Parallel()
	res := mustRegistry(t).Invoke(context.Background(), llm.ToolCall{Name: "nope"})
	if !errors.Is(res.Err, ErrUnknownTool) {
		t.Errorf("Err = %v, want ErrUnknownTool", res.Err)
	}
	if !strings.Contains(res.Text, "Unknown tool") {
		t.Errorf("Text = %q, want Unknown tool", res.Text)
	}
}

func TestInvoke_Concurrent(t *testing.T) {
	t.Parallel()
	r := mustRegistry(t, stubTool("echo", echoPath))

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			x := strings.Repeat("a", i+1)
			res := r.Invoke(context.Background(), llm.ToolCall{Name: "echo", Arguments: `{"x":"` + x + `"}`})
			if res.Artifact != "/diagrams/"+x+".png" {
				t.Errorf("Artifact = %q", res.Artifact)
			}
		}()
	}
	wg.Wait()
}

func TestInvoke_RecordsMetrics(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}

	r, err := NewRegistry([]Tool{stubTool("echo", echoPath)}, WithMetrics(m))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	r.Invoke(ctx, llm.ToolCall{Name: "echo", Arguments: `{"x":"a"}`})
	r.Invoke(ctx, llm.ToolCall{Name: "echo", Arguments: `nope`})
	r.Invoke(ctx, llm.ToolCall{Name: "missing"})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatal(err)
	}
	got := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "chalkboard.tool.calls" {
				continue
			}
			for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
				v, _ := dp.Attributes.Value("status")
				got[v.AsString()] += dp.Value
			}
		}
	}
	for status, want := range map[string]int64{"ok": 1, "error": 1, "unknown": 1} {
		if got[status] != want {
			t.Errorf("tool calls with status %q = %d, want %d", status, got[status], want)
		}
	}
}
