package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/chalkboard/internal/conversation"
	"github.com/MrWong99/chalkboard/pkg/provider/llm"
	"github.com/MrWong99/chalkboard/pkg/provider/llm/mock"
)

// ── fakes ────────────────────────────────────────────────────────────────────

type fakeConversation struct {
	mu        sync.Mutex
	inputs    []string
	clears    int
	fragments []conversation.Fragment
}

func (f *fakeConversation) SubmitStream(_ context.Context, text string) iter.Seq[conversation.Fragment] {
	return func(yield func(conversation.Fragment) bool) {
		f.mu.Lock()
		f.inputs = append(f.inputs, text)
		frags := f.fragments
		f.mu.Unlock()
		for _, fr := range frags {
			if !yield(fr) {
				return
			}
		}
	}
}

func (f *fakeConversation) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
}

type fakeSweeper struct {
	ages []time.Duration
	err  error
}

func (s *fakeSweeper) Sweep(maxAge time.Duration) (int, error) {
	s.ages = append(s.ages, maxAge)
	return 2, s.err
}

func runREPL(t *testing.T, conv Conversation, sw Sweeper, input string) string {
	t.Helper()
	var out bytes.Buffer
	l := New(conv, sw, WithInput(strings.NewReader(input)), WithOutput(&out))
	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out.String()
}

// ── commands ─────────────────────────────────────────────────────────────────

func TestRun_QuitCommands(t *testing.T) {
	t.Parallel()

	for _, cmd := range []string{"quit", "exit", "bye", "  QUIT  ", "Bye"} {
		t.Run(cmd, func(t *testing.T) {
			t.Parallel()
			conv := &fakeConversation{}
			out := runREPL(t, conv, nil, cmd+"\nnever sent\n")
			if !strings.Contains(out, "Goodbye! Keep learning!") {
				t.Errorf("output missing goodbye:\n%s", out)
			}
			if len(conv.inputs) != 0 {
				t.Errorf("inputs = %v, want none after quit", conv.inputs)
			}
		})
	}
}

func TestRun_BannerAndEOF(t *testing.T) {
	t.Parallel()
	out := runREPL(t, &fakeConversation{}, nil, "")
	for _, want := range []string{"CBSE Std 9 Learning Tutor", "'quit' to exit", "Goodbye! Keep learning!"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRun_ClearResetsAndSweeps(t *testing.T) {
	t.Parallel()

	conv := &fakeConversation{}
	sw := &fakeSweeper{}
	out := runREPL(t, conv, sw, "clear\nCLEAR\nquit\n")

	if conv.clears != 2 {
		t.Errorf("clears = %d, want 2", conv.clears)
	}
	if len(sw.ages) != 2 || sw.ages[0] != 0 || sw.ages[1] != 0 {
		t.Errorf("sweep ages = %v, want two zero-age sweeps", sw.ages)
	}
	if strings.Count(out, "Conversation cleared!") != 2 {
		t.Errorf("output:\n%s", out)
	}
}

func TestRun_ClearSweepFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	conv := &fakeConversation{}
	out := runREPL(t, conv, &fakeSweeper{err: errors.New("permission denied")}, "clear\nquit\n")
	if !strings.Contains(out, "Conversation cleared!") {
		t.Errorf("output:\n%s", out)
	}
}

func TestRun_BlankLinesIgnored(t *testing.T) {
	t.Parallel()
	conv := &fakeConversation{}
	runREPL(t, conv, nil, "\n   \n\t\nquit\n")
	if len(conv.inputs) != 0 {
		t.Errorf("inputs = %v, want none", conv.inputs)
	}
}

// ── turns ────────────────────────────────────────────────────────────────────

func TestRun_RendersFragments(t *testing.T) {
	t.Parallel()

	conv := &fakeConversation{fragments: []conversation.Fragment{
		{Kind: conversation.FragmentToolNotice, Text: "Creating diagram: draw_triangle...", Tool: "draw_triangle"},
		{Kind: conversation.FragmentToolResult, Text: "Diagram created successfully: /d/triangle_right.png", Tool: "draw_triangle", Artifact: "/d/triangle_right.png"},
		{Kind: conversation.FragmentToolResult, Text: "Error creating diagram: bad input", Tool: "plot_linear_function"},
		{Kind: conversation.FragmentText, Text: "A right triangle "},
		{Kind: conversation.FragmentText, Text: "has one 90° angle."},
	}}
	out := runREPL(t, conv, nil, "  what is a right triangle?  \nquit\n")

	if len(conv.inputs) != 1 || conv.inputs[0] != "what is a right triangle?" {
		t.Errorf("inputs = %q, want the trimmed question", conv.inputs)
	}
	for _, want := range []string{
		"Tutor:",
		"Creating diagram: draw_triangle...",
		"Diagram saved to /d/triangle_right.png",
		"Error creating diagram: bad input",
		"A right triangle has one 90° angle.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRun_ErrorFragment(t *testing.T) {
	t.Parallel()
	conv := &fakeConversation{fragments: []conversation.Fragment{
		{Kind: conversation.FragmentError, Text: "Sorry, I encountered an error: 401"},
	}}
	out := runREPL(t, conv, nil, "hello\nbye\n")
	if !strings.Contains(out, "Sorry, I encountered an error: 401") {
		t.Errorf("output:\n%s", out)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	t.Parallel()

	r, w := io.Pipe()
	defer w.Close()

	var out bytes.Buffer
	l := New(&fakeConversation{}, nil, WithInput(r), WithOutput(&out))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// ── with the real engine ─────────────────────────────────────────────────────

func TestRun_WithEngine(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{CompleteResponses: []*llm.CompletionResponse{
		{Content: "Inertia is resistance to change in motion."},
		{Content: "Fresh start."},
	}}
	e := conversation.New(p, nil)
	out := runREPL(t, e, &fakeSweeper{}, "What is inertia?\nclear\nhi\nexit\n")

	if !strings.Contains(out, "Inertia is resistance to change in motion.") {
		t.Errorf("output:\n%s", out)
	}
	h := e.History()
	if len(h) != 3 || h[1].Content != "hi" {
		t.Errorf("history after clear = %+v, want only the last turn", h)
	}
}
