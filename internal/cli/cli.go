// Package cli implements the interactive terminal front end: a line-based
// read-eval-print loop that streams tutor replies as they arrive.
//
// Commands:
//
//   - quit, exit, bye: leave the loop.
//   - clear: reset the conversation and delete every generated diagram.
//
// Any other non-empty line is sent to the tutor as one streaming turn.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/chalkboard/internal/conversation"
)

const (
	goodbyeText = "Goodbye! Keep learning!"
	clearedText = "Conversation cleared!"
)

// Conversation is the subset of [conversation.Engine] the loop drives.
type Conversation interface {
	SubmitStream(ctx context.Context, text string) iter.Seq[conversation.Fragment]
	Clear()
}

// Sweeper deletes generated diagrams. [diagram.Sweeper] satisfies it.
type Sweeper interface {
	Sweep(maxAge time.Duration) (int, error)
}

// styles holds the lipgloss styles bound to the output's renderer.
type styles struct {
	banner lipgloss.Style
	hint   lipgloss.Style
	you    lipgloss.Style
	tutor  lipgloss.Style
	notice lipgloss.Style
	result lipgloss.Style
	err    lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	var (
		primary = lipgloss.Color("#7C3AED")
		accent  = lipgloss.Color("#06B6D4")
		muted   = lipgloss.Color("#6B7280")
		success = lipgloss.Color("#10B981")
		failure = lipgloss.Color("#EF4444")
	)
	return styles{
		banner: r.NewStyle().
			Bold(true).
			Foreground(primary).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(primary).
			Padding(0, 2),
		hint:   r.NewStyle().Foreground(muted),
		you:    r.NewStyle().Bold(true).Foreground(accent),
		tutor:  r.NewStyle().Bold(true).Foreground(primary),
		notice: r.NewStyle().Italic(true).Foreground(muted),
		result: r.NewStyle().Foreground(success),
		err:    r.NewStyle().Foreground(failure),
	}
}

// REPL is the terminal chat loop.
type REPL struct {
	conv    Conversation
	sweeper Sweeper
	in      io.Reader
	out     io.Writer
	st      styles
	log     *slog.Logger
}

// Option is a functional option for configuring a REPL.
type Option func(*REPL)

// WithInput reads lines from r instead of standard input.
func WithInput(r io.Reader) Option {
	return func(l *REPL) { l.in = r }
}

// WithOutput writes to w instead of standard output. Colours are chosen for
// w: a writer that is not a terminal gets plain text.
func WithOutput(w io.Writer) Option {
	return func(l *REPL) { l.out = w }
}

// WithLogger sets the logger used for sweep failures. Default: slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(l *REPL) { l.log = log }
}

// New returns a REPL driving conv. sweeper may be nil, in which case clear
// only resets the conversation.
func New(conv Conversation, sweeper Sweeper, opts ...Option) *REPL {
	l := &REPL{
		conv:    conv,
		sweeper: sweeper,
		in:      os.Stdin,
		out:     os.Stdout,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	l.st = newStyles(lipgloss.NewRenderer(l.out))
	return l
}

// Run prints the banner and processes input until a quit command, end of
// input, or ctx cancellation. Cancelling ctx also aborts a turn in progress.
// It returns nil on a normal exit and the read error otherwise.
func (l *REPL) Run(ctx context.Context) error {
	l.banner()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(l.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		l.prompt()
		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			l.goodbye()
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			l.goodbye()
			select {
			case err := <-readErr:
				if err != nil {
					return fmt.Errorf("cli: read input: %w", err)
				}
			default:
			}
			return nil
		}

		input := strings.TrimSpace(line)
		switch strings.ToLower(input) {
		case "":
			continue
		case "quit", "exit", "bye":
			l.goodbye()
			return nil
		case "clear":
			l.clear()
			continue
		}

		l.turn(ctx, input)
	}
}

func (l *REPL) banner() {
	title := "CBSE Std 9 Learning Tutor\nAI tutor with autonomous diagram generation"
	fmt.Fprintln(l.out, l.st.banner.Render(title))
	fmt.Fprintln(l.out, l.st.hint.Render("Type 'quit' to exit, 'clear' to reset."))
}

func (l *REPL) prompt() {
	fmt.Fprint(l.out, "\n"+l.st.you.Render("You:")+" ")
}

func (l *REPL) goodbye() {
	fmt.Fprintln(l.out, "\n"+goodbyeText)
}

func (l *REPL) clear() {
	l.conv.Clear()
	if l.sweeper != nil {
		if n, err := l.sweeper.Sweep(0); err != nil {
			l.log.Warn("diagram cleanup failed", "err", err)
		} else {
			l.log.Debug("diagrams removed", "count", n)
		}
	}
	fmt.Fprintln(l.out, clearedText)
}

// turn streams one reply. Text fragments are written as they arrive; tool
// fragments go on their own lines.
func (l *REPL) turn(ctx context.Context, input string) {
	fmt.Fprint(l.out, "\n"+l.st.tutor.Render("Tutor:")+" ")
	for f := range l.conv.SubmitStream(ctx, input) {
		switch f.Kind {
		case conversation.FragmentText:
			fmt.Fprint(l.out, f.Text)
		case conversation.FragmentToolNotice:
			fmt.Fprintln(l.out, "\n"+l.st.notice.Render(f.Text))
		case conversation.FragmentToolResult:
			if f.Artifact != "" {
				fmt.Fprintln(l.out, l.st.result.Render("Diagram saved to "+f.Artifact))
			} else {
				fmt.Fprintln(l.out, l.st.err.Render(f.Text))
			}
		case conversation.FragmentError:
			fmt.Fprint(l.out, "\n"+l.st.err.Render(f.Text))
		}
	}
	fmt.Fprintln(l.out)
}
