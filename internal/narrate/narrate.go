// Package narrate prints the walkthrough's running commentary: one line per
// event, prefixed with a status glyph and colored when the output is a
// terminal. Every line is mirrored to the structured logger.
package narrate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/muesli/termenv"

	"github.com/kuitang/plantilla-walkthrough/internal/obs"
)

// Kind classifies a narrated line.
type Kind int

const (
	Info Kind = iota
	OK
	Warn
	Fail
	Wait
	Shot
	Start
	Summary
)

func (k Kind) glyph() string {
	switch k {
	case OK:
		return "✅"
	case Warn:
		return "⚠️"
	case Fail:
		return "❌"
	case Wait:
		return "⏳"
	case Shot:
		return "📸"
	case Start:
		return "🚀"
	case Summary:
		return "📊"
	default:
		return "ℹ️"
	}
}

func (k Kind) level() slog.Level {
	switch k {
	case Warn:
		return slog.LevelWarn
	case Fail:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (k Kind) color() string {
	switch k {
	case OK:
		return "#22c55e"
	case Warn:
		return "#f59e0b"
	case Fail:
		return "#ef4444"
	case Start, Summary:
		return "#818cf8"
	default:
		return ""
	}
}

// Narrator writes narration lines. The zero value is not usable; use New.
type Narrator struct {
	mu      sync.Mutex
	out     *termenv.Output
	profile termenv.Profile
}

// New returns a narrator writing to w. Colors are used only when w is a
// terminal that supports them.
func New(w io.Writer) *Narrator {
	out := termenv.NewOutput(w)
	return &Narrator{out: out, profile: out.EnvColorProfile()}
}

// Say prints one line and logs it with the context's correlation fields.
func (n *Narrator) Say(ctx context.Context, kind Kind, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	n.line(kind, msg, 0)
	obs.From(ctx).Log(ctx, kind.level(), msg, "pkg", "narrate", "kind", kind.glyph())
}

// Detail prints an indented continuation line. Details are logged at debug.
func (n *Narrator) Detail(ctx context.Context, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	n.line(-1, msg, 1)
	obs.From(ctx).Debug(msg, "pkg", "narrate")
}

// Rule prints a horizontal separator of the given width.
func (n *Narrator) Rule(width int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.out, strings.Repeat("=", width))
}

// Blank prints an empty line.
func (n *Narrator) Blank() {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.out)
}

func (n *Narrator) line(kind Kind, msg string, indent int) {
	n.mu.Lock()
	defer n.mu.Unlock()

	prefix := strings.Repeat("   ", indent)
	if kind < 0 {
		fmt.Fprintln(n.out, prefix+msg)
		return
	}
	text := n.out.String(msg)
	if c := kind.color(); c != "" && n.profile != termenv.Ascii {
		text = text.Foreground(n.profile.Color(c))
	}
	fmt.Fprintf(n.out, "%s%s %s\n", prefix, kind.glyph(), text)
}
