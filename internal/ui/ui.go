// Package ui provides terminal styling and the step logger forksync uses
// for human-readable console output.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Status colors, adaptive to light and dark terminals.
var (
	ColorPass = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	ColorWarn = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	ColorFail = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	ColorMute = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
	ColorStep = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}
)

var (
	PassStyle = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle = lipgloss.NewStyle().Foreground(ColorFail)
	MuteStyle = lipgloss.NewStyle().Foreground(ColorMute)
	StepStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorStep)
)

// Status icons.
const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
	IconInfo = "→"
)

// Logger writes step progress to w. Styling is applied only when color is
// enabled.
type Logger struct {
	w     io.Writer
	color bool
}

// New returns a Logger writing to w.
func New(w io.Writer, color bool) *Logger {
	return &Logger{w: w, color: color}
}

// NewStderr returns a Logger on stderr, colored when stderr is a terminal.
func NewStderr() *Logger {
	return New(os.Stderr, IsTerminal(os.Stderr))
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return New(io.Discard, false)
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Writer exposes the underlying writer, e.g. for streaming subprocess output.
func (l *Logger) Writer() io.Writer { return l.w }

// Step announces the start of a named step.
func (l *Logger) Step(name string) {
	fmt.Fprintf(l.w, "%s\n", l.style(StepStyle, "== "+name))
}

// Pass logs a success line.
func (l *Logger) Pass(format string, args ...any) { l.line(PassStyle, IconPass, format, args...) }

// Warn logs a non-fatal problem.
func (l *Logger) Warn(format string, args ...any) { l.line(WarnStyle, IconWarn, format, args...) }

// Fail logs a failure.
func (l *Logger) Fail(format string, args ...any) { l.line(FailStyle, IconFail, format, args...) }

// Info logs progress detail.
func (l *Logger) Info(format string, args ...any) { l.line(MuteStyle, IconInfo, format, args...) }

func (l *Logger) line(s lipgloss.Style, icon, format string, args ...any) {
	fmt.Fprintf(l.w, "  %s %s\n", l.style(s, icon), fmt.Sprintf(format, args...))
}

func (l *Logger) style(s lipgloss.Style, text string) string {
	if !l.color {
		return text
	}
	return s.Render(text)
}
