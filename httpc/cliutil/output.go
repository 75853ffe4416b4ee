package cliutil

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"
)

var colorEnabled = IsTerminal(os.Stdout) && os.Getenv("NO_COLOR") == ""

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

func colorize(s string, colors ...text.Color) string {
	if !colorEnabled {
		return s
	}
	return text.Colors(colors).Sprint(s)
}

// Bold renders s in bold when writing to a terminal.
func Bold(s string) string { return colorize(s, text.Bold) }

// ID renders an identifier.
func ID(s string) string { return colorize(s, text.FgCyan) }

// Error renders an error message.
func Error(s string) string { return colorize(s, text.FgRed) }

// Success renders a success message.
func Success(s string) string { return colorize(s, text.FgGreen) }

// Hint renders secondary guidance text.
func Hint(s string) string { return colorize(s, text.Faint) }

// HintCommand prints a follow-up command suggestion.
func HintCommand(w io.Writer, label, command string) {
	_, _ = fmt.Fprintf(w, "\n%s: %s\n", Hint(label), ID(command))
}

// Summary prints a count line with singular or plural noun.
func Summary(w io.Writer, n int, singular, plural string) {
	noun := plural
	if n == 1 {
		noun = singular
	}
	_, _ = fmt.Fprintf(w, "\n%d %s\n", n, noun)
}

// NoResults prints a placeholder when a listing is empty.
func NoResults(w io.Writer, msg string) {
	_, _ = fmt.Fprintln(w, Hint(msg))
}

// EscapeCell flattens s so it fits in a single table cell.
func EscapeCell(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	return s
}
