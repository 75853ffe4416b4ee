package cliutil

import (
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// NewTable returns a table writer rendering to w in the CLI's style.
func NewTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Options.SeparateRows = false
	if !colorEnabled {
		t.Style().Color = table.ColorOptions{}
	}
	return t
}

// StatusRowPainter colors rows by the HTTP status held in column col.
func StatusRowPainter(col int) table.RowPainter {
	return func(row table.Row) text.Colors {
		if !colorEnabled || col >= len(row) {
			return nil
		}
		return StatusColors(statusOf(row[col]))
	}
}

// StatusColors returns the colors for an HTTP status class.
func StatusColors(status int) text.Colors {
	switch {
	case status >= 500:
		return text.Colors{text.FgRed}
	case status >= 400:
		return text.Colors{text.FgYellow}
	case status >= 300:
		return text.Colors{text.FgCyan}
	case status >= 200:
		return text.Colors{text.FgGreen}
	default:
		return nil
	}
}

func statusOf(v any) int {
	switch s := v.(type) {
	case int:
		return s
	case string:
		n, _ := strconv.Atoi(s)
		return n
	default:
		return 0
	}
}
