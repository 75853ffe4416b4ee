package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-analyze/bulk"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/go-appsec/httpc/httpc/cliutil"
	"github.com/go-appsec/httpc/httpc/libhttp"
	"github.com/go-appsec/httpc/httpc/store"
)

// writeOutput renders the final response according to the output flags.
func writeOutput(s *libhttp.Session, rf *requestFlags) error {
	if rf.dumpHeader != "" {
		if err := writeFile(rf.dumpHeader, s.WriteHeaders); err != nil {
			return fmt.Errorf("writing headers: %w", err)
		}
	}

	body := s.Body()
	if rf.compressed {
		decoded, err := s.DecodedBody()
		if err != nil {
			return err
		}
		body = decoded
	}

	out := io.Writer(os.Stdout)
	if rf.output != "" {
		f, err := os.Create(rf.output)
		if err != nil {
			return fmt.Errorf("opening output: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	if rf.include || rf.head {
		// friendly headers only when a person is reading stdout
		if rf.output == "" && cliutil.IsTerminal(os.Stdout) {
			if err := s.FriendlyWriteHeaders(out); err != nil {
				return err
			}
			_, _ = io.WriteString(out, "\n")
		} else if err := s.WriteHeaders(out); err != nil {
			return err
		}
	}
	if rf.head {
		return nil
	}
	_, err := out.Write(body)
	return err
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func saveTrace(s *libhttp.Session, path string) error {
	return store.NewTrace(s).WriteFile(path)
}

// hopRow is one line of the hop table.
type hopRow struct {
	Method   string
	URL      string
	Status   int
	Location string
	Size     int
	Duration time.Duration
	Error    string
}

func hopRowsFromSession(hops []libhttp.Hop) []hopRow {
	rows := make([]hopRow, 0, len(hops))
	for _, h := range hops {
		row := hopRow{
			Method:   h.Method,
			URL:      h.URL,
			Status:   h.StatusCode,
			Location: h.Location,
			Size:     h.BodyLength,
			Duration: h.Duration,
		}
		if h.Err != nil {
			row.Error = h.Err.Error()
		}
		rows = append(rows, row)
	}
	return rows
}

func hopRowsFromTrace(t *store.Trace) []hopRow {
	rows := make([]hopRow, 0, len(t.Hops))
	for _, h := range t.Hops {
		rows = append(rows, hopRow{
			Method:   h.Method,
			URL:      h.URL,
			Status:   h.StatusCode,
			Location: h.Location,
			Size:     h.BodyLength,
			Duration: h.Duration,
			Error:    h.Error,
		})
	}
	return rows
}

// failedRows keeps hops that errored or returned a status of 400 or above.
func failedRows(rows []hopRow) []hopRow {
	return bulk.SliceFilter(func(r hopRow) bool {
		return r.Error != "" || r.Status >= 400
	}, rows)
}

func printHopTable(w io.Writer, hops []libhttp.Hop) {
	renderHopRows(w, hopRowsFromSession(hops))
}

func renderHopRows(w io.Writer, rows []hopRow) {
	if len(rows) == 0 {
		cliutil.NoResults(w, "No exchanges recorded.")
		return
	}

	t := cliutil.NewTable(w)
	t.AppendHeader(table.Row{"Hop", "Method", "URL", "Status", "Location", "Size", "Time", "Error"})
	t.SetRowPainter(cliutil.StatusRowPainter(3)) // status is column index 3
	for i, r := range rows {
		status := "-"
		if r.Status > 0 {
			status = fmt.Sprint(r.Status)
		}
		t.AppendRow(table.Row{
			i + 1, r.Method, cliutil.EscapeCell(r.URL), status, cliutil.EscapeCell(r.Location),
			r.Size, r.Duration.Round(time.Millisecond), cliutil.EscapeCell(r.Error),
		})
	}
	t.Render()
	cliutil.Summary(w, len(rows), "hop", "hops")
}

// printTraceHeaders writes each hop's raw response headers, separated by a marker line.
func printTraceHeaders(w io.Writer, t *store.Trace) {
	for i, h := range t.Hops {
		_, _ = fmt.Fprintf(w, "%s\n", cliutil.Bold(fmt.Sprintf("== hop %d: %s %s", i+1, h.Method, h.URL)))
		if h.Headers == "" {
			_, _ = fmt.Fprintln(w, cliutil.Hint("(no response)"))
			continue
		}
		for _, line := range strings.Split(h.Headers, "\r\n") {
			_, _ = fmt.Fprintf(w, "|> %s\n", line)
		}
		_, _ = fmt.Fprintln(w)
	}
}
