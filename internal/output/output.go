// Package output formats what the shardex CLI prints for people.
package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

const (
	iconSuccess = "✅"
	iconWarning = "⚠️ "
)

// Writer prints CLI messages. Write errors are dropped; a broken stdout has
// nowhere to report them.
type Writer struct {
	out io.Writer
}

// New returns a Writer on out.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

func (w *Writer) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(w.out, format, args...)
}

// Status prints msg after icon. An empty icon indents msg under the
// previous line.
func (w *Writer) Status(icon, msg string) {
	if icon == "" {
		icon = "  "
	}
	w.printf("%s %s\n", icon, msg)
}

func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

func (w *Writer) Successf(format string, args ...any) {
	w.Status(iconSuccess, fmt.Sprintf(format, args...))
}

func (w *Writer) Warning(msg string) {
	w.Status(iconWarning, msg)
}

func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Line prints msg verbatim.
func (w *Writer) Line(msg string) {
	w.printf("%s\n", msg)
}

func (w *Writer) Newline() {
	w.printf("\n")
}

// Table prints rows under headers in aligned columns, with a dashed rule
// under each header.
func (w *Writer) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	writeRow := func(cells []string) {
		_, _ = io.WriteString(tw, strings.Join(cells, "\t")+"\n")
	}

	writeRow(headers)
	rule := make([]string, len(headers))
	for i, h := range headers {
		rule[i] = strings.Repeat("-", len(h))
	}
	writeRow(rule)
	for _, row := range rows {
		writeRow(row)
	}
	_ = tw.Flush()
}
