package css

import (
	"fmt"
	"strconv"
	"strings"
)

type treeWriter struct {
	w *strings.Builder
}

func newTreeWriter() *treeWriter {
	return &treeWriter{w: &strings.Builder{}}
}

func (tw treeWriter) String() string {
	return tw.w.String()
}

func (tw treeWriter) line(depth int, format string, args ...any) {
	tw.indent(depth)
	fmt.Fprintf(tw.w, format, args...)
	tw.w.WriteByte('\n')
}

func (tw treeWriter) text(depth int, label, value string) {
	tw.indent(depth)
	tw.w.WriteString(label)
	tw.w.WriteString(": ")
	if value != "" {
		value = strconv.Quote(value)
	}
	tw.w.WriteString(value)
	tw.w.WriteByte('\n')
}

func (tw treeWriter) indent(depth int) {
	for range depth {
		tw.w.WriteString("  ")
	}
}

// Dump returns human readable tree of declarations and warnings, used for
// debug reports.
func (s *Stylesheet) Dump() string {
	tw := newTreeWriter()
	tw.line(0, "stylesheet %s", strconv.Quote(s.Source))
	tw.line(1, "declarations: %d", len(s.decls))
	for _, d := range s.decls {
		tw.line(2, "line %d %s", d.Line, strconv.Quote(d.Property))
		tw.text(3, "value", d.value)
		if d.important {
			tw.line(3, "important")
		}
	}
	warnings := s.Warnings()
	if len(warnings) == 0 {
		return tw.String()
	}
	tw.line(1, "warnings: %d", len(warnings))
	for _, w := range warnings {
		tw.text(2, fmt.Sprintf("line %d %s", w.Line, strconv.Quote(w.Property)), w.Text)
	}
	return tw.String()
}
