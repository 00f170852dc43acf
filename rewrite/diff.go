package rewrite

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// changes lists lines removed ("-") and added ("+") by the rewrite.
func changes(before, after string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var sb strings.Builder
	for _, d := range diffs {
		var mark byte
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			mark = '-'
		case diffmatchpatch.DiffInsert:
			mark = '+'
		default:
			continue
		}
		for line := range strings.Lines(d.Text) {
			sb.WriteByte(mark)
			sb.WriteString(line)
			if !strings.HasSuffix(line, "\n") {
				sb.WriteByte('\n')
			}
		}
	}
	return sb.String()
}
