package css

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
)

// Declaration is a single "property: value" pair found inside a block.
// Only the value may be changed, text around it is kept as it was.
type Declaration struct {
	Property string // property name as written
	Line     int    // 1-based line of the property name

	sheet     *Stylesheet
	head      string // property, colon and whitespace up to the value
	value     string
	tail      string // whitespace, comments and !important after the value
	important bool
}

// Value returns property value without surrounding whitespace and !important.
func (d *Declaration) Value() string {
	return d.value
}

// SetValue replaces property value.
func (d *Declaration) SetValue(v string) {
	d.value = v
}

// SourceFile returns name of the style sheet declaration belongs to.
func (d *Declaration) SourceFile() string {
	if d.sheet == nil {
		return ""
	}
	return d.sheet.Source
}

// Important reports whether declaration carries !important.
func (d *Declaration) Important() bool {
	return d.important
}

func (d *Declaration) String() string {
	return d.head + d.value + d.tail
}

// Warning is a problem attached to a declaration.
type Warning struct {
	Source   string
	Line     int
	Property string
	Text     string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s:%d %s: %s", w.Source, w.Line, w.Property, w.Text)
}

// segment is either raw text or a declaration.
type segment struct {
	raw  string
	decl *Declaration
}

// Stylesheet is a parsed style sheet. Everything which is not a declaration
// is kept verbatim, so unmodified sheet serializes to its exact input.
type Stylesheet struct {
	Source string // file name, may be empty

	segments []segment
	decls    []*Declaration

	mu       sync.Mutex
	warnings []Warning
}

// Declarations returns all declarations in source order.
func (s *Stylesheet) Declarations() []*Declaration {
	return s.decls
}

// Warn attaches warning to declaration. Safe for concurrent use.
func (s *Stylesheet) Warn(decl *Declaration, text string) {
	w := Warning{Source: s.Source, Text: text}
	if decl != nil {
		w.Line, w.Property = decl.Line, decl.Property
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = append(s.warnings, w)
}

// Warnings returns collected warnings ordered by line.
func (s *Stylesheet) Warnings() []Warning {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := slices.Clone(s.warnings)
	slices.SortStableFunc(res, func(a, b Warning) int {
		return cmp.Compare(a.Line, b.Line)
	})
	return res
}

// WriteTo writes the stylesheet to w, implementing io.WriterTo.
func (s *Stylesheet) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, seg := range s.segments {
		text := seg.raw
		if seg.decl != nil {
			text = seg.decl.String()
		}
		n, err := io.WriteString(w, text)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// String returns the CSS text of the stylesheet.
func (s *Stylesheet) String() string {
	var sb strings.Builder
	s.WriteTo(&sb) //nolint:errcheck
	return sb.String()
}
