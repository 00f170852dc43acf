// Package urlrev appends content derived revision tokens to url() references
// found in style sheet property values, so referenced resources can be cached
// forever and still be refetched once their bytes change.
//
// The package does not parse style sheets. It works on a sequence of
// declarations supplied by the caller, each exposing a mutable value and the
// path of the file it came from. A declaration is rewritten only when every
// eligible reference in its value could be hashed, otherwise it is left
// untouched and a warning is reported for it.
package urlrev

// Declaration is a single property declaration of a parsed style sheet.
type Declaration interface {
	// Value returns current property value text.
	Value() string
	// SetValue replaces property value text.
	SetValue(string)
	// SourceFile returns path of the style sheet declaration was read from,
	// may be empty.
	SourceFile() string
}

// WarningSink receives non fatal problems found while processing declarations.
type WarningSink interface {
	Warn(decl Declaration, text string)
}

// WarningSinkFunc adapts ordinary function to WarningSink.
type WarningSinkFunc func(decl Declaration, text string)

func (f WarningSinkFunc) Warn(decl Declaration, text string) {
	f(decl, text)
}

// Declarations converts slice of concrete declaration nodes into the form
// accepted by Transform.
func Declarations[T Declaration](nodes []T) []Declaration {
	decls := make([]Declaration, 0, len(nodes))
	for _, n := range nodes {
		decls = append(decls, n)
	}
	return decls
}
