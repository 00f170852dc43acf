package urlrev

import (
	"strings"
)

const urlPrefix = "url("

// Occurrence is a single url() token found in property value. Source is the
// exact matched text and always equals value[Start:End].
type Occurrence struct {
	Source string
	Before string // whitespace between "url(" and the reference
	After  string // whitespace between the reference and ")"
	Quote  string // `"`, `'` or empty
	Raw    string // reference as written, without quotes
	Start  int
	End    int
}

// Rebuild returns token with reference replaced by newValue, keeping original
// quoting and whitespace.
func (o Occurrence) Rebuild(newValue string) string {
	return urlPrefix + o.Before + o.Quote + newValue + o.Quote + o.After + ")"
}

// Scan finds all non overlapping url() tokens in value, left to right. The
// reference is matched as short as possible, must not be empty and must not
// span lines. When quoted it has to be closed by the same quote.
func Scan(value string) []Occurrence {
	var found []Occurrence
	for i := 0; i < len(value); {
		k := strings.Index(value[i:], urlPrefix)
		if k < 0 {
			break
		}
		start := i + k
		if o, ok := matchAt(value, start); ok {
			found = append(found, o)
			i = o.End
			continue
		}
		i = start + 1
	}
	return found
}

func matchAt(value string, start int) (Occurrence, bool) {
	open := start + len(urlPrefix)
	ref := open
	for ref < len(value) && isSpace(value[ref]) {
		ref++
	}
	if ref < len(value) && (value[ref] == '"' || value[ref] == '\'') {
		if o, ok := matchRef(value, start, open, ref, value[ref:ref+1]); ok {
			return o, true
		}
	}
	// unbalanced quote is treated as part of unquoted reference
	return matchRef(value, start, open, ref, "")
}

func matchRef(value string, start, open, ref int, quote string) (Occurrence, bool) {
	from := ref + len(quote)
	for end := from + 1; end <= len(value); end++ {
		if value[end-1] == '\n' {
			return Occurrence{}, false
		}
		rest := end
		if quote != "" {
			if rest >= len(value) || value[rest] != quote[0] {
				continue
			}
			rest++
		}
		closing := rest
		for closing < len(value) && isSpace(value[closing]) {
			closing++
		}
		if closing < len(value) && value[closing] == ')' {
			return Occurrence{
				Source: value[start : closing+1],
				Before: value[open:ref],
				After:  value[rest:closing],
				Quote:  quote,
				Raw:    value[from:end],
				Start:  start,
				End:    closing + 1,
			}, true
		}
	}
	return Occurrence{}, false
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}

// Eligibility decides which references are processed.
type Eligibility struct {
	IncludeRemote bool
	AllowAbsolute bool
}

// Check returns true when reference should be revisioned, otherwise it
// returns reason for skipping it.
func (e Eligibility) Check(raw string) (string, bool) {
	switch {
	case strings.TrimSpace(raw) == "":
		return "empty reference", false
	case IsDataURI(raw):
		return "data uri", false
	case IsFragment(raw):
		return "fragment reference", false
	case IsSiteAbsolute(raw) && !e.AllowAbsolute:
		return "site absolute reference without base directory", false
	case IsRemote(raw) && !e.IncludeRemote:
		return "remote reference", false
	}
	return "", true
}

// Extract returns occurrences from value which are eligible for processing.
// Skipped tokens stay in the value verbatim.
func Extract(value string, e Eligibility) []Occurrence {
	var eligible []Occurrence
	for _, o := range Scan(value) {
		if _, ok := e.Check(o.Raw); ok {
			eligible = append(eligible, o)
		}
	}
	return eligible
}

// IsDataURI reports whether raw is embedded "data:" resource.
func IsDataURI(raw string) bool {
	return hasPrefixFold(raw, "data:")
}

// IsFragment reports whether raw is fragment only reference.
func IsFragment(raw string) bool {
	return strings.HasPrefix(raw, "#")
}

// IsProtocolRelative reports whether raw starts with "//".
func IsProtocolRelative(raw string) bool {
	return strings.HasPrefix(raw, "//")
}

// IsSiteAbsolute reports whether raw starts with single "/".
func IsSiteAbsolute(raw string) bool {
	return strings.HasPrefix(raw, "/") && !IsProtocolRelative(raw)
}

// IsRemote reports whether raw has http(s) scheme or is protocol relative.
func IsRemote(raw string) bool {
	return hasPrefixFold(raw, "http://") || hasPrefixFold(raw, "https://") || IsProtocolRelative(raw)
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
