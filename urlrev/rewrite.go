package urlrev

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultQueryKey is query parameter set by QueryReplacer.
const DefaultQueryKey = "v"

// Replacer produces new reference from the original one and resource digest.
type Replacer interface {
	Replace(rawURL, digest string) (string, error)
}

// ReplacerFunc adapts ordinary function to Replacer.
type ReplacerFunc func(rawURL, digest string) (string, error)

func (f ReplacerFunc) Replace(rawURL, digest string) (string, error) {
	return f(rawURL, digest)
}

// QueryReplacer sets query parameter Key to the first Length characters of
// digest. Existing parameters keep their order, existing Key is overwritten
// in place and repeated Key parameters are dropped. Everything outside of the
// query, fragment included, is kept byte for byte.
type QueryReplacer struct {
	Key    string
	Length int
}

// Replace never fails, reference is split on "#" and "?" as written.
func (q QueryReplacer) Replace(rawURL, digest string) (string, error) {
	key := q.Key
	if key == "" {
		key = DefaultQueryKey
	}
	n := min(max(q.Length, 0), len(digest))

	rest, fragment, hasFragment := strings.Cut(rawURL, "#")
	path, query, _ := strings.Cut(rest, "?")

	res := path + "?" + setQueryParam(query, key, digest[:n])
	if hasFragment {
		res += "#" + fragment
	}
	return res, nil
}

func setQueryParam(rawQuery, key, value string) string {
	pair := url.QueryEscape(key) + "=" + url.QueryEscape(value)

	var (
		parts    []string
		replaced bool
	)
	for part := range strings.SplitSeq(rawQuery, "&") {
		if part == "" {
			continue
		}
		name, _, _ := strings.Cut(part, "=")
		if n, err := url.QueryUnescape(name); err == nil && n == key {
			if !replaced {
				parts = append(parts, pair)
				replaced = true
			}
			continue
		}
		parts = append(parts, part)
	}
	if !replaced {
		parts = append(parts, pair)
	}
	return strings.Join(parts, "&")
}

// rewrite produces complete replacement token for occurrence.
func (r *Revisioner) rewrite(o Occurrence, loc Locator, digest string) (token string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &ResourceError{Kind: ReplacerFailure, Locator: loc, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	newValue, err := r.replacer.Replace(o.Raw, digest)
	if err != nil {
		return "", &ResourceError{Kind: ReplacerFailure, Locator: loc, Err: err}
	}
	return o.Rebuild(newValue), nil
}
