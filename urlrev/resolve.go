package urlrev

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// LocatorKind is lexical class of a reference.
type LocatorKind int

const (
	LocalFile LocatorKind = iota
	SiteAbsolute
	Remote
)

func (k LocatorKind) String() string {
	switch k {
	case LocalFile:
		return "local"
	case SiteAbsolute:
		return "site-absolute"
	case Remote:
		return "remote"
	default:
		return "unknown"
	}
}

// Locator points to the bytes reference stands for: file path for local and
// site absolute references, URL for remote ones.
type Locator struct {
	Kind LocatorKind
	Path string
}

func (l Locator) String() string {
	return l.Kind.String() + ":" + l.Path
}

// Base returns last element of the locator path.
func (l Locator) Base() string {
	if l.Kind == Remote {
		if u, err := url.Parse(l.Path); err == nil {
			return path.Base(u.Path)
		}
		return path.Base(l.Path)
	}
	return filepath.Base(l.Path)
}

// Resolve classifies raw reference and turns it into locator. Relative
// references are resolved against dir, site absolute ones against
// absolutePath. Query and fragment of file references are ignored. Resolve
// never touches file system, so malformed references simply produce paths
// nobody can read.
func Resolve(raw, dir, absolutePath string) Locator {
	switch {
	case IsRemote(raw):
		if IsProtocolRelative(raw) {
			raw = "http:" + raw
		}
		return Locator{Kind: Remote, Path: raw}
	case IsSiteAbsolute(raw):
		return Locator{Kind: SiteAbsolute, Path: filepath.Join(absolutePath, filepath.FromSlash(referencePath(raw)))}
	default:
		p := filepath.FromSlash(referencePath(raw))
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		return Locator{Kind: LocalFile, Path: p}
	}
}

// referencePath drops query and fragment and decodes percent escapes.
func referencePath(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	if p, err := url.PathUnescape(raw); err == nil {
		return p
	}
	return raw
}
