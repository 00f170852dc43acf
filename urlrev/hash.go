package urlrev

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/h2non/filetype"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// DefaultAlgorithm is digest used when nothing else was requested.
const DefaultAlgorithm = "md5"

// Hasher computes digest for resolved resource. path is file path or URL,
// base is its last element.
type Hasher interface {
	Hash(ctx context.Context, path, base string) (string, error)
}

// HasherFunc adapts ordinary function to Hasher.
type HasherFunc func(ctx context.Context, path, base string) (string, error)

func (f HasherFunc) Hash(ctx context.Context, path, base string) (string, error) {
	return f(ctx, path, base)
}

var algorithms = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha512": sha512.New,
	"blake2b": func() hash.Hash {
		// cannot fail without a key
		h, _ := blake2b.New256(nil)
		return h
	},
}

// Algorithms returns names of supported digest algorithms.
func Algorithms() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func lookupAlgorithm(name string) (func() hash.Hash, error) {
	if fn, ok := algorithms[strings.ToLower(name)]; ok {
		return fn, nil
	}
	return nil, fmt.Errorf("unsupported digest algorithm '%s' (supported: %s)", name, strings.Join(Algorithms(), ", "))
}

// digest produces lowercase hex digest of resource content.
func (r *Revisioner) digest(ctx context.Context, loc Locator) (string, error) {
	if r.hasher != nil {
		sum, err := r.customDigest(ctx, loc)
		if err != nil {
			return "", &ResourceError{Kind: CustomHashFunctionFailure, Locator: loc, Err: err}
		}
		return sum, nil
	}
	if loc.Kind == Remote {
		return r.remoteDigest(ctx, loc)
	}
	return r.localDigest(loc)
}

func (r *Revisioner) customDigest(ctx context.Context, loc Locator) (sum string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.hasher.Hash(ctx, loc.Path, loc.Base())
}

func (r *Revisioner) localDigest(loc Locator) (string, error) {
	data, err := os.ReadFile(loc.Path)
	if err != nil {
		return "", &ResourceError{Kind: UnreadableLocalFile, Locator: loc, Err: err}
	}
	h := r.newHash()
	h.Write(data)
	sum := hex.EncodeToString(h.Sum(nil))

	if sniffed, ok := kindMismatch(loc.Path, data); ok {
		r.log.Warn("Resource content does not match its extension",
			zap.Stringer("locator", loc),
			zap.String("extension", filepath.Ext(loc.Path)),
			zap.String("detected", sniffed))
	}
	r.log.Debug("Hashed local resource",
		zap.Stringer("locator", loc),
		zap.Int("bytes", len(data)),
		zap.String("digest", sum))
	return sum, nil
}

// kindMismatch returns MIME type sniffed from data when it contradicts the one
// registered for extension of name. Content or extensions the matchers do not
// know are never reported, such resources are hashed all the same.
func kindMismatch(name string, data []byte) (string, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if len(ext) == 0 {
		return "", false
	}
	expected := filetype.GetType(ext)
	if expected == filetype.Unknown {
		return "", false
	}
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown || kind.MIME.Value == expected.MIME.Value {
		return "", false
	}
	return kind.MIME.Value, true
}
