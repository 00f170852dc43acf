package urlrev

import (
	"fmt"
	"hash"
	"net/http"
	"path/filepath"

	"go.uber.org/zap"
)

// DefaultHashLength is number of digest characters kept by default replacer.
const DefaultHashLength = 10

// Option configures Revisioner.
type Option func(*Revisioner)

// WithIncludeRemote allows processing of http(s):// and protocol relative
// references. Off by default.
func WithIncludeRemote(include bool) Option {
	return func(r *Revisioner) {
		r.includeRemote = include
	}
}

// WithAbsolutePath sets base directory for site absolute ("/img/a.png")
// references. When empty such references are skipped.
func WithAbsolutePath(dir string) Option {
	return func(r *Revisioner) {
		r.absolutePath = dir
	}
}

// WithHashLength sets number of digest characters kept by default replacer.
// Negative values are treated as 0.
func WithHashLength(n int) Option {
	return func(r *Revisioner) {
		r.hashLength = max(n, 0)
	}
}

// WithQueryKey changes name of the query parameter set by default replacer.
func WithQueryKey(key string) Option {
	return func(r *Revisioner) {
		if key != "" {
			r.queryKey = key
		}
	}
}

// WithReplacer replaces default query parameter strategy entirely.
func WithReplacer(rp Replacer) Option {
	return func(r *Revisioner) {
		r.replacer = rp
	}
}

// WithHasher replaces content hashing entirely. Digest returned by h is used
// verbatim.
func WithHasher(h Hasher) Option {
	return func(r *Revisioner) {
		r.hasher = h
	}
}

// WithAlgorithm selects digest algorithm by name, see Algorithms.
func WithAlgorithm(name string) Option {
	return func(r *Revisioner) {
		r.algorithm = name
	}
}

// WithHTTPClient sets client used for remote fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Revisioner) {
		if c != nil {
			r.client = c
		}
	}
}

// WithHeaders sets additional headers sent with every remote request.
func WithHeaders(h http.Header) Option {
	return func(r *Revisioner) {
		r.headers = h.Clone()
	}
}

// WithConcurrency limits number of declarations processed simultaneously, 0
// means no limit.
func WithConcurrency(n int) Option {
	return func(r *Revisioner) {
		r.concurrency = max(n, 0)
	}
}

// WithLogger sets logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Revisioner) {
		if log != nil {
			r.log = log
		}
	}
}

// Revisioner rewrites url() references of style sheet declarations. Its
// options never change after New returns, so single instance may serve many
// concurrent passes.
type Revisioner struct {
	includeRemote bool
	absolutePath  string
	hashLength    int
	queryKey      string
	replacer      Replacer
	hasher        Hasher
	algorithm     string
	newHash       func() hash.Hash
	client        *http.Client
	headers       http.Header
	concurrency   int
	log           *zap.Logger
}

// New creates Revisioner. It only fails when options contradict each other
// or cannot be used at all.
func New(opts ...Option) (*Revisioner, error) {
	r := &Revisioner{
		hashLength: DefaultHashLength,
		queryKey:   DefaultQueryKey,
		algorithm:  DefaultAlgorithm,
		client:     &http.Client{},
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.Named("urlrev")

	var err error
	if r.newHash, err = lookupAlgorithm(r.algorithm); err != nil {
		return nil, err
	}
	if r.absolutePath != "" {
		if r.absolutePath, err = filepath.Abs(r.absolutePath); err != nil {
			return nil, fmt.Errorf("unable to resolve absolute path base: %w", err)
		}
	}
	if r.replacer == nil {
		r.replacer = QueryReplacer{Key: r.queryKey, Length: r.hashLength}
	}
	return r, nil
}

func (r *Revisioner) eligibility() Eligibility {
	return Eligibility{
		IncludeRemote: r.includeRemote,
		AllowAbsolute: r.absolutePath != "",
	}
}
