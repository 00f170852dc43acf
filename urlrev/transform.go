package urlrev

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Summary counts results of a single pass.
type Summary struct {
	Declarations int // declarations with url() in value
	Rewritten    int // declarations which value was replaced
	Failed       int // declarations left untouched because of an error
	References   int // references rewritten in total
}

// Transform processes every declaration containing url() concurrently and
// waits for all of them. Failures never escape: each failed declaration is
// reported to sink (which may be nil) and keeps its value. from is path of the
// style sheet being processed, its directory resolves relative references of
// declarations which do not know their own source file. Empty from means
// current directory.
func (r *Revisioner) Transform(ctx context.Context, decls []Declaration, sink WarningSink, from string) Summary {
	fallback := baseDir(from)

	var (
		g   errgroup.Group
		mu  sync.Mutex
		sum Summary
	)
	if r.concurrency > 0 {
		g.SetLimit(r.concurrency)
	}

	start := time.Now()
	scheduled := 0
	for _, decl := range decls {
		if !strings.Contains(decl.Value(), urlPrefix) {
			continue
		}
		scheduled++
		g.Go(func() error {
			n, err := r.processDeclaration(ctx, decl, declarationDir(decl, fallback))

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				sum.Failed++
				r.log.Debug("Unable to revision declaration",
					zap.String("source", decl.SourceFile()),
					zap.String("value", shorten(decl.Value())),
					zap.Error(err))
				if sink != nil {
					sink.Warn(decl, err.Error())
				}
				return nil
			}
			if n > 0 {
				sum.Rewritten++
				sum.References += n
			}
			return nil
		})
	}
	// tasks never return errors
	_ = g.Wait()
	sum.Declarations = scheduled

	r.log.Debug("Pass completed",
		zap.String("from", from),
		zap.Int("declarations", sum.Declarations),
		zap.Int("rewritten", sum.Rewritten),
		zap.Int("failed", sum.Failed),
		zap.Int("references", sum.References),
		zap.Duration("elapsed", time.Since(start)))
	return sum
}

func baseDir(from string) string {
	dir := "."
	if from != "" {
		dir = filepath.Dir(from)
	}
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

func declarationDir(decl Declaration, fallback string) string {
	if src := decl.SourceFile(); src != "" {
		return baseDir(src)
	}
	return fallback
}
