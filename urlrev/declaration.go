package urlrev

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// processDeclaration revisions every eligible reference of decl value at once.
// Value is replaced only when all of them succeeded, first failure is
// returned otherwise and declaration stays as it was. dir is used to resolve
// relative references. Returns number of rewritten references.
func (r *Revisioner) processDeclaration(ctx context.Context, decl Declaration, dir string) (int, error) {
	value := decl.Value()

	var found []Occurrence
	eligibility := r.eligibility()
	for _, o := range Scan(value) {
		if reason, ok := eligibility.Check(o.Raw); !ok {
			r.log.Debug("Skipping reference", zap.String("url", shorten(o.Raw)), zap.String("reason", reason))
			continue
		}
		found = append(found, o)
	}
	if len(found) == 0 {
		return 0, nil
	}

	tokens := make([]string, len(found))

	// errgroup without context: every task is allowed to settle
	var g errgroup.Group
	for i, o := range found {
		g.Go(func() error {
			loc := Resolve(o.Raw, dir, r.absolutePath)
			digest, err := r.digest(ctx, loc)
			if err != nil {
				return err
			}
			tokens[i], err = r.rewrite(o, loc, digest)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	decl.SetValue(splice(value, found, tokens))
	return len(found), nil
}

// splice replaces occurrences by position, so identical tokens in the same
// value are each rewritten on their own.
func splice(value string, found []Occurrence, tokens []string) string {
	var sb strings.Builder
	sb.Grow(len(value) + len(found)*16)
	last := 0
	for i, o := range found {
		sb.WriteString(value[last:o.Start])
		sb.WriteString(tokens[i])
		last = o.End
	}
	sb.WriteString(value[last:])
	return sb.String()
}

func shorten(s string) string {
	const limit = 50
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
