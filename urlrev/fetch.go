package urlrev

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// remoteDigest streams response body through the digest, nothing is buffered.
// There are no retries, timeouts come only from the client and ctx.
func (r *Revisioner) remoteDigest(ctx context.Context, loc Locator) (string, error) {
	fail := func(err error) (string, error) {
		r.log.Debug("Remote fetch failed", zap.String("url", loc.Path), zap.Error(err))
		return "", &ResourceError{Kind: RemoteFetchFailure, Locator: loc, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc.Path, nil)
	if err != nil {
		return fail(fmt.Errorf("create request: %w", err))
	}
	for k, vs := range r.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	r.log.Debug("Fetching remote resource", zap.String("url", loc.Path))

	resp, err := r.client.Do(req)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status))
	}

	h := r.newHash()
	n, err := io.Copy(h, resp.Body)
	if err != nil {
		return fail(fmt.Errorf("read body: %w", err))
	}
	sum := hex.EncodeToString(h.Sum(nil))

	r.log.Debug("Hashed remote resource",
		zap.String("url", loc.Path),
		zap.String("content-type", resp.Header.Get("Content-Type")),
		zap.Int64("bytes", n),
		zap.String("digest", sum))
	return sum, nil
}
