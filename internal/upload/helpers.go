package upload

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultRetryBase is the backoff unit for WithRetry.
const DefaultRetryBase = time.Second

// WithRetry runs op up to attempts times, sleeping attempt*base between
// tries. Validation errors are never retried. The last error is returned.
func WithRetry(ctx context.Context, attempts int, base time.Duration, op func(ctx context.Context) (string, error)) (string, error) {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if IsKind(err, InvalidType) || IsKind(err, Oversize) || attempt == attempts {
			break
		}

		select {
		case <-time.After(time.Duration(attempt) * base):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

// ObjectNameFromURL returns the last path segment of an object URL.
func ObjectNameFromURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return "", false
	}
	path := strings.TrimRight(u.Path, "/")
	i := strings.LastIndexByte(path, '/')
	name := path[i+1:]
	if name == "" {
		return "", false
	}
	return name, true
}

// ObjectKeyFromURL strips publicBase from an object URL, giving the storage
// key including its folder.
func ObjectKeyFromURL(publicBase, raw string) (string, bool) {
	prefix := strings.TrimRight(publicBase, "/") + "/"
	if !strings.HasPrefix(raw, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(raw, prefix)
	return key, key != ""
}

// CheckURL reports whether a HEAD request to raw succeeds with 2xx.
func CheckURL(ctx context.Context, client *http.Client, raw string) bool {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, raw, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
