// Package source wraps each external catalog behind a uniform poll contract:
// a name, a cadence, and a fetch that yields canonical models or fails with
// a source-scoped FetchError.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"modelwatch/internal/catalog"
)

// Sane bounds for catalog endpoints. A hung fetch delays only its own
// source's next cycle, but it should still end eventually.
const (
	fetchTimeout = 30 * time.Second
	maxBodyBytes = 16 << 20
)

type Source interface {
	Name() string
	Interval() time.Duration
	// Fetch returns the source's current model set. On failure the caller
	// skips the cycle: the snapshot stays untouched and no report is raised.
	Fetch(ctx context.Context) ([]catalog.Model, error)
}

// FetchError wraps any failure of a polling fetch: network error, non-2xx
// status, malformed payload, provider API error. Transient by definition;
// retried on the next scheduled tick and never surfaced to subscribers.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return "fetch " + e.Source + ": " + e.Err.Error()
}

func (e *FetchError) Unwrap() error { return e.Err }

func fetchErr(source string, err error) error {
	return &FetchError{Source: source, Err: err}
}

func fetchErrf(source, format string, args ...any) error {
	return &FetchError{Source: source, Err: fmt.Errorf(format, args...)}
}

func newClient() *http.Client {
	return &http.Client{Timeout: fetchTimeout}
}

// getBody performs a GET and returns the body of a 2xx response.
func getBody(ctx context.Context, client *http.Client, req *http.Request, source string) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fetchErr(source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fetchErrf(source, "%s responded with status %d", req.URL.Redacted(), resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fetchErr(source, err)
	}
	return b, nil
}
