package httpds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"flightetl/internal/datasource"
)

// Remote streams a flight extract from an HTTP(S) URL. The body is consumed
// directly rather than spooled to disk, so a run starts parsing as soon as
// the first bytes arrive. URLs whose path ends in ".gz" are decompressed
// transparently.
type Remote struct {
	client *Client
	url    string
}

// NewRemote returns a Remote source for url using client. A nil client gets
// the package defaults (30s timeout, no retries).
func NewRemote(client *Client, url string) *Remote {
	if client == nil {
		client = NewClient(Config{})
	}
	return &Remote{client: client, url: url}
}

// URL returns the configured download URL.
func (r *Remote) URL() string { return r.url }

// Open issues a GET with retry and returns the response body as the extract
// stream. Any status other than 200 is an error; retryable statuses were
// already consumed by the client's backoff loop.
func (r *Remote) Open(ctx context.Context) (io.ReadCloser, error) {
	resp, err := r.client.Get(ctx, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", r.url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: unexpected status %d", r.url, resp.StatusCode)
	}
	return datasource.MaybeGunzip(resp.Body, urlPath(r.url))
}

// urlPath extracts the path component so gzip sniffing ignores query strings.
func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return u.Path
}
