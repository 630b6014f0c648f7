// Package httpds pulls flight extracts over HTTP. The pipeline streams
// whole files through it, the drift probe samples heads of remote objects
// with it. Transient failures (transport errors, 429, 5xx) are retried with
// exponential backoff; any other response goes back to the caller as-is.
// Retry waits and in-flight requests both stop on context cancellation, and
// both the transport and the sleep between attempts are injectable, which is
// what the tests lean on.
package httpds

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"
)

// Config tunes the client. Zero values mean: 30s timeout, 200ms initial
// backoff, 5s backoff cap, and no retries. Retrying is opt-in because a
// mid-stream failure after the reader has consumed half the body cannot be
// papered over by re-requesting; only callers that consume whole responses
// should raise MaxRetries.
type Config struct {
	// Timeout bounds one attempt end to end, body read included. Streaming
	// a multi-gigabyte extract needs this generous.
	Timeout time.Duration

	// MaxRetries is the number of re-attempts after the first try.
	MaxRetries int

	// InitialBackoff is the wait before the first re-attempt; each further
	// wait doubles it, up to MaxBackoff.
	InitialBackoff time.Duration

	// MaxBackoff caps the doubling.
	MaxBackoff time.Duration

	// InsecureSkipVerify turns off TLS certificate checks, for internal
	// mirrors running self-signed certificates.
	InsecureSkipVerify bool

	// BaseHeaders go on every request. Per-request headers with the same
	// name win.
	BaseHeaders http.Header

	// Transport overrides the default *http.Transport when non-nil. The
	// TLS setting above only applies to the default.
	Transport http.RoundTripper
}

// Client is an http.Client wrapped in the retry loop.
type Client struct {
	httpClient     *http.Client
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	baseHeaders    http.Header

	// sleep waits between attempts. Tests install a recorder here; the
	// hook must honor ctx.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient fills in the zero-value defaults from cfg and builds the client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in knob for internal mirrors
			},
		}
	}

	hdr := http.Header{}
	for k, vs := range cfg.BaseHeaders {
		for _, v := range vs {
			hdr.Add(k, v)
		}
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		baseHeaders:    hdr,
		sleep:          sleepContext,
	}
}

// Do issues the request, retrying transport errors and retryable statuses
// until the budget runs out. The body rides as a byte slice so a retry can
// replay it. On success the response body is open and owned by the caller;
// a final status like 404 counts as success here, the caller interprets the
// status.
func (c *Client) Do(ctx context.Context, method, url string, body []byte, headers http.Header) (*http.Response, error) {
	if method == "" {
		return nil, fmt.Errorf("httpds: method must not be empty")
	}
	if url == "" {
		return nil, fmt.Errorf("httpds: url must not be empty")
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("httpds: build request: %w", err)
		}
		c.decorate(req, headers)

		resp, err := c.httpClient.Do(req)
		switch {
		case err != nil:
			lastErr = err
		case isRetryableStatus(resp.StatusCode):
			resp.Body.Close()
			lastErr = fmt.Errorf("httpds: retryable status %d from %s %s", resp.StatusCode, method, url)
		default:
			return resp, nil
		}

		if attempt == c.maxRetries {
			return nil, lastErr
		}
		if err := c.sleep(ctx, backoffDuration(c.initialBackoff, attempt, c.maxBackoff)); err != nil {
			return nil, err
		}
	}
}

// Get runs Do with GET and no body. The caller closes the response body.
func (c *Client) Get(ctx context.Context, url string, headers http.Header) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, url, nil, headers)
}

// decorate layers the client's base headers under the per-request ones.
func (c *Client) decorate(req *http.Request, extra http.Header) {
	for k, vs := range c.baseHeaders {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
}

// isRetryableStatus treats 429 and the whole 5xx range as transient.
// Everything else is final, 4xx included: a 404 will not become a 200 by
// asking again.
func isRetryableStatus(code int) bool {
	if code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

// backoffDuration doubles initial once per completed attempt and clamps the
// result to max. Doubling stops as soon as the cap is reached, so a large
// attempt count cannot overflow the duration.
func backoffDuration(initial time.Duration, attempt int, max time.Duration) time.Duration {
	d := initial
	for ; attempt > 0 && d < max; attempt-- {
		d <<= 1
	}
	if d > max {
		return max
	}
	return d
}

// sleepContext is the default sleep hook: wait for d or for ctx, whichever
// ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
