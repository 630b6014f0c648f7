package httpds

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// FetchFirstBytes downloads at most n bytes from the start of url.
//
// A Range header asks the server for just the head of the object. Plenty of
// endpoints serving flight extracts ignore Range and stream the whole file,
// so the read is capped client-side as well; the connection is dropped after
// n bytes either way. A result shorter than n means the object itself is
// smaller.
//
// Only 200 and 206 responses are sampled. Anything else becomes an error so
// a dressed-up error page never gets mistaken for extract content.
func (c *Client) FetchFirstBytes(ctx context.Context, url string, n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("httpds: head size must be positive, got %d", n)
	}

	h := make(http.Header)
	h.Set("Range", fmt.Sprintf("bytes=0-%d", n-1))

	resp, err := c.Do(ctx, http.MethodGet, url, nil, h)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, fmt.Errorf("httpds: sample %s: unexpected status %d", url, resp.StatusCode)
	}

	buf := make([]byte, n)
	read, err := io.ReadFull(resp.Body, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("httpds: sample %s: %w", url, err)
	}
	return buf[:read], nil
}
