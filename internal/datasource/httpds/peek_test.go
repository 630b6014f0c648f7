// Head sampling for the drift probe: FetchFirstBytes pulls the first bytes
// of a remote extract with a Range request, and caps the read itself for
// servers that ignore Range and send the whole object.

package httpds

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const extractHead = "YEAR,MONTH,AIRLINE,ORIGIN\n2015,6,AA,LAX\n2015,6,DL,ATL\n"

func sampleClient() *Client {
	return NewClient(Config{Timeout: 2 * time.Second})
}

func TestFetchFirstBytesHonoredRange(t *testing.T) {
	t.Parallel()

	const n = 16
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got, want := r.Header.Get("Range"), fmt.Sprintf("bytes=0-%d", n-1); got != want {
			t.Errorf("Range header = %q, want %q", got, want)
		}
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte(extractHead[:n]))
	}))
	defer srv.Close()

	got, err := sampleClient().FetchFirstBytes(context.Background(), srv.URL, n)
	if err != nil {
		t.Fatalf("FetchFirstBytes: %v", err)
	}
	if string(got) != extractHead[:n] {
		t.Fatalf("sample = %q, want %q", got, extractHead[:n])
	}
}

func TestFetchFirstBytesIgnoredRange(t *testing.T) {
	t.Parallel()

	// Plenty of servers answer a Range request with the entire object and a
	// plain 200. The sample must still come back capped at n.
	const n = 12
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(extractHead))
	}))
	defer srv.Close()

	got, err := sampleClient().FetchFirstBytes(context.Background(), srv.URL, n)
	if err != nil {
		t.Fatalf("FetchFirstBytes: %v", err)
	}
	if string(got) != extractHead[:n] {
		t.Fatalf("sample = %q, want %q", got, extractHead[:n])
	}
}

func TestFetchFirstBytesShortBody(t *testing.T) {
	t.Parallel()

	// An object smaller than the budget comes back whole, not padded.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("YEAR\n"))
	}))
	defer srv.Close()

	got, err := sampleClient().FetchFirstBytes(context.Background(), srv.URL, 4096)
	if err != nil {
		t.Fatalf("FetchFirstBytes: %v", err)
	}
	if string(got) != "YEAR\n" {
		t.Fatalf("sample = %q, want the 5-byte object", got)
	}
}

func TestFetchFirstBytesRejectsErrorStatus(t *testing.T) {
	t.Parallel()

	// Servers dress 404s up as HTML pages; those must surface as errors, not
	// get handed to the probe as extract content.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("<html><body>not found</body></html>"))
	}))
	defer srv.Close()

	got, err := sampleClient().FetchFirstBytes(context.Background(), srv.URL, 10)
	if err == nil {
		t.Fatalf("FetchFirstBytes returned %q, want an error for the 404", got)
	}
	if !strings.Contains(err.Error(), "404") {
		t.Fatalf("error does not name the status: %v", err)
	}
}

func TestFetchFirstBytesRejectsBadSize(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, -1} {
		if _, err := sampleClient().FetchFirstBytes(context.Background(), "http://example.com", n); err == nil {
			t.Errorf("n=%d: no error", n)
		}
	}
}

func TestFetchFirstBytesCanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := sampleClient().FetchFirstBytes(ctx, srv.URL, 10); err == nil {
		t.Fatal("FetchFirstBytes returned nil error on a canceled context")
	}
}
