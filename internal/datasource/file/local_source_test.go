package file

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func gzipBytes(t *testing.T, plain string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(plain)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func TestLocalOpen(t *testing.T) {
	t.Parallel()

	const extract = "YEAR,MONTH,AIRLINE\n2015,6,AA\n2015,6,DL\n"

	cases := []struct {
		name     string
		prepare  func(t *testing.T) string
		cancel   bool
		wantErr  error
		wantText string
		want     string
	}{
		{
			name: "reads the file back",
			prepare: func(t *testing.T) string {
				return writeFile(t, t.TempDir(), "flights.csv", []byte(extract))
			},
			want: extract,
		},
		{
			name: "gz suffix inflates",
			prepare: func(t *testing.T) string {
				return writeFile(t, t.TempDir(), "flights.csv.gz", gzipBytes(t, extract))
			},
			want: extract,
		},
		{
			name: "gz name over plain bytes",
			prepare: func(t *testing.T) string {
				return writeFile(t, t.TempDir(), "flights.csv.gz", []byte(extract))
			},
			wantErr:  gzip.ErrHeader,
			wantText: "gunzip",
		},
		{
			name: "missing file keeps os.ErrNotExist reachable",
			prepare: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "absent.csv")
			},
			wantErr:  os.ErrNotExist,
			wantText: "open ",
		},
		{
			name: "canceled context never touches the disk",
			prepare: func(t *testing.T) string {
				return writeFile(t, t.TempDir(), "flights.csv", []byte(extract))
			},
			cancel:  true,
			wantErr: context.Canceled,
		},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			path := c.prepare(t)
			ctx := context.Background()
			if c.cancel {
				var stop context.CancelFunc
				ctx, stop = context.WithCancel(ctx)
				stop()
			}

			rc, err := NewLocal(path).Open(ctx)

			if c.wantErr != nil {
				if err == nil {
					t.Fatalf("Open() = nil error, want %v", c.wantErr)
				}
				if !errors.Is(err, c.wantErr) {
					t.Fatalf("Open() error = %v, want errors.Is %v", err, c.wantErr)
				}
				if c.wantText != "" && !strings.Contains(err.Error(), c.wantText) {
					t.Fatalf("Open() error = %q, want it to mention %q", err, c.wantText)
				}
				if rc != nil {
					rc.Close()
					t.Fatalf("Open() returned a reader alongside the error")
				}
				return
			}

			if err != nil {
				t.Fatalf("Open(): %v", err)
			}
			defer rc.Close()

			got, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if string(got) != c.want {
				t.Fatalf("content = %q, want %q", got, c.want)
			}
		})
	}
}

func TestLocalPath(t *testing.T) {
	t.Parallel()

	if got := NewLocal("data/flights.csv").Path(); got != "data/flights.csv" {
		t.Fatalf("Path() = %q", got)
	}
}

func BenchmarkLocalOpenClose(b *testing.B) {
	p := filepath.Join(b.TempDir(), "flights.csv")
	if err := os.WriteFile(p, []byte("YEAR,MONTH\n2015,6\n"), 0o644); err != nil {
		b.Fatalf("write: %v", err)
	}
	src := NewLocal(p)
	ctx := context.Background()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		rc, err := src.Open(ctx)
		if err != nil {
			b.Fatal(err)
		}
		if err := rc.Close(); err != nil {
			b.Fatal(err)
		}
	}
}
