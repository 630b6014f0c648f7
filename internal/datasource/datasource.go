// Package datasource defines the byte-stream contract the pipeline reads
// flight extracts through. Concrete sources live in subpackages: file for
// local paths, httpds for HTTP downloads with retry.
package datasource

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"strings"
)

// Source yields the raw byte stream of one flight extract. Open may be called
// once per run; the caller owns the returned reader and must close it.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// MaybeGunzip wraps rc in a gzip decompressor when name carries a ".gz"
// suffix. Closing the returned reader closes both the gzip stream and rc.
// Monthly extracts are often shipped compressed; sniffing by name keeps the
// sources free of per-format branches.
func MaybeGunzip(rc io.ReadCloser, name string) (io.ReadCloser, error) {
	if !strings.HasSuffix(strings.ToLower(name), ".gz") {
		return rc, nil
	}
	gz, err := gzip.NewReader(rc)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("gunzip %s: %w", name, err)
	}
	return &gunzipReadCloser{gz: gz, raw: rc}, nil
}

type gunzipReadCloser struct {
	gz  *gzip.Reader
	raw io.Closer
}

func (g *gunzipReadCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g *gunzipReadCloser) Close() error {
	gerr := g.gz.Close()
	rerr := g.raw.Close()
	if gerr != nil {
		return gerr
	}
	return rerr
}
