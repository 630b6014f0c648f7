// Package file reads flight extracts off the local filesystem.
package file

import (
	"context"
	"fmt"
	"io"
	"os"

	"flightetl/internal/datasource"
)

// Local reads one filesystem path. Paths ending in ".gz" inflate
// transparently, the way archived monthly extracts are shipped.
type Local struct{ path string }

// NewLocal binds a source to a path. The value holds no open state, so every
// Open hands back an independent reader.
func NewLocal(path string) *Local { return &Local{path: path} }

// Path returns the bound filesystem path.
func (l *Local) Path() string { return l.path }

// Open opens the path for reading. A context canceled before the call
// returns the context error without touching the disk. Filesystem errors
// carry the path and keep the cause unwrappable, so errors.Is against
// os.ErrNotExist still answers. For ".gz" paths the reader inflates on the
// fly and its Close also closes the file underneath.
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	return datasource.MaybeGunzip(f, l.path)
}
