// Package storage contains the backend-agnostic sink contract and the
// factory that maps a configured kind string to a concrete Repository.
// Backends register themselves from init functions; importing
// flightetl/internal/storage/all pulls every built-in backend into a binary,
// and callers stay free of backend-specific imports.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Repository is the sink for cleaned, enriched rows. CopyFrom inserts rows
// aligned to the columns order using the backend's cheapest bulk primitive
// and must cancel promptly when ctx is done. Exec runs raw SQL, typically
// the CREATE TABLE emitted by the backend's DDL builder.
type Repository interface {
	CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error)
	Exec(ctx context.Context, sql string) error
	Close()
}

// Config selects and parameterizes a backend. Columns carries the output
// column order the driver will use for every CopyFrom call.
type Config struct {
	Kind    string
	DSN     string
	Table   string
	Columns []string
}

// Factory constructs a Repository for one backend kind.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs (or replaces) the factory for a storage kind. Backend
// packages call it from init; tests re-register to inject fakes.
func Register(kind string, fn Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = fn
}

// New opens a Repository of the configured kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	regMu.RLock()
	fn, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s (registered: %v)", cfg.Kind, ListKinds())
	}
	return fn(ctx, cfg)
}

// ListKinds returns the registered kinds, sorted, as a snapshot copy.
func ListKinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
