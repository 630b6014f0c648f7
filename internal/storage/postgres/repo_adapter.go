// This adapter wires the Postgres backend into the storage-agnostic factory
// by registering a constructor and DDL builder at init time, so callers can
// open a Repository via storage.New(...) without importing this package.
package postgres

import (
	"context"

	"flightetl/internal/storage"
)

// newRepository is a test hook pointing at NewRepository by default. Tests
// replace it to avoid real connections.
var newRepository = NewRepository

// wrappedRepo implements storage.Repository by delegating to the concrete
// *Repository while providing the Close method from the constructor's
// cleanup function.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

var _ storage.Repository = (*wrappedRepo)(nil)

func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{
			DSN:   cfg.DSN,
			Table: cfg.Table,
		})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})
	storage.RegisterDDL("postgres", CreateTableSQL)
}
