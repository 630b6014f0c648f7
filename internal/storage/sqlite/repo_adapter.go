// This adapter wires the SQLite backend into the storage-agnostic factory
// by registering a constructor and a DDL builder at init time. Callers
// obtain a Repository via storage.New without importing this package
// directly; flightetl/internal/storage/all pulls it in.
package sqlite

import (
	"context"

	"flightetl/internal/storage"
)

// newRepository is a test hook pointing at NewRepository by default.
var newRepository = NewRepository

// wrappedRepo adapts *Repository to storage.Repository, carrying the close
// function returned by NewRepository.
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
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{
			DSN:   cfg.DSN,
			Table: cfg.Table,
		})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})
	storage.RegisterDDL("sqlite", CreateTableSQL)
}
