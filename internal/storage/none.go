package storage

import (
	"context"

	"flightetl/internal/schema"
)

// discardRepo accepts and drops every row. It backs the "none" kind, the
// default for KPI-only runs where nobody wants the cleaned dataset
// persisted; the pipeline still exercises the full sink path.
type discardRepo struct{}

func (discardRepo) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func (discardRepo) Exec(ctx context.Context, sql string) error { return ctx.Err() }

func (discardRepo) Close() {}

func init() {
	Register("none", func(ctx context.Context, cfg Config) (Repository, error) {
		return discardRepo{}, nil
	})
	RegisterDDL("none", func(table string, cols []schema.Descriptor) (string, error) {
		return "", nil
	})
}
