package storage

import (
	"context"
	"fmt"
	"sync"

	"flightetl/internal/schema"
)

// DDLFn renders a backend's CREATE TABLE statement for the given column
// descriptors. The statement must be idempotent (IF NOT EXISTS or an
// equivalent guard) so auto_create_table is safe on every run.
type DDLFn func(table string, cols []schema.Descriptor) (string, error)

var (
	ddlMu  sync.RWMutex
	ddlFns = map[string]DDLFn{}
)

// RegisterDDL installs the DDL builder for a storage kind. Called from
// backend init functions alongside Register.
func RegisterDDL(kind string, fn DDLFn) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlFns[kind] = fn
}

// CreateTableSQL renders the CREATE TABLE statement for kind without
// touching a database. Used by EnsureTable and by -validate dry runs.
func CreateTableSQL(kind, table string, cols []schema.Descriptor) (string, error) {
	ddlMu.RLock()
	fn, ok := ddlFns[kind]
	ddlMu.RUnlock()
	if !ok {
		return "", fmt.Errorf("no DDL builder registered for storage.kind=%s", kind)
	}
	return fn(table, cols)
}

// EnsureTable creates the output table on repo if it does not exist,
// shaped by the column descriptors. Callers stay backend-agnostic; the
// width and null declarations in the descriptors decide the column types.
func EnsureTable(ctx context.Context, repo Repository, kind, table string, cols []schema.Descriptor) error {
	sql, err := CreateTableSQL(kind, table, cols)
	if err != nil {
		return err
	}
	if sql == "" {
		return nil
	}
	if err := repo.Exec(ctx, sql); err != nil {
		return fmt.Errorf("apply DDL for %s: %w", table, err)
	}
	return nil
}
