package sqlite

import (
	"fmt"
	"strings"

	"flightetl/internal/schema"
)

// sqlType maps a declared column onto a SQLite affinity. SQLite ignores
// width, so the narrow integer widths all collapse to INTEGER; enums are
// stored as their label text.
func sqlType(d schema.Descriptor) string {
	switch d.Kind {
	case schema.KindInt:
		return "INTEGER"
	case schema.KindFloat:
		return "REAL"
	case schema.KindBool:
		return "INTEGER" // 0/1
	default:
		return "TEXT"
	}
}

// CreateTableSQL renders an idempotent CREATE TABLE for the flight output
// columns:
//
//	CREATE TABLE IF NOT EXISTS "flights" (
//	  "year" INTEGER NOT NULL,
//	  ...
//	);
func CreateTableSQL(table string, cols []schema.Descriptor) (string, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return "", fmt.Errorf("sqlite ddl: table name must not be empty")
	}
	if len(cols) == 0 {
		return "", fmt.Errorf("sqlite ddl: at least one column is required")
	}

	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		var sb strings.Builder
		sb.WriteString(quoteIdent(c.Name))
		sb.WriteByte(' ')
		sb.WriteString(sqlType(c))
		if c.Required {
			sb.WriteString(" NOT NULL")
		}
		defs = append(defs, sb.String())
	}

	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		quoteFQN(table),
		strings.Join(defs, ",\n  "),
	), nil
}
