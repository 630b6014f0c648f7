package postgres

import (
	"fmt"
	"strings"

	"flightetl/internal/schema"
)

// sqlType maps a declared column onto a Postgres type, honoring the narrow
// widths: int8 and int16 columns become SMALLINT (Postgres has no single
// -byte integer), float32 becomes REAL. Enums are stored as their labels in
// a VARCHAR sized to the longest label.
func sqlType(d schema.Descriptor) string {
	switch d.Kind {
	case schema.KindInt:
		return "SMALLINT"
	case schema.KindFloat:
		return "REAL"
	case schema.KindBool:
		return "BOOLEAN"
	case schema.KindEnum:
		return fmt.Sprintf("VARCHAR(%d)", maxLabelLen(d.Enum))
	default:
		if d.MaxLen > 0 {
			return fmt.Sprintf("VARCHAR(%d)", d.MaxLen)
		}
		return "TEXT"
	}
}

func maxLabelLen(labels []string) int {
	n := 1
	for _, l := range labels {
		if len(l) > n {
			n = len(l)
		}
	}
	return n
}

// CreateTableSQL renders an idempotent CREATE TABLE for the flight output
// columns. Required columns are declared NOT NULL; the cleaning stage
// rejects rows that would violate that under the default policy.
func CreateTableSQL(table string, cols []schema.Descriptor) (string, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return "", fmt.Errorf("postgres ddl: table name must not be empty")
	}
	if len(cols) == 0 {
		return "", fmt.Errorf("postgres ddl: at least one column is required")
	}

	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		var sb strings.Builder
		sb.WriteString(pgIdent(c.Name))
		sb.WriteByte(' ')
		sb.WriteString(sqlType(c))
		if c.Required {
			sb.WriteString(" NOT NULL")
		}
		defs = append(defs, sb.String())
	}

	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		pgFQN(table),
		strings.Join(defs, ",\n  "),
	), nil
}
