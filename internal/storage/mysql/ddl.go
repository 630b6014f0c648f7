package mysql

import (
	"fmt"
	"strings"

	"flightetl/internal/schema"
)

// sqlType maps a declared column onto a MySQL type. MySQL has a genuine
// one-byte integer, so the int8 width gets TINYINT and int16 SMALLINT;
// flags use the conventional TINYINT(1).
func sqlType(d schema.Descriptor) string {
	switch d.Kind {
	case schema.KindInt:
		if d.Width == schema.WidthInt8 {
			return "TINYINT"
		}
		return "SMALLINT"
	case schema.KindFloat:
		return "FLOAT"
	case schema.KindBool:
		return "TINYINT(1)"
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
// columns.
func CreateTableSQL(table string, cols []schema.Descriptor) (string, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return "", fmt.Errorf("mysql ddl: table name must not be empty")
	}
	if len(cols) == 0 {
		return "", fmt.Errorf("mysql ddl: at least one column is required")
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
		quoteIdent(table),
		strings.Join(defs, ",\n  "),
	), nil
}
