package mssql

import (
	"fmt"
	"strings"

	"flightetl/internal/schema"
)

// sqlType maps a declared column onto a T-SQL type, honoring the narrow
// widths: TINYINT for int8 (note it is unsigned in T-SQL, which the 0..127
// values here never exceed), SMALLINT for int16, REAL for float32, BIT for
// flags.
func sqlType(d schema.Descriptor) string {
	switch d.Kind {
	case schema.KindInt:
		if d.Width == schema.WidthInt8 {
			return "TINYINT"
		}
		return "SMALLINT"
	case schema.KindFloat:
		return "REAL"
	case schema.KindBool:
		return "BIT"
	case schema.KindEnum:
		return fmt.Sprintf("NVARCHAR(%d)", maxLabelLen(d.Enum))
	default:
		if d.MaxLen > 0 {
			return fmt.Sprintf("NVARCHAR(%d)", d.MaxLen)
		}
		return "NVARCHAR(MAX)"
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

// CreateTableSQL renders a guarded CREATE TABLE for the flight output
// columns. T-SQL has no CREATE TABLE IF NOT EXISTS, so the statement wraps
// the create in an OBJECT_ID existence check:
//
//	IF OBJECT_ID(N'[dbo].[flights]', N'U') IS NULL
//	BEGIN
//	  CREATE TABLE [dbo].[flights] ( ... );
//	END;
func CreateTableSQL(table string, cols []schema.Descriptor) (string, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return "", fmt.Errorf("mssql ddl: table name must not be empty")
	}
	if len(cols) == 0 {
		return "", fmt.Errorf("mssql ddl: at least one column is required")
	}

	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		var sb strings.Builder
		sb.WriteString(msIdent(c.Name))
		sb.WriteByte(' ')
		sb.WriteString(sqlType(c))
		if c.Required {
			sb.WriteString(" NOT NULL")
		}
		defs = append(defs, sb.String())
	}

	fqn := msFQN(table)
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\n  CREATE TABLE %s (\n    %s\n  );\nEND;",
		fqn, fqn,
		strings.Join(defs, ",\n    "),
	), nil
}
