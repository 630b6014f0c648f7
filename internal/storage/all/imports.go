// Package all wires every built-in storage backend into the storage
// factory. It exists purely for side effects: importing it (blank) runs
// each backend's init, which registers its factory and DDL builder.
//
// After a blank import of this package the following sink kinds are
// available through storage.New, alongside the always-registered "none":
//
//   - "sqlite"   (flightetl/internal/storage/sqlite)
//   - "postgres" (flightetl/internal/storage/postgres)
//   - "mysql"    (flightetl/internal/storage/mysql)
//   - "mssql"    (flightetl/internal/storage/mssql)
//
// A binary that only needs a subset can blank-import the specific backend
// packages instead.
package all

import (
	_ "flightetl/internal/storage/mssql"
	_ "flightetl/internal/storage/mysql"
	_ "flightetl/internal/storage/postgres"
	_ "flightetl/internal/storage/sqlite"
)
