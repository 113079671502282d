// Package all wires every built-in storage backend into the storage factory.
//
// It exists purely for side effects: importing it runs the init functions of
// each backend, which register their factories and DDL bootstrappers. The
// following storage kinds become available:
//
//   - "postgres" (normalize/internal/storage/postgres)
//   - "mysql"    (normalize/internal/storage/mysql)
//   - "mssql"    (normalize/internal/storage/mssql)
//   - "sqlite"   (normalize/internal/storage/sqlite)
//
// A binary that supports only a subset can import the backends it needs
// directly instead.
package all

import (
	_ "normalize/internal/storage/mssql"
	_ "normalize/internal/storage/mysql"
	_ "normalize/internal/storage/postgres"
	_ "normalize/internal/storage/sqlite"
)
