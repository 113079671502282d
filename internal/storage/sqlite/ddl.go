package sqlite

import (
	"context"

	"normalize/internal/ddl"
	"normalize/internal/records"
	"normalize/internal/storage"
)

// DDL renders CREATE TABLE IF NOT EXISTS with double-quoted identifiers.
var DDL = ddl.Dialect{Name: "sqlite ddl", Quote: quoteIdent, IfNotExists: true}

// MapType maps a record field type to a SQLite column type. DATE and
// DATETIME declarations make the driver hand values back as time.Time.
func MapType(fieldType string, _ bool) string {
	switch fieldType {
	case records.TypeInteger, records.TypeBoolean:
		return "INTEGER"
	case records.TypeNumber:
		return "REAL"
	case records.TypeDate:
		return "DATE"
	case records.TypeDatetime:
		return "DATETIME"
	default:
		return "TEXT"
	}
}

// EnsureTable creates table for schema if it does not exist.
func EnsureTable(ctx context.Context, repo storage.Repository, table string, schema records.Schema) error {
	td, err := ddl.FromSchema(table, schema, MapType)
	if err != nil {
		return err
	}
	stmt, err := ddl.BuildCreateTableSQL(td, DDL)
	if err != nil {
		return err
	}
	return repo.Exec(ctx, stmt)
}
