package postgres

import (
	"context"

	"normalize/internal/ddl"
	"normalize/internal/records"
	"normalize/internal/storage"
)

// DDL renders CREATE TABLE IF NOT EXISTS with double-quoted identifiers.
var DDL = ddl.Dialect{Name: "postgres ddl", Quote: pgIdent, IfNotExists: true}

// MapType maps a record field type to a Postgres column type.
func MapType(fieldType string, _ bool) string {
	switch fieldType {
	case records.TypeInteger:
		return "BIGINT"
	case records.TypeNumber:
		return "DOUBLE PRECISION"
	case records.TypeBoolean:
		return "BOOLEAN"
	case records.TypeDate:
		return "DATE"
	case records.TypeDatetime:
		return "TIMESTAMPTZ"
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
