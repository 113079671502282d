package mysql

import (
	"context"

	"normalize/internal/ddl"
	"normalize/internal/records"
	"normalize/internal/storage"
)

// DDL renders CREATE TABLE IF NOT EXISTS with backtick identifiers.
var DDL = ddl.Dialect{Name: "mysql ddl", Quote: quoteIdent, IfNotExists: true}

// MapType maps a record field type to a MySQL column type. Key columns get a
// bounded VARCHAR because TEXT cannot be indexed without a prefix length.
func MapType(fieldType string, primaryKey bool) string {
	switch fieldType {
	case records.TypeInteger:
		return "BIGINT"
	case records.TypeNumber:
		return "DOUBLE"
	case records.TypeBoolean:
		return "BOOLEAN"
	case records.TypeDate:
		return "DATE"
	case records.TypeDatetime:
		return "DATETIME(6)"
	default:
		if primaryKey {
			return "VARCHAR(255)"
		}
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
