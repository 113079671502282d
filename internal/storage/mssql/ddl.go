package mssql

import (
	"context"
	"fmt"
	"strings"

	"normalize/internal/ddl"
	"normalize/internal/records"
	"normalize/internal/storage"
)

// DDL renders bracket-quoted identifiers. SQL Server has no CREATE TABLE IF
// NOT EXISTS; BuildCreateTableSQL adds an OBJECT_ID guard instead.
var DDL = ddl.Dialect{Name: "mssql ddl", Quote: msIdent}

// MapType maps a record field type to a SQL Server column type. Key columns
// get NVARCHAR(450) so they fit in an index key.
func MapType(fieldType string, primaryKey bool) string {
	switch fieldType {
	case records.TypeInteger:
		return "BIGINT"
	case records.TypeNumber:
		return "FLOAT"
	case records.TypeBoolean:
		return "BIT"
	case records.TypeDate:
		return "DATE"
	case records.TypeDatetime:
		return "DATETIME2"
	default:
		if primaryKey {
			return "NVARCHAR(450)"
		}
		return "NVARCHAR(MAX)"
	}
}

// BuildCreateTableSQL wraps the CREATE TABLE in an IF OBJECT_ID(...) IS NULL
// block so it is safe to run repeatedly.
func BuildCreateTableSQL(t ddl.TableDef) (string, error) {
	create, err := ddl.BuildCreateTableSQL(t, DDL)
	if err != nil {
		return "", err
	}
	fqn := DDL.QuoteFQN(t.FQN)
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\n  %s\nEND;",
		strings.ReplaceAll(fqn, "'", "''"), strings.ReplaceAll(create, "\n", "\n  ")), nil
}

// EnsureTable creates table for schema if it does not exist.
func EnsureTable(ctx context.Context, repo storage.Repository, table string, schema records.Schema) error {
	td, err := ddl.FromSchema(table, schema, MapType)
	if err != nil {
		return err
	}
	stmt, err := BuildCreateTableSQL(td)
	if err != nil {
		return err
	}
	return repo.Exec(ctx, stmt)
}
