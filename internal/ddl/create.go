// Package ddl defines a small, backend-agnostic model for SQL DDL and renders
// CREATE TABLE statements from it. Backends supply identifier quoting and the
// mapping from record field types to SQL types.
package ddl

import (
	"fmt"
	"slices"
	"strings"

	"normalize/internal/records"
)

// Dialect controls how a TableDef is rendered.
type Dialect struct {
	// Name prefixes error messages, e.g. "postgres ddl".
	Name string
	// Quote quotes a single identifier segment. Nil leaves names as-is.
	Quote func(string) string
	// IfNotExists emits CREATE TABLE IF NOT EXISTS.
	IfNotExists bool
}

// Generic renders unquoted, unguarded statements.
var Generic = Dialect{Name: "ddl"}

// FromSchema builds a TableDef for table from a record schema. Primary key
// columns are NOT NULL; every other column is nullable.
func FromSchema(table string, s records.Schema, mapType TypeMapper) (TableDef, error) {
	if strings.TrimSpace(table) == "" {
		return TableDef{}, fmt.Errorf("ddl: missing table")
	}
	if len(s.Fields) == 0 {
		return TableDef{}, fmt.Errorf("ddl: table %s has no fields", table)
	}
	td := TableDef{FQN: table, Columns: make([]ColumnDef, 0, len(s.Fields))}
	for _, f := range s.Fields {
		pk := slices.Contains(s.PrimaryKey, f.Name)
		td.Columns = append(td.Columns, ColumnDef{
			Name:       f.Name,
			SQLType:    mapType(f.Type, pk),
			Nullable:   !pk,
			PrimaryKey: pk,
		})
	}
	return td, nil
}

// BuildCreateTableSQL renders a CREATE TABLE statement from a TableDef.
//
// Rules:
//   - t.FQN must be non-empty; dotted names are quoted per segment.
//   - Each column must have a non-empty Name and SQLType.
//   - A column renders as <Name> <SQLType> [NOT NULL] [DEFAULT <Default>];
//     primary key columns are always NOT NULL.
//   - Primary key columns are collected, in column order, into a trailing
//     PRIMARY KEY (...) clause.
func BuildCreateTableSQL(t TableDef, d Dialect) (string, error) {
	name := d.Name
	if name == "" {
		name = "ddl"
	}
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("%s: table FQN must not be empty", name)
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("%s: at least one column is required", name)
	}

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, len(t.Columns))

	for _, c := range t.Columns {
		col := strings.TrimSpace(c.Name)
		if col == "" {
			return "", fmt.Errorf("%s: column with empty name in table %s", name, fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("%s: column %s missing SQLType", name, col)
		}

		var sb strings.Builder
		sb.WriteString(d.quote(col))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable || c.PrimaryKey {
			sb.WriteString(" NOT NULL")
		}
		if def := strings.TrimSpace(c.Default); def != "" {
			sb.WriteString(" DEFAULT ")
			sb.WriteString(def)
		}
		cols = append(cols, sb.String())

		if c.PrimaryKey {
			pks = append(pks, d.quote(col))
		}
	}
	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	create := "CREATE TABLE "
	if d.IfNotExists {
		create = "CREATE TABLE IF NOT EXISTS "
	}
	return fmt.Sprintf("%s%s (\n  %s\n);", create, d.QuoteFQN(fqn), strings.Join(cols, ",\n  ")), nil
}

// QuoteFQN quotes each non-empty segment of a dotted name.
func (d Dialect) QuoteFQN(fqn string) string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, d.quote(p))
	}
	return strings.Join(out, ".")
}

func (d Dialect) quote(s string) string {
	if d.Quote == nil {
		return s
	}
	return d.Quote(s)
}
