package ddl

// ColumnDef describes a single column in a table definition.
//
// Fields:
//   - Name: logical column name (unquoted; quoting happens at render time)
//   - SQLType: target SQL type (e.g., TEXT, BIGINT, TIMESTAMPTZ)
//   - Nullable: whether NULL is allowed
//   - PrimaryKey: whether the column is part of the primary key
//   - Default: raw default expression
type ColumnDef struct {
	Name       string
	SQLType    string
	Nullable   bool
	PrimaryKey bool
	Default    string
}

// TableDef holds the table name (optionally "schema.table") and an ordered
// list of columns.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}

// TypeMapper maps a record field type to a backend SQL type. primaryKey is
// set for key columns, where some backends need a bounded type.
type TypeMapper func(fieldType string, primaryKey bool) string
