package ddl

import (
	"strings"
	"testing"

	"normalize/internal/records"
)

func TestBuildCreateTableSQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		def         TableDef
		dialect     Dialect
		wantSQL     string
		errContains string
	}{
		{
			name:        "empty FQN returns error",
			def:         TableDef{Columns: []ColumnDef{{Name: "id", SQLType: "INT"}}},
			errContains: "table FQN must not be empty",
		},
		{
			name:        "no columns returns error",
			def:         TableDef{FQN: "public.t"},
			dialect:     Dialect{Name: "postgres ddl"},
			errContains: "postgres ddl: at least one column is required",
		},
		{
			name:        "column with empty name returns error",
			def:         TableDef{FQN: "t", Columns: []ColumnDef{{SQLType: "INT"}}},
			errContains: "column with empty name",
		},
		{
			name:        "column with empty type returns error",
			def:         TableDef{FQN: "t", Columns: []ColumnDef{{Name: "id"}}},
			errContains: "column id missing SQLType",
		},
		{
			name: "generic rendering",
			def: TableDef{FQN: "public.t", Columns: []ColumnDef{
				{Name: "id", SQLType: "BIGINT", PrimaryKey: true, Nullable: true},
				{Name: "name", SQLType: "TEXT", Nullable: true, Default: "'x'"},
				{Name: "n", SQLType: "INT"},
			}},
			dialect: Generic,
			wantSQL: "CREATE TABLE public.t (\n  id BIGINT NOT NULL,\n  name TEXT DEFAULT 'x',\n  n INT NOT NULL,\n  PRIMARY KEY (id)\n);",
		},
		{
			name: "quoted with IF NOT EXISTS",
			def: TableDef{FQN: "s.t", Columns: []ColumnDef{
				{Name: `we"ird`, SQLType: "TEXT", Nullable: true},
			}},
			dialect: Dialect{Quote: func(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }, IfNotExists: true},
			wantSQL: "CREATE TABLE IF NOT EXISTS \"s\".\"t\" (\n  \"we\"\"ird\" TEXT\n);",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := BuildCreateTableSQL(tc.def, tc.dialect)
			if tc.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tc.errContains) {
					t.Fatalf("err = %v, want containing %q", err, tc.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.wantSQL {
				t.Fatalf("SQL mismatch\n got: %q\nwant: %q", got, tc.wantSQL)
			}
		})
	}
}

func TestFromSchema(t *testing.T) {
	t.Parallel()

	s := records.Schema{
		Fields:     []records.Field{{Name: "id", Type: records.TypeInteger}, {Name: "city", Type: records.TypeString}},
		PrimaryKey: []string{"id"},
	}
	td, err := FromSchema("sales_city_ref", s, func(typ string, pk bool) string {
		if pk {
			return "KEY_" + typ
		}
		return "COL_" + typ
	})
	if err != nil {
		t.Fatalf("FromSchema: %v", err)
	}
	want := []ColumnDef{
		{Name: "id", SQLType: "KEY_integer", PrimaryKey: true},
		{Name: "city", SQLType: "COL_string", Nullable: true},
	}
	if td.FQN != "sales_city_ref" || len(td.Columns) != 2 || td.Columns[0] != want[0] || td.Columns[1] != want[1] {
		t.Fatalf("FromSchema = %+v", td)
	}

	if _, err := FromSchema("", s, nil); err == nil {
		t.Fatalf("expected error for empty table")
	}
	if _, err := FromSchema("t", records.Schema{}, nil); err == nil {
		t.Fatalf("expected error for empty schema")
	}
}
