package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"normalize/internal/records"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

const jsonPipeline = `{
  "job": "sales",
  "source": { "kind": "file", "file": { "path": "sales.csv.gz" } },
  "parser": { "kind": "csv", "options": { "has_header": true, "comma": ";", "header_map": { "Město": "city" } } },
  "resource": {
    "schema": {
      "fields": [
        { "name": "order", "type": "integer" },
        { "name": "city", "type": "string" },
        { "name": "country", "type": "string" }
      ],
      "primaryKey": ["order"]
    }
  },
  "normalize": { "groups": [ { "fields": ["city", "country"], "ref": "city_id" } ] },
  "storage": { "kind": "sqlite", "db": { "dsn": "file:sales.db", "table": "sales", "auto_create_table": true } },
  "runtime": { "batch_size": 100 }
}`

func TestLoadJSON(t *testing.T) {
	t.Setenv("NORMALIZE_STORAGE_DB_DSN", "")
	p, err := Load(writeFile(t, t.TempDir(), "p.json", jsonPipeline))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if p.Job != "sales" || p.Source.File.Path != "sales.csv.gz" || p.Source.Compression != "auto" {
		t.Fatalf("job/source decoded = %q %#v", p.Job, p.Source)
	}
	if got := p.Parser.Options.Rune("comma", ','); got != ';' {
		t.Fatalf("comma = %q, want ';'", got)
	}
	// viper folds map keys to lower case; the CSV parser matches header_map
	// case-insensitively.
	found := false
	for k, v := range p.Parser.Options.StringMap("header_map") {
		found = found || (strings.EqualFold(k, "Město") && v == "city")
	}
	if !found {
		t.Fatalf("header_map = %#v", p.Parser.Options.StringMap("header_map"))
	}
	wantFields := []string{"order", "city", "country"}
	if got := p.Resource.Schema.FieldNames(); !reflect.DeepEqual(got, wantFields) {
		t.Fatalf("fields = %v, want %v", got, wantFields)
	}
	if !reflect.DeepEqual(p.Resource.Schema.PrimaryKey, []string{"order"}) {
		t.Fatalf("primaryKey = %v", p.Resource.Schema.PrimaryKey)
	}
	if f, _ := p.Resource.Schema.Field("order"); f.Type != records.TypeInteger {
		t.Fatalf("order type = %q", f.Type)
	}
	if p.Resource.Name != "sales" {
		t.Fatalf("resource name = %q, want table name", p.Resource.Name)
	}

	if len(p.Normalize.Groups) != 1 {
		t.Fatalf("groups = %#v", p.Normalize.Groups)
	}
	g := p.Normalize.Groups[0]
	if g.Ref != "city_id" || g.Index != "id" || !reflect.DeepEqual(g.Fields, []string{"city", "country"}) {
		t.Fatalf("group = %#v", g)
	}

	if p.Storage.Kind != "sqlite" || p.Storage.DB.Mode != ModeUpdate || !p.Storage.DB.AutoCreateTable {
		t.Fatalf("storage = %#v", p.Storage)
	}
	if p.Runtime.BatchSize != 100 || p.Runtime.LoadWorkers != 4 {
		t.Fatalf("runtime = %#v, want batch 100 workers 4", p.Runtime)
	}
	if p.Store.Kind != "memory" {
		t.Fatalf("store kind = %q, want memory", p.Store.Kind)
	}
	if issues := ValidatePipeline(*p); HasErrors(issues) {
		t.Fatalf("unexpected issues: %v", issues)
	}
}

func TestLoadYAMLWithEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "NORMALIZE_STORE_DIR=/var/tmp/normalize\n")
	t.Setenv("NORMALIZE_STORAGE_DB_DSN", "postgres://u:p@db/sales")
	t.Setenv("NORMALIZE_STORE_DIR", "")
	os.Unsetenv("NORMALIZE_STORE_DIR")

	p, err := Load(writeFile(t, dir, "p.yaml", `
job: sales
resource:
  name: sales
  schema:
    fields:
      - {name: city, type: string}
      - {name: amount, type: number}
normalize:
  groups:
    - fields: [city]
      ref: city_id
      index: city_key
      table: dim_city
store:
  kind: bolt
storage:
  kind: postgres
  db:
    table: public.sales
    mode: append
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Storage.DB.DSN != "postgres://u:p@db/sales" {
		t.Fatalf("dsn from env = %q", p.Storage.DB.DSN)
	}
	if p.Store.Dir != "/var/tmp/normalize" {
		t.Fatalf("store dir from .env = %q", p.Store.Dir)
	}
	if p.Parser.Kind != "csv" || p.Source.Kind != "file" {
		t.Fatalf("defaults not applied: %q %q", p.Parser.Kind, p.Source.Kind)
	}
	g := p.Normalize.Groups[0]
	if g.Index != "city_key" || g.Table != "dim_city" {
		t.Fatalf("group = %#v", g)
	}
	if p.Storage.DB.Mode != ModeAppend || !p.Persist() {
		t.Fatalf("storage = %#v", p.Storage)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for a missing pipeline")
	}
}

func TestOptions_String_Bool_Int_Rune_DefaultsAndCoercion(t *testing.T) {
	t.Parallel()

	o := Options{
		"s":  "hello",
		"b":  true,
		"i":  float64(42),
		"iy": 7,
		"r":  ",",
	}

	if got := o.String("s", "def"); got != "hello" {
		t.Fatalf("String(s) = %q, want hello", got)
	}
	if got := o.String("missing", "def"); got != "def" {
		t.Fatalf("String(missing) = %q, want def", got)
	}
	if got := o.Bool("b", false); got != true {
		t.Fatalf("Bool(b) = %v, want true", got)
	}
	if got := o.Bool("s", true); got != true {
		t.Fatalf("Bool(s) = %v, want default for non-bool", got)
	}
	if got := o.Int("i", 0); got != 42 {
		t.Fatalf("Int(i) = %d, want 42", got)
	}
	if got := o.Int("iy", 0); got != 7 {
		t.Fatalf("Int(iy) = %d, want 7", got)
	}
	if got := o.Int("missing", 7); got != 7 {
		t.Fatalf("Int(missing) = %d, want 7", got)
	}
	if got := o.Rune("r", ';'); got != ',' {
		t.Fatalf("Rune(r) = %q, want ','", got)
	}

	o["r2"] = "ž"
	r := o.Rune("r2", 'x')
	if !utf8.ValidRune(r) || string(r) != "ž" {
		t.Fatalf("Rune(r2) = %#U, want ž", r)
	}
}

func TestOptions_StringMap_StringSlice(t *testing.T) {
	t.Parallel()

	o := Options{
		"m":  map[string]any{"A": "a", "X": 1},
		"s1": []any{"alpha", 3, "beta"},
		"s2": []string{"gamma"},
	}
	if sm := o.StringMap("m"); !reflect.DeepEqual(sm, map[string]string{"A": "a"}) {
		t.Fatalf("StringMap = %#v", sm)
	}
	if sm := o.StringMap("missing"); sm == nil || len(sm) != 0 {
		t.Fatalf("StringMap(missing) = %#v, want empty map", sm)
	}
	if s := o.StringSlice("s1"); !reflect.DeepEqual(s, []string{"alpha", "beta"}) {
		t.Fatalf("StringSlice(s1) = %#v", s)
	}
	if s := o.StringSlice("s2"); !reflect.DeepEqual(s, []string{"gamma"}) {
		t.Fatalf("StringSlice(s2) = %#v", s)
	}
}

func TestOptions_UnmarshalJSON_Null(t *testing.T) {
	var o Options
	if err := o.UnmarshalJSON([]byte("null")); err != nil || o == nil {
		t.Fatalf("UnmarshalJSON(null) = %v, %#v", err, o)
	}
}
