// Package config defines the pipeline model for the normalize command: where
// records come from, how they are parsed and typed, which field groups are
// factored out into dimension tables, and where the fact and dimension tables
// are written.
//
// Pipelines are JSON or YAML files decoded by Load. Field names in Go mirror
// the keys used in pipeline files.
//
// Example (trimmed):
//
//	{
//	  "job":      "sales",
//	  "source":   { "kind": "file", "file": { "path": "sales.csv.gz" } },
//	  "parser":   { "kind": "csv", "options": { "has_header": true } },
//	  "resource": { "name": "sales", "schema": { "fields": [...], "primaryKey": ["order"] } },
//	  "normalize": { "groups": [ { "fields": ["city", "country"], "ref": "city_id" } ] },
//	  "storage":  { "kind": "postgres", "db": { "dsn": "...", "table": "sales" } }
//	}
package config

import (
	"encoding/json"
	"time"

	"normalize/internal/records"
)

// Pipeline is the top-level object decoded from a pipeline file.
type Pipeline struct {
	// Job names the run in logs and metrics.
	Job string `json:"job"`

	Source    Source        `json:"source"`
	Parser    Parser        `json:"parser"`
	Coerce    Coerce        `json:"coerce"`
	Resource  Resource      `json:"resource"`
	Normalize Normalize     `json:"normalize"`
	Store     Store         `json:"store"`
	Storage   Storage       `json:"storage"`
	Runtime   RuntimeConfig `json:"runtime"`
}

// RuntimeConfig controls batching and concurrency.
type RuntimeConfig struct {
	// BatchSize is the number of rows per database write.
	BatchSize int `json:"batch_size"`
	// LoadWorkers bounds how many dimension tables are read concurrently
	// before the run starts.
	LoadWorkers int `json:"load_workers"`
}

// Source identifies where the input bytes come from.
type Source struct {
	// Kind selects the source implementation: "file", "http" or "s3".
	Kind string `json:"kind"`

	File SourceFile `json:"file"`
	HTTP SourceHTTP `json:"http"`
	S3   SourceS3   `json:"s3"`

	// Compression is "auto" (by file extension), "none", "gzip" or "zstd".
	Compression string `json:"compression"`
}

// SourceFile holds configuration for the "file" source kind.
type SourceFile struct {
	Path string `json:"path"`
}

// SourceHTTP holds configuration for the "http" source kind.
type SourceHTTP struct {
	URL                string        `json:"url"`
	Timeout            time.Duration `json:"timeout"`
	MaxRetries         int           `json:"max_retries"`
	InsecureSkipVerify bool          `json:"insecure_skip_verify"`
}

// SourceS3 holds configuration for the "s3" source kind (any S3-compatible
// endpoint).
type SourceS3 struct {
	Endpoint  string `json:"endpoint"`
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Region    string `json:"region"`
	UseSSL    bool   `json:"use_ssl"`
}

// Parser selects how raw bytes are turned into records.
type Parser struct {
	// Kind selects the parser implementation: "csv" or "ndjson" ("json" and
	// "jsonl" are aliases).
	Kind string `json:"kind"`

	// Options is a free-form map interpreted by the parser implementation.
	// For CSV, typical keys include:
	//   has_header (bool), comma (string), trim_space (bool),
	//   lazy_quotes (bool), header_map (object), fold_headers (bool)
	Options Options `json:"options"`
}

// Coerce tunes how parsed text is converted to the schema types.
type Coerce struct {
	Layout         string   `json:"layout"`
	DatetimeLayout string   `json:"datetime_layout"`
	Truthy         []string `json:"truthy"`
	Falsy          []string `json:"falsy"`
}

// Resource describes the main resource produced by the parser.
type Resource struct {
	// Name is the resource name; dimension tables default to
	// "<name>_<ref>". Empty means the storage table, then the job.
	Name string `json:"name"`
	// Schema types every parsed field and declares the primary key.
	Schema records.Schema `json:"schema"`
}

// Normalize lists the groups factored out of the main resource.
type Normalize struct {
	// Resource is a regular expression selecting the main resource by name.
	// Empty selects the single parsed resource.
	Resource string `json:"resource"`

	Groups []Group `json:"groups"`
}

// Group declares one dimension table.
type Group struct {
	// Fields are extracted from the main record, in key order.
	Fields []string `json:"fields"`
	// Ref is the reference field written to the fact table.
	Ref string `json:"ref"`
	// Index is the surrogate id column of the dimension table. Default "id".
	Index string `json:"index,omitempty"`
	// Table names the dimension table. Default "<storage table>_<ref>".
	Table string `json:"table,omitempty"`
}

// Store selects where surrogate keys are kept while the run is in progress.
type Store struct {
	// Kind is "memory" (default), "bolt" or "sqlite".
	Kind string `json:"kind"`
	// Dir holds the temporary files of disk stores.
	Dir string `json:"dir"`
}

// Storage selects the sink for the fact and dimension tables. An empty kind
// or "none" runs without persisting anything.
type Storage struct {
	// Kind selects the backend: "postgres", "mysql", "mssql" or "sqlite".
	Kind string `json:"kind"`

	DB DBConfig `yaml:"db" json:"db"`
}

// Write modes for the fact table.
const (
	ModeUpdate = "update"
	ModeAppend = "append"
)

// DBConfig configures the database sink.
type DBConfig struct {
	// DSN is the driver connection string.
	DSN string `json:"dsn"`

	// Table is the fact table (e.g., "public.sales").
	Table string `json:"table"`

	// Mode is "update" (upsert on the primary key, the default) or "append".
	// Dimension tables are always upserted.
	Mode string `json:"mode"`

	// AutoCreateTable creates missing fact and dimension tables from the
	// rewritten schemas.
	AutoCreateTable bool `json:"auto_create_table"`
}

// Options is a small helper to fetch typed values from free-form maps. It
// performs only minimal type coercion and returns provided defaults when a key
// is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers arrive as float64
// and YAML numbers as int; both are accepted.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		case int64:
			return int(n)
		}
	}
	return def
}

// Rune returns the first rune of a string value for key, or def if key is
// missing or empty.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// StringMap returns a map[string]string for key when the value is an object
// whose values are strings. Non-string values are ignored.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if v, ok := o[key]; ok {
		switch m := v.(type) {
		case map[string]any:
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					res[k] = s
				}
			}
		case map[string]string:
			for k, s := range m {
				res[k] = s
			}
		}
	}
	return res
}

// StringSlice returns a []string for key when the value is an array of
// strings. Returns nil when the key is missing or the value is not an array.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// UnmarshalJSON decodes a missing or null "options" object to an empty map.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
