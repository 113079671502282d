package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"normalize/internal/records"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a finding that is surfaced but does not block
	// execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "storage.kind",
// "normalize.groups[1].fields"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	return slices.ContainsFunc(issues, func(i Issue) bool { return i.Severity == SeverityError })
}

// ValidatePipeline performs static validation of a Pipeline. It does not
// mutate the pipeline. Callers decide whether warnings are fatal.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling and identifying runs",
		})
	}
	issues = append(issues, validateSource(p.Source)...)
	issues = append(issues, validateParser(p.Parser)...)
	issues = append(issues, validateResource(p.Resource)...)
	issues = append(issues, validateNormalize(p.Normalize, p.Resource.Schema)...)
	issues = append(issues, validateStore(p.Store)...)
	issues = append(issues, validateStorage(p.Storage, p.Resource.Schema)...)
	issues = append(issues, validateRuntime(p.Runtime)...)

	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue

	switch s.Kind {
	case "file":
		if strings.TrimSpace(s.File.Path) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.file.path",
				Message:  "file source requires a non-empty path",
			})
		}
	case "http":
		if !strings.HasPrefix(s.HTTP.URL, "http://") && !strings.HasPrefix(s.HTTP.URL, "https://") {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.http.url",
				Message:  "http source requires an http(s) url",
			})
		}
	case "s3":
		if strings.TrimSpace(s.S3.Bucket) == "" || strings.TrimSpace(s.S3.Key) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.s3",
				Message:  "s3 source requires bucket and key",
			})
		}
		if strings.TrimSpace(s.S3.Endpoint) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.s3.endpoint",
				Message:  "s3 source requires an endpoint",
			})
		}
	case "":
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.kind",
			Message:  "source.kind must not be empty",
		})
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.kind",
			Message:  fmt.Sprintf("unknown source kind %q", s.Kind),
		})
	}

	switch s.Compression {
	case "", "auto", "none", "gzip", "zstd":
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.compression",
			Message:  fmt.Sprintf("unknown compression %q; want auto, none, gzip or zstd", s.Compression),
		})
	}
	return issues
}

func validateParser(p Parser) []Issue {
	var issues []Issue

	switch p.Kind {
	case "csv", "ndjson", "json", "jsonl":
	case "":
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "parser.kind",
			Message:  "parser.kind must not be empty",
		})
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "parser.kind",
			Message:  fmt.Sprintf("unknown parser kind %q", p.Kind),
		})
	}

	if p.Kind == "csv" && !p.Options.Bool("has_header", true) && len(p.Options.StringSlice("columns")) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "parser.options",
			Message:  "csv without header and without columns; fields are taken from the schema order",
		})
	}
	return issues
}

var knownTypes = map[string]struct{}{
	records.TypeString:   {},
	records.TypeInteger:  {},
	records.TypeNumber:   {},
	records.TypeBoolean:  {},
	records.TypeDate:     {},
	records.TypeDatetime: {},
	records.TypeAny:      {},
}

func validateResource(r Resource) []Issue {
	var issues []Issue

	if len(r.Schema.Fields) == 0 {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "resource.schema.fields",
			Message:  "the main resource must declare its fields",
		})
	}

	seen := make(map[string]struct{}, len(r.Schema.Fields))
	for i, f := range r.Schema.Fields {
		path := fmt.Sprintf("resource.schema.fields[%d]", i)
		if strings.TrimSpace(f.Name) == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: path + ".name", Message: "field name must not be empty"})
			continue
		}
		if _, dup := seen[f.Name]; dup {
			issues = append(issues, Issue{Severity: SeverityError, Path: path + ".name", Message: fmt.Sprintf("field %q declared twice", f.Name)})
		}
		seen[f.Name] = struct{}{}
		if _, ok := knownTypes[f.Type]; f.Type != "" && !ok {
			issues = append(issues, Issue{Severity: SeverityError, Path: path + ".type", Message: fmt.Sprintf("unknown type %q", f.Type)})
		}
	}
	for i, k := range r.Schema.PrimaryKey {
		if _, ok := seen[k]; !ok {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("resource.schema.primaryKey[%d]", i),
				Message:  fmt.Sprintf("primary key field %q is not declared", k),
			})
		}
	}
	return issues
}

// validateNormalize mirrors the checks normalize.ValidateGroups makes at run
// time so that `validate` reports every problem at once.
func validateNormalize(n Normalize, s records.Schema) []Issue {
	var issues []Issue

	if n.Resource != "" {
		if _, err := regexp.Compile(n.Resource); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "normalize.resource",
				Message:  fmt.Sprintf("invalid pattern: %v", err),
			})
		}
	}
	if len(n.Groups) == 0 {
		return append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "normalize.groups",
			Message:  "no groups configured; records are passed through unchanged",
		})
	}

	owner := map[string]string{}
	refs := map[string]int{}
	for i, g := range n.Groups {
		path := fmt.Sprintf("normalize.groups[%d]", i)
		if strings.TrimSpace(g.Ref) == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: path + ".ref", Message: "ref must not be empty"})
		} else if j, dup := refs[g.Ref]; dup {
			issues = append(issues, Issue{Severity: SeverityError, Path: path + ".ref", Message: fmt.Sprintf("ref %q already used by groups[%d]", g.Ref, j)})
		} else {
			refs[g.Ref] = i
		}
		if len(g.Fields) == 0 {
			issues = append(issues, Issue{Severity: SeverityError, Path: path + ".fields", Message: "group must list at least one field"})
		}
		for _, f := range g.Fields {
			if prev, ok := owner[f]; ok {
				issues = append(issues, Issue{Severity: SeverityError, Path: path + ".fields", Message: fmt.Sprintf("field %q is already extracted by %q", f, prev)})
				continue
			}
			owner[f] = g.Ref
			if len(s.Fields) > 0 && !s.HasField(f) {
				issues = append(issues, Issue{Severity: SeverityError, Path: path + ".fields", Message: fmt.Sprintf("field %q is not in resource.schema", f)})
			}
		}
		if slices.Contains(g.Fields, g.Index) {
			issues = append(issues, Issue{Severity: SeverityError, Path: path + ".index", Message: fmt.Sprintf("index %q is also an extracted field", g.Index)})
		}
	}
	for ref, i := range refs {
		if o, extracted := owner[ref]; extracted {
			if o != ref {
				issues = append(issues, Issue{Severity: SeverityError, Path: fmt.Sprintf("normalize.groups[%d].ref", i), Message: fmt.Sprintf("ref %q is extracted by group %q", ref, o)})
			}
			continue
		}
		if s.HasField(ref) {
			issues = append(issues, Issue{Severity: SeverityError, Path: fmt.Sprintf("normalize.groups[%d].ref", i), Message: fmt.Sprintf("ref %q collides with a field of the resource", ref)})
		}
	}
	return issues
}

func validateStore(s Store) []Issue {
	switch s.Kind {
	case "", "memory", "bolt", "sqlite":
		return nil
	}
	return []Issue{{
		Severity: SeverityError,
		Path:     "store.kind",
		Message:  fmt.Sprintf("unknown store kind %q; want memory, bolt or sqlite", s.Kind),
	}}
}

func validateStorage(s Storage, schema records.Schema) []Issue {
	var issues []Issue

	switch strings.ToLower(strings.TrimSpace(s.Kind)) {
	case "", "none":
		return append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.kind",
			Message:  "no storage configured; the run will not persist anything",
		})
	case "postgres", "mysql", "mssql", "sqlite":
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", s.Kind),
		})
	}

	db := s.DB
	if strings.TrimSpace(db.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.db.dsn",
			Message:  "storage.db.dsn must not be empty",
		})
	}
	if strings.TrimSpace(db.Table) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.db.table",
			Message:  "storage.db.table must not be empty",
		})
	}
	switch db.Mode {
	case "", ModeUpdate:
		if len(schema.PrimaryKey) == 0 {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "storage.db.mode",
				Message:  "update mode without resource.schema.primaryKey; the fact table is appended to",
			})
		}
	case ModeAppend:
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.db.mode",
			Message:  fmt.Sprintf("unknown mode %q; want update or append", db.Mode),
		})
	}
	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue

	if r.BatchSize <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "runtime.batch_size",
			Message:  fmt.Sprintf("batch_size=%d; non-positive batch sizes may hurt throughput", r.BatchSize),
		})
	}
	if r.LoadWorkers < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.load_workers",
			Message:  "load_workers must not be negative",
		})
	}
	return issues
}
