package records

import "slices"

// Common field types. They follow the Table Schema vocabulary used by the
// pipeline configuration files.
const (
	TypeString   = "string"
	TypeInteger  = "integer"
	TypeNumber   = "number"
	TypeBoolean  = "boolean"
	TypeDate     = "date"
	TypeDatetime = "datetime"
	TypeAny      = "any"
)

// Field is a single field definition of a schema.
type Field struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// Schema is the ordered field list and primary key of a resource.
type Schema struct {
	Fields     []Field  `json:"fields" yaml:"fields"`
	PrimaryKey []string `json:"primaryKey,omitempty" yaml:"primaryKey"`
}

// Resource describes one table in a package of record streams.
type Resource struct {
	Name   string `json:"name" yaml:"name"`
	Path   string `json:"path,omitempty" yaml:"path"`
	Schema Schema `json:"schema" yaml:"schema"`
}

// FieldNames returns the field names in schema order.
func (s Schema) FieldNames() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// Field returns the definition of the named field.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// HasField reports whether the schema declares name.
func (s Schema) HasField(name string) bool {
	_, ok := s.Field(name)
	return ok
}

// Clone returns a deep copy of s.
func (s Schema) Clone() Schema {
	return Schema{
		Fields:     slices.Clone(s.Fields),
		PrimaryKey: slices.Clone(s.PrimaryKey),
	}
}

// Rewrite is the outcome of factoring a group of fields out of a schema.
type Rewrite struct {
	// Main is the rewritten schema of the source resource.
	Main Schema
	// Extracted holds the definitions of the factored-out fields, in the
	// order they appeared in the original schema.
	Extracted []Field
	// ExtractedPK lists the factored-out fields that were part of the
	// original primary key, in primary key order.
	ExtractedPK []string
}

// RewriteSchema removes fields from s, appends an integer field named ref and
// rewrites the primary key so that it drops fields and ends with ref. s is
// not modified.
func RewriteSchema(s Schema, fields []string, ref string) Rewrite {
	in := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		in[f] = struct{}{}
	}

	var rw Rewrite
	rw.Main.Fields = make([]Field, 0, len(s.Fields)+1)
	for _, f := range s.Fields {
		if _, ok := in[f.Name]; ok {
			rw.Extracted = append(rw.Extracted, f)
			continue
		}
		rw.Main.Fields = append(rw.Main.Fields, f)
	}
	rw.Main.Fields = append(rw.Main.Fields, Field{Name: ref, Type: TypeInteger})

	rw.Main.PrimaryKey = make([]string, 0, len(s.PrimaryKey)+1)
	for _, k := range s.PrimaryKey {
		if _, ok := in[k]; ok {
			rw.ExtractedPK = append(rw.ExtractedPK, k)
			continue
		}
		rw.Main.PrimaryKey = append(rw.Main.PrimaryKey, k)
	}
	rw.Main.PrimaryKey = append(rw.Main.PrimaryKey, ref)
	return rw
}

// DimensionSchema builds the schema of a dimension table: the integer index
// field followed by the extracted fields, keyed by the index field plus the
// extracted fields that belonged to the original primary key.
func DimensionSchema(index string, rw Rewrite) Schema {
	fields := make([]Field, 0, len(rw.Extracted)+1)
	fields = append(fields, Field{Name: index, Type: TypeInteger})
	fields = append(fields, rw.Extracted...)

	pk := make([]string, 0, len(rw.ExtractedPK)+1)
	pk = append(pk, index)
	pk = append(pk, rw.ExtractedPK...)
	return Schema{Fields: fields, PrimaryKey: pk}
}
