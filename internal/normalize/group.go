package normalize

import (
	"fmt"
	"strings"

	"normalize/internal/records"
)

// Group declares a set of fields to factor out of the main stream.
type Group struct {
	// Fields are the extracted fields; their order defines the key order.
	Fields []string
	// RefField is the reference field added to the main record.
	RefField string
	// IndexField is the surrogate id field of the dimension table.
	IndexField string
	// Table names the dimension resource. Empty means
	// "<main resource name>_<RefField>", resolved when the group is bound.
	Table string
	// ExistingRows seeds the indexer with dimension rows persisted by an
	// earlier run. Each row must carry IndexField. The rows are read only.
	ExistingRows []records.Record
}

func (g Group) String() string {
	return fmt.Sprintf("%s -> %s.%s (%s)", g.RefField, g.Table, g.IndexField, strings.Join(g.Fields, ", "))
}

// DefaultTable returns the dimension table name used when Table is empty.
func DefaultTable(mainName, ref string) string {
	return mainName + "_" + ref
}

func (g Group) check() error {
	if len(g.Fields) == 0 {
		return fmt.Errorf("%w: group %q has no fields", ErrInvalidGroup, g.RefField)
	}
	if strings.TrimSpace(g.RefField) == "" {
		return fmt.Errorf("%w: group (%s) has no reference field", ErrInvalidGroup, strings.Join(g.Fields, ", "))
	}
	if strings.TrimSpace(g.IndexField) == "" {
		return fmt.Errorf("%w: group %q has no index field", ErrInvalidGroup, g.RefField)
	}
	seen := make(map[string]struct{}, len(g.Fields))
	for _, f := range g.Fields {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("%w: group %q has an empty field name", ErrInvalidGroup, g.RefField)
		}
		if _, dup := seen[f]; dup {
			return fmt.Errorf("%w: group %q lists field %q twice", ErrInvalidGroup, g.RefField, f)
		}
		seen[f] = struct{}{}
	}
	if _, clash := seen[g.IndexField]; clash {
		return fmt.Errorf("%w: group %q uses extracted field %q as index field", ErrInvalidGroup, g.RefField, g.IndexField)
	}
	return nil
}

// ValidateGroups checks groups against the schema of the main resource.
// Groups must be individually well formed, extract disjoint field sets that
// the schema declares, and add reference fields that collide neither with
// each other nor with fields that stay in the main record.
func ValidateGroups(s records.Schema, groups []Group) error {
	const op = "validate groups"

	owner := make(map[string]string)
	refs := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		if err := g.check(); err != nil {
			return &ConfigError{Op: op, Err: err}
		}
		for _, f := range g.Fields {
			if prev, ok := owner[f]; ok {
				return configErrorf(op, ErrInvalidGroup, "field %q is extracted by both %q and %q", f, prev, g.RefField)
			}
			owner[f] = g.RefField
			if !s.HasField(f) {
				return configErrorf(op, ErrInvalidGroup, "group %q: field %q is not in the schema", g.RefField, f)
			}
		}
		if _, dup := refs[g.RefField]; dup {
			return configErrorf(op, ErrInvalidGroup, "reference field %q is declared twice", g.RefField)
		}
		refs[g.RefField] = struct{}{}
	}
	for ref := range refs {
		if o, extracted := owner[ref]; extracted {
			if o == ref {
				continue
			}
			return configErrorf(op, ErrInvalidGroup, "reference field %q is extracted by group %q", ref, o)
		}
		if s.HasField(ref) {
			return configErrorf(op, ErrInvalidGroup, "reference field %q collides with an existing field", ref)
		}
	}
	return nil
}
