// Package records defines the row and schema descriptor types shared by the
// parsers, the normalizer and the storage backends.
//
// A Record is a flat map from field name to scalar value. Field order is not
// carried by the record itself; it comes from the Schema of the resource the
// record belongs to.
package records

// Record is a single flat row.
type Record map[string]any

// Clone returns a shallow copy of r. Values are scalars, so a shallow copy is
// enough to mutate the result without touching r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Values returns the values of r in the order of columns. Missing fields are nil.
func (r Record) Values(columns []string) []any {
	out := make([]any, len(columns))
	for i, c := range columns {
		out[i] = r[c]
	}
	return out
}

// FromValues builds a Record from positional values aligned to columns.
func FromValues(columns []string, values []any) Record {
	r := make(Record, len(columns))
	for i, c := range columns {
		if i < len(values) {
			r[c] = values[i]
		} else {
			r[c] = nil
		}
	}
	return r
}
