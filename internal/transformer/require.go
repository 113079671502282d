package transformer

import (
	"fmt"
	"iter"

	"normalize/internal/records"
)

// Require drops records in which any of fields is nil or missing, reporting
// them to onReject. The fact table's primary key columns go through here
// before an upsert.
func Require(src iter.Seq2[records.Record, error], fields []string, onReject func(records.Record, error)) iter.Seq2[records.Record, error] {
	if len(fields) == 0 {
		return src
	}
	return func(yield func(records.Record, error) bool) {
		for rec, err := range src {
			if err == nil {
				if missing := firstNil(rec, fields); missing != "" {
					if onReject != nil {
						onReject(rec, fmt.Errorf("required field %q is empty", missing))
					}
					continue
				}
			}
			if !yield(rec, err) {
				return
			}
		}
	}
}

func firstNil(r records.Record, fields []string) string {
	for _, f := range fields {
		if r[f] == nil {
			return f
		}
	}
	return ""
}
