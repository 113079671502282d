package normalize

import (
	"iter"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"normalize/internal/records"
)

// prepare builds the cartesian product of three consecutive values starting
// at each base, one field per header, numbering rows in valueField.
func prepare(base []int, headers []string, valueField string) []records.Record {
	var out []records.Record
	cur := make([]int, len(base))
	var walk func(i int)
	walk = func(i int) {
		if i == len(base) {
			r := records.Record{}
			for j, h := range headers {
				r[h] = cur[j]
			}
			r[valueField] = int64(len(out))
			out = append(out, r)
			return
		}
		for v := base[i]; v < base[i]+3; v++ {
			cur[i] = v
			walk(i + 1)
		}
	}
	walk(0)
	return out
}

var (
	headers = []string{"a1", "a2", "b1", "b2", "c1", "c2"}
	bases   = []int{10, 20, 30, 40, 50, 60}
)

func testGroups() []Group {
	return []Group{
		{Fields: []string{"a1", "a2"}, RefField: "a_ref", IndexField: "id"},
		{Fields: []string{"b1", "b2"}, RefField: "b_ref", IndexField: "id"},
		{Fields: []string{"c1", "c2"}, RefField: "c_ref", IndexField: "id"},
	}
}

func intSchema(name string, fields ...string) records.Resource {
	res := records.Resource{Name: name}
	for _, f := range fields {
		res.Schema.Fields = append(res.Schema.Fields, records.Field{Name: f, Type: records.TypeInteger})
	}
	return res
}

func seqOf(rows []records.Record) iter.Seq2[records.Record, error] {
	return func(yield func(records.Record, error) bool) {
		for _, r := range rows {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func dataResource(name string, rows []records.Record) Resource {
	return Resource{
		Descriptor: intSchema(name, append(slices.Clone(headers), "value")...),
		Rows:       seqOf(rows),
	}
}

func collect(t *testing.T, rows iter.Seq2[records.Record, error]) []records.Record {
	t.Helper()
	var out []records.Record
	for r, err := range rows {
		require.NoError(t, err)
		out = append(out, r)
	}
	return out
}
