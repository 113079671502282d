package transformer

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"normalize/internal/records"
)

func salesSchema() records.Schema {
	return records.Schema{Fields: []records.Field{
		{Name: "order", Type: records.TypeInteger},
		{Name: "amount", Type: records.TypeNumber},
		{Name: "paid", Type: records.TypeBoolean},
		{Name: "day", Type: records.TypeDate},
		{Name: "at", Type: records.TypeDatetime},
		{Name: "city", Type: records.TypeString},
		{Name: "raw", Type: records.TypeAny},
	}}
}

func TestPlanApply(t *testing.T) {
	p := Compile(salesSchema(), Spec{})
	r := records.Record{
		"order":  " 42 ",
		"amount": "12,5",
		"paid":   "ano",
		"day":    "31.01.2024",
		"at":     "2024-01-31T10:00:00Z",
		"city":   "",
		"raw":    map[string]any{"k": 1},
		"extra":  "untouched",
	}
	require.NoError(t, p.Apply(r))
	assert.Equal(t, int64(42), r["order"])
	assert.Equal(t, 12.5, r["amount"])
	assert.Equal(t, true, r["paid"])
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), r["day"])
	assert.Equal(t, time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC), r["at"])
	assert.Nil(t, r["city"])
	assert.Equal(t, map[string]any{"k": 1}, r["raw"])
	assert.Equal(t, "untouched", r["extra"])
}

func TestPlanApplyTypedInput(t *testing.T) {
	p := Compile(salesSchema(), Spec{})
	r := records.Record{
		"order":  json.Number("7"),
		"amount": json.Number("1.25"),
		"paid":   false,
		"day":    "2024-02-29",
		"city":   json.Number("10"),
	}
	require.NoError(t, p.Apply(r))
	assert.Equal(t, int64(7), r["order"])
	assert.Equal(t, 1.25, r["amount"])
	assert.Equal(t, false, r["paid"])
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), r["day"])
	assert.Equal(t, "10", r["city"])
}

func TestPlanApplyRejects(t *testing.T) {
	p := Compile(salesSchema(), Spec{Truthy: []string{"Y"}, Falsy: []string{"N"}})
	for field, v := range map[string]any{
		"order":  "4.5",
		"amount": "lots",
		"paid":   "ano",
		"day":    "31.02.2024",
		"at":     "yesterday",
	} {
		err := p.Apply(records.Record{field: v})
		assert.ErrorContains(t, err, field, "%s=%v", field, v)
	}
	assert.NoError(t, p.Apply(records.Record{"paid": "y"}))
}

func TestCoerceDropsRejects(t *testing.T) {
	upstream := errors.New("csv: bad quote")
	src := func(yield func(records.Record, error) bool) {
		_ = yield(records.Record{"order": "1"}, nil) &&
			yield(records.Record{"order": "x"}, nil) &&
			yield(nil, upstream) &&
			yield(records.Record{"order": "3"}, nil)
	}
	var rejected []records.Record
	var got []any
	var errs []error
	for r, err := range Coerce(src, Compile(salesSchema(), Spec{}), func(r records.Record, _ error) {
		rejected = append(rejected, r)
	}) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		got = append(got, r["order"])
	}
	assert.Equal(t, []any{int64(1), int64(3)}, got)
	assert.Equal(t, []error{upstream}, errs)
	assert.Len(t, rejected, 1)
}

func TestRequire(t *testing.T) {
	src := func(yield func(records.Record, error) bool) {
		_ = yield(records.Record{"order": int64(1)}, nil) &&
			yield(records.Record{"order": nil}, nil) &&
			yield(records.Record{}, nil)
	}
	n, rejects := 0, 0
	for _, err := range Require(src, []string{"order"}, func(records.Record, error) { rejects++ }) {
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, rejects)
}

func TestDedupRows(t *testing.T) {
	rows := [][]any{
		{int64(1), "a"},
		{int64(2), "b"},
		{int64(1), "c"},
		{"1", "d"},
	}
	assert.Equal(t, [][]any{{int64(1), "c"}, {int64(2), "b"}, {"1", "d"}}, DedupRows(rows, []int{0}, KeepLast))
	assert.Equal(t, [][]any{{int64(1), "a"}, {int64(2), "b"}, {"1", "d"}}, DedupRows(rows, []int{0}, KeepFirst))
	assert.Len(t, DedupRows(rows, nil, KeepLast), 4)
}

func TestParseCZDate(t *testing.T) {
	if _, ok := parseCZDate("29.02.2023"); ok {
		t.Fatal("29.02.2023 accepted")
	}
	d, ok := parseCZDate("01.12.1999")
	require.True(t, ok)
	assert.Equal(t, time.Date(1999, 12, 1, 0, 0, 0, 0, time.UTC), d)
}

func TestPlanApplyDatabaseValues(t *testing.T) {
	p := Compile(salesSchema(), Spec{})
	r := records.Record{
		"order": int64(3),
		"paid":  int64(1),
		"day":   "2024-03-01T00:00:00Z",
		"city":  []byte("Brno"),
	}
	require.NoError(t, p.Apply(r))
	assert.Equal(t, int64(3), r["order"])
	assert.Equal(t, true, r["paid"])
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), r["day"])
	assert.Equal(t, "Brno", r["city"])
}
