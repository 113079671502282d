package normalize

import (
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"normalize/internal/records"
)

func TestNormalizeThreeGroups(t *testing.T) {
	data := prepare(bases, headers, "value")
	res, err := Normalize([]Resource{dataResource("data", data)}, testGroups())
	require.NoError(t, err)
	defer res.Close()

	require.Len(t, res.Resources, 4)
	fact := res.Fact()
	assert.Equal(t, []string{"value", "a_ref", "b_ref", "c_ref"}, fact.Descriptor.Schema.FieldNames())

	rows := collect(t, fact.Rows)
	require.Len(t, rows, len(data))
	for i, r := range rows {
		assert.Equal(t, records.Record{
			"value": int64(i),
			"a_ref": int64(i / 81),
			"b_ref": int64(i / 9 % 9),
			"c_ref": int64(i % 9),
		}, r)
	}

	want := map[string][]records.Record{
		"data_a_ref": prepare([]int{10, 20}, []string{"a1", "a2"}, "id"),
		"data_b_ref": prepare([]int{30, 40}, []string{"b1", "b2"}, "id"),
		"data_c_ref": prepare([]int{50, 60}, []string{"c1", "c2"}, "id"),
	}
	for _, dim := range res.Dimensions() {
		assert.Equal(t, want[dim.Descriptor.Name], collect(t, dim.Rows), dim.Descriptor.Name)
	}
	assert.True(t, res.Drained())
	assert.Equal(t, int64(len(data)), res.Processed())
}

func TestNormalizeWithExistingRows(t *testing.T) {
	existing := prepare([]int{10, 20}, []string{"a1", "a2"}, "id")[3:6]
	for _, r := range existing {
		r["id"] = r["id"].(int64) + 100
	}
	groups := testGroups()
	groups[0].ExistingRows = existing

	res, err := Normalize([]Resource{dataResource("data", prepare(bases, headers, "value"))}, groups)
	require.NoError(t, err)
	defer res.Close()

	collect(t, res.Fact().Rows)
	dims := res.Dimensions()
	assert.Equal(t, []records.Record{
		{"a1": 11, "a2": 20, "id": int64(103)},
		{"a1": 11, "a2": 21, "id": int64(104)},
		{"a1": 11, "a2": 22, "id": int64(105)},
		{"a1": 10, "a2": 20, "id": int64(106)},
		{"a1": 10, "a2": 21, "id": int64(107)},
		{"a1": 10, "a2": 22, "id": int64(108)},
		{"a1": 12, "a2": 20, "id": int64(109)},
		{"a1": 12, "a2": 21, "id": int64(110)},
		{"a1": 12, "a2": 22, "id": int64(111)},
	}, collect(t, dims[0].Rows))
	assert.Equal(t, prepare([]int{30, 40}, []string{"b1", "b2"}, "id"), collect(t, dims[1].Rows))
}

// Feeding a run's dimension rows into a second run over the same data must
// reproduce the first run's fact rows and keep the dimension unchanged.
func TestNormalizeStableAcrossRuns(t *testing.T) {
	run := func(existing [][]records.Record) ([]records.Record, [][]records.Record) {
		groups := testGroups()
		for i := range existing {
			groups[i].ExistingRows = existing[i]
		}
		res, err := Normalize([]Resource{dataResource("data", prepare(bases, headers, "value"))}, groups)
		require.NoError(t, err)
		defer res.Close()
		fact := collect(t, res.Fact().Rows)
		var dims [][]records.Record
		for _, d := range res.Dimensions() {
			dims = append(dims, collect(t, d.Rows))
		}
		return fact, dims
	}

	fact1, dims1 := run(nil)
	fact2, dims2 := run(dims1)
	assert.Equal(t, fact1, fact2)
	assert.Equal(t, dims1, dims2)
}

func TestNormalizeProperties(t *testing.T) {
	data := prepare(bases, headers, "value")
	res, err := Normalize([]Resource{dataResource("data", data)}, testGroups())
	require.NoError(t, err)
	defer res.Close()

	fact := collect(t, res.Fact().Rows)
	for gi, dim := range res.Dimensions() {
		g := res.Indexers[gi].Group()
		rows := collect(t, dim.Rows)

		byID := map[int64]records.Record{}
		keys := map[Key]struct{}{}
		calc := NewKeyCalc(g.Fields)
		for _, r := range rows {
			id := r[g.IndexField].(int64)
			_, dup := byID[id]
			require.False(t, dup, "id %d repeated in %s", id, g.Table)
			byID[id] = r
			keys[calc.Key(r)] = struct{}{}
		}
		assert.Len(t, keys, len(rows), "keys must be unique in %s", g.Table)

		for i, f := range fact {
			dimRow, ok := byID[f[g.RefField].(int64)]
			require.True(t, ok, "dangling reference in fact row %d", i)
			for _, field := range g.Fields {
				assert.Equal(t, data[i][field], dimRow[field])
				assert.NotContains(t, f, field)
			}
		}
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	var outs [][]records.Record
	for range 2 {
		res, err := Normalize([]Resource{dataResource("data", prepare(bases, headers, "value"))}, testGroups())
		require.NoError(t, err)
		outs = append(outs, collect(t, res.Fact().Rows))
		require.NoError(t, res.Close())
	}
	assert.Equal(t, outs[0], outs[1])
}

func TestNormalizeSelectsMainResource(t *testing.T) {
	side := Resource{Descriptor: intSchema("lookup", "k"), Rows: seqOf(nil)}
	resources := []Resource{side, dataResource("data", prepare(bases, headers, "value"))}

	for name, m := range map[string]Matcher{
		"index":   MatchIndex(-1),
		"names":   MatchNames("data"),
		"pattern": MatchPattern(regexp.MustCompile(`^da`)),
	} {
		t.Run(name, func(t *testing.T) {
			res, err := Normalize(resources, testGroups(), WithMatcher(m))
			require.NoError(t, err)
			defer res.Close()
			assert.Equal(t, 1, res.Main)
			assert.Equal(t, "lookup", res.Resources[0].Descriptor.Name)
			assert.Equal(t, []string{"data_a_ref", "data_b_ref", "data_c_ref"}, []string{
				res.Resources[2].Descriptor.Name,
				res.Resources[3].Descriptor.Name,
				res.Resources[4].Descriptor.Name,
			})
		})
	}
}

func TestNormalizeMatchErrors(t *testing.T) {
	resources := []Resource{
		dataResource("one", nil),
		dataResource("two", nil),
	}

	_, err := Normalize(resources, testGroups())
	var cfg *ConfigError
	require.ErrorAs(t, err, &cfg)
	assert.ErrorIs(t, err, ErrAmbiguousResource)

	_, err = Normalize(resources, testGroups(), WithMatcher(MatchNames("three")))
	assert.ErrorIs(t, err, ErrNoResource)

	_, err = Normalize(nil, testGroups())
	assert.ErrorIs(t, err, ErrNoResource)
}

func TestNormalizeRejectsBadGroups(t *testing.T) {
	cases := map[string][]Group{
		"no fields": {{RefField: "r", IndexField: "id"}},
		"no ref":    {{Fields: []string{"a1"}, IndexField: "id"}},
		"no index":  {{Fields: []string{"a1"}, RefField: "r"}},
		"duplicate field": {
			{Fields: []string{"a1", "a1"}, RefField: "r", IndexField: "id"},
		},
		"overlap": {
			{Fields: []string{"a1", "a2"}, RefField: "r1", IndexField: "id"},
			{Fields: []string{"a2", "b1"}, RefField: "r2", IndexField: "id"},
		},
		"unknown field": {{Fields: []string{"zz"}, RefField: "r", IndexField: "id"}},
		"duplicate ref": {
			{Fields: []string{"a1"}, RefField: "r", IndexField: "id"},
			{Fields: []string{"b1"}, RefField: "r", IndexField: "id"},
		},
		"ref collides": {{Fields: []string{"a1"}, RefField: "value", IndexField: "id"}},
		"ref extracted elsewhere": {
			{Fields: []string{"a1"}, RefField: "b1", IndexField: "id"},
			{Fields: []string{"b1"}, RefField: "r", IndexField: "id"},
		},
	}
	for name, groups := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Normalize([]Resource{dataResource("data", nil)}, groups)
			var cfg *ConfigError
			require.ErrorAs(t, err, &cfg)
			assert.ErrorIs(t, err, ErrInvalidGroup)
		})
	}
}

func TestNormalizeRefMayReuseOwnField(t *testing.T) {
	groups := []Group{{Fields: []string{"a1"}, RefField: "a1", IndexField: "id"}}
	res, err := Normalize([]Resource{dataResource("data", prepare(bases, headers, "value")[:4])}, groups)
	require.NoError(t, err)
	defer res.Close()

	fields := res.Fact().Descriptor.Schema.FieldNames()
	assert.Equal(t, []string{"a2", "b1", "b2", "c1", "c2", "value", "a1"}, fields)
	for _, r := range collect(t, res.Fact().Rows) {
		assert.Equal(t, int64(0), r["a1"])
	}
}

func TestNormalizeRejectsSchemaless(t *testing.T) {
	_, err := Normalize([]Resource{{Descriptor: records.Resource{Name: "raw"}, Rows: seqOf(nil)}}, testGroups())
	assert.ErrorIs(t, err, ErrInvalidGroup)
}

func TestNormalizeNoGroupsPassesThrough(t *testing.T) {
	data := prepare(bases, headers, "value")[:5]
	res, err := Normalize([]Resource{dataResource("data", data)}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Resources, 1)
	assert.Equal(t, data, collect(t, res.Fact().Rows))
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	data := prepare(bases, headers, "value")[:3]
	res, err := Normalize([]Resource{dataResource("data", data)}, testGroups())
	require.NoError(t, err)
	collect(t, res.Fact().Rows)
	assert.Equal(t, prepare(bases, headers, "value")[:3], data)
}

func TestDimensionBeforeDrain(t *testing.T) {
	res, err := Normalize([]Resource{dataResource("data", prepare(bases, headers, "value"))}, testGroups())
	require.NoError(t, err)
	defer res.Close()

	for _, err := range res.Dimensions()[0].Rows {
		assert.ErrorIs(t, err, ErrMainNotDrained)
	}

	// A partial read does not drain either.
	for range res.Fact().Rows {
		break
	}
	for _, err := range res.Dimensions()[0].Rows {
		assert.ErrorIs(t, err, ErrMainNotDrained)
	}
}

func TestMainStreamIsSinglePass(t *testing.T) {
	res, err := Normalize([]Resource{dataResource("data", prepare(bases, headers, "value")[:2])}, testGroups())
	require.NoError(t, err)
	defer res.Close()

	collect(t, res.Fact().Rows)
	for _, err := range res.Fact().Rows {
		assert.ErrorIs(t, err, ErrMainConsumed)
	}
}

func TestNormalizeForwardsUpstreamErrors(t *testing.T) {
	bad := errors.New("bad line")
	src := func(yield func(records.Record, error) bool) {
		if !yield(records.Record{"a1": 1, "a2": 2, "value": 0}, nil) {
			return
		}
		if !yield(nil, bad) {
			return
		}
		yield(records.Record{"a1": 1, "a2": 2, "value": 1}, nil)
	}
	res, err := Normalize([]Resource{{Descriptor: intSchema("data", "a1", "a2", "value"), Rows: src}},
		[]Group{{Fields: []string{"a1", "a2"}, RefField: "a_ref", IndexField: "id"}})
	require.NoError(t, err)

	var got []records.Record
	var errs []error
	for r, err := range res.Fact().Rows {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		got = append(got, r)
	}
	assert.Equal(t, []error{bad}, errs)
	assert.Len(t, got, 2)
	assert.True(t, res.Drained())
}

func TestNormalizeStoreFactoryFailure(t *testing.T) {
	boom := errors.New("no space")
	calls := 0
	factory := func(Group) (Store, error) {
		calls++
		if calls == 2 {
			return nil, boom
		}
		return NewMemoryStore(), nil
	}
	_, err := Normalize([]Resource{dataResource("data", nil)}, testGroups(), WithStoreFactory(factory))
	assert.ErrorIs(t, err, boom)
}

func TestGroupString(t *testing.T) {
	g := Group{Fields: []string{"a1", "a2"}, RefField: "a_ref", IndexField: "id", Table: "dim_a"}
	assert.Equal(t, "a_ref -> dim_a.id (a1, a2)", g.String())
}
