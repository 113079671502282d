package kvstore

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"normalize/internal/normalize"
	"normalize/internal/records"
)

func TestFactoryUnknownKind(t *testing.T) {
	_, err := Factory(context.Background(), Config{Kind: "redis"})
	assert.ErrorContains(t, err, "unknown store kind")
}

// Every store must behave the same way behind the normalizer.
func TestStoresConform(t *testing.T) {
	for _, kind := range Kinds() {
		t.Run(kind, func(t *testing.T) {
			dir := t.TempDir()
			factory, err := Factory(context.Background(), Config{Kind: kind, Dir: dir})
			require.NoError(t, err)

			s, err := factory(normalize.Group{})
			require.NoError(t, err)

			calc := normalize.NewKeyCalc([]string{"a"})
			k1 := calc.Key(records.Record{"a": "x"})
			k2 := calc.Key(records.Record{"a": "y"})

			_, ok, err := s.Get(k1)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set(k2, records.Record{"a": "y", "id": int64(0)}))
			require.NoError(t, s.Set(k1, records.Record{"a": "x", "id": int64(1)}))
			require.NoError(t, s.Set(k2, records.Record{"a": "y", "id": int64(2)}))
			assert.Equal(t, 2, s.Len())

			row, ok, err := s.Get(k2)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, records.Record{"a": "y", "id": int64(2)}, row)

			var keys []normalize.Key
			var ids []int64
			require.NoError(t, s.Items(func(k normalize.Key, r records.Record) error {
				keys = append(keys, k)
				ids = append(ids, r["id"].(int64))
				return nil
			}))
			assert.Equal(t, []normalize.Key{k2, k1}, keys)
			assert.Equal(t, []int64{2, 1}, ids)

			require.NoError(t, s.Close())
			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries, "temporary files must be removed")
		})
	}
}

func TestNormalizeOnDiskStores(t *testing.T) {
	for _, kind := range []string{KindBolt, KindSQLite} {
		t.Run(kind, func(t *testing.T) {
			factory, err := Factory(context.Background(), Config{Kind: kind, Dir: t.TempDir()})
			require.NoError(t, err)

			var rows []records.Record
			for i := range 50 {
				rows = append(rows, records.Record{"city": fmt.Sprintf("c%d", i%7), "v": int64(i)})
			}
			src := func(yield func(records.Record, error) bool) {
				for _, r := range rows {
					if !yield(r, nil) {
						return
					}
				}
			}
			desc := records.Resource{Name: "events", Schema: records.Schema{Fields: []records.Field{
				{Name: "city", Type: records.TypeString},
				{Name: "v", Type: records.TypeInteger},
			}}}
			res, err := normalize.Normalize(
				[]normalize.Resource{{Descriptor: desc, Rows: src}},
				[]normalize.Group{{Fields: []string{"city"}, RefField: "city_id", IndexField: "id"}},
				normalize.WithStoreFactory(factory),
			)
			require.NoError(t, err)
			defer res.Close()

			for r, err := range res.Fact().Rows {
				require.NoError(t, err)
				assert.Equal(t, r["v"].(int64)%7, r["city_id"])
			}
			var dim []records.Record
			for r, err := range res.Dimensions()[0].Rows {
				require.NoError(t, err)
				dim = append(dim, r)
			}
			require.Len(t, dim, 7)
			for i, r := range dim {
				assert.Equal(t, records.Record{"city": fmt.Sprintf("c%d", i), "id": int64(i)}, r)
			}
		})
	}
}
