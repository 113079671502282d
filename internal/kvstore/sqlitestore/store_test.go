package sqlitestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"normalize/internal/normalize"
	"normalize/internal/records"
)

func TestStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "a.sqlite")

	s, err := Open(ctx, Options{Path: path})
	require.NoError(t, err)
	require.NoError(t, s.Set("k1", records.Record{"id": int64(1), "name": "Brno"}))
	require.NoError(t, s.Set("k2", records.Record{"id": int64(2), "name": "Praha"}))
	require.NoError(t, s.Set("k1", records.Record{"id": int64(1), "name": "Brno-mesto"}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, Options{Path: path})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, 2, s.Len())

	var got []records.Record
	require.NoError(t, s.Items(func(_ normalize.Key, r records.Record) error {
		got = append(got, r)
		return nil
	}))
	assert.Equal(t, []records.Record{
		{"id": int64(1), "name": "Brno-mesto"},
		{"id": int64(2), "name": "Praha"},
	}, got)
}

func TestItemsStops(t *testing.T) {
	s, err := Open(context.Background(), Options{Dir: t.TempDir()})
	require.NoError(t, err)
	defer s.Close()
	for _, k := range []normalize.Key{"a", "b", "c"} {
		require.NoError(t, s.Set(k, records.Record{"k": string(k)}))
	}

	stop := errors.New("enough")
	n := 0
	err = s.Items(func(normalize.Key, records.Record) error {
		n++
		if n == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, n)
}
