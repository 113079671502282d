package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"normalize/internal/records"
	"normalize/internal/storage"
)

func dimSchema() records.Schema {
	return records.Schema{
		Fields: []records.Field{
			{Name: "id", Type: records.TypeInteger},
			{Name: "city", Type: records.TypeString},
			{Name: "since", Type: records.TypeDate},
			{Name: "active", Type: records.TypeBoolean},
		},
		PrimaryKey: []string{"id"},
	}
}

func openRepo(t *testing.T) storage.Repository {
	t.Helper()
	repo, err := storage.New(context.Background(), storage.Config{Kind: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(repo.Close)
	return repo
}

func TestUpsertSQL(t *testing.T) {
	assert.Equal(t,
		`INSERT INTO "t" ("id", "a", "b") VALUES (?, ?, ?) ON CONFLICT ("id") DO UPDATE SET "a" = excluded."a", "b" = excluded."b"`,
		upsertSQL(Dialect, "t", []string{"id", "a", "b"}, []string{"id"}))
	assert.Equal(t,
		`INSERT INTO "t" ("a", "b") VALUES (?, ?) ON CONFLICT ("a", "b") DO NOTHING`,
		upsertSQL(Dialect, "t", []string{"a", "b"}, []string{"a", "b"}))
}

func TestEnsureTableSQL(t *testing.T) {
	td := dimSchema()
	repo := openRepo(t)
	ctx := context.Background()

	require.NoError(t, storage.EnsureTable(ctx, "sqlite", repo, "dim_city", td))
	// idempotent
	require.NoError(t, storage.EnsureTable(ctx, "sqlite", repo, "dim_city", td))
}

func TestWriteAndLoadRows(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	require.NoError(t, EnsureTable(ctx, repo, "dim_city", dimSchema()))

	cols := []string{"id", "city", "since", "active"}
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	n, err := repo.Write(ctx, "dim_city", cols, []string{"id"}, [][]any{
		{int64(1), "Praha", day, true},
		{int64(2), "Brno", nil, false},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// upsert replaces the non-key columns of id 2
	_, err = repo.Write(ctx, "dim_city", cols, []string{"id"}, [][]any{{int64(2), "Ostrava", nil, true}})
	require.NoError(t, err)

	rows, err := repo.LoadRows(ctx, "dim_city", []string{"id", "city", "active"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0]["id"])
	assert.Equal(t, "Praha", rows[0]["city"])
	assert.Equal(t, "Ostrava", rows[1]["city"])
	assert.Equal(t, int64(1), rows[1]["active"])

	rows, err = repo.LoadRows(ctx, "dim_city", []string{"since"})
	require.NoError(t, err)
	got, ok := rows[0]["since"].(time.Time)
	require.True(t, ok, "since is %T", rows[0]["since"])
	assert.True(t, day.Equal(got))
}

func TestAppendDuplicateFails(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	require.NoError(t, EnsureTable(ctx, repo, "dim_city", dimSchema()))

	cols := []string{"id", "city"}
	_, err := repo.Write(ctx, "dim_city", cols, nil, [][]any{{int64(1), "a"}})
	require.NoError(t, err)
	_, err = repo.Write(ctx, "dim_city", cols, nil, [][]any{{int64(1), "b"}})
	assert.ErrorContains(t, err, "sqlite: write dim_city")
}

func TestLoadRowsMissingTable(t *testing.T) {
	repo := openRepo(t)
	_, err := repo.LoadRows(context.Background(), "nope", []string{"id"})
	assert.Error(t, err)
}

func TestNewRepositoryEmptyDSN(t *testing.T) {
	_, _, err := NewRepository(context.Background(), " ")
	assert.EqualError(t, err, "sqlite: DSN must not be empty")
}
