package mssql

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"normalize/internal/ddl"
	"normalize/internal/storage/sqldb"
)

func TestMergeSQL(t *testing.T) {
	got := mergeSQL(Dialect, "dbo.sales", []string{"id", "city", "n"}, []string{"id"})
	want := "MERGE INTO [dbo].[sales] WITH (HOLDLOCK) AS T USING (SELECT @p1 AS [id], @p2 AS [city], @p3 AS [n]) AS S ON T.[id] = S.[id]" +
		" WHEN MATCHED THEN UPDATE SET T.[city] = S.[city], T.[n] = S.[n]" +
		" WHEN NOT MATCHED THEN INSERT ([id], [city], [n]) VALUES (S.[id], S.[city], S.[n]);"
	assert.Equal(t, want, got)

	keysOnly := mergeSQL(Dialect, "t", []string{"a"}, []string{"a"})
	assert.NotContains(t, keysOnly, "WHEN MATCHED")
}

func TestBuildCreateTableSQL(t *testing.T) {
	got, err := BuildCreateTableSQL(ddl.TableDef{FQN: "dbo.t", Columns: []ddl.ColumnDef{
		{Name: "id", SQLType: "BIGINT", PrimaryKey: true},
		{Name: "name", SQLType: "NVARCHAR(MAX)", Nullable: true},
	}})
	require.NoError(t, err)
	want := "IF OBJECT_ID(N'[dbo].[t]', N'U') IS NULL\nBEGIN\n" +
		"  CREATE TABLE [dbo].[t] (\n    [id] BIGINT NOT NULL,\n    [name] NVARCHAR(MAX),\n    PRIMARY KEY ([id])\n  );\nEND;"
	assert.Equal(t, want, got)

	_, err = BuildCreateTableSQL(ddl.TableDef{})
	assert.ErrorContains(t, err, "mssql ddl: table FQN must not be empty")
}

func TestWriteWithKeysMerges(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := &Repository{Repository: sqldb.New(db, Dialect)}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("MERGE INTO [fact] WITH (HOLDLOCK)"))
	prep.ExpectExec().WithArgs(int64(7), "x").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := repo.Write(context.Background(), "fact", []string{"id", "v"}, []string{"id"}, [][]any{{int64(7), "x"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRepositoryBadDSN(t *testing.T) {
	_, _, err := NewRepository(context.Background(), "sqlserver://host?connection+timeout=abc")
	assert.ErrorContains(t, err, "mssql dsn")
}
