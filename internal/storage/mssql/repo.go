// Package mssql implements a Microsoft SQL Server repository with
// github.com/microsoft/go-mssqldb. Appends go through the driver's bulk copy
// API; upserts run a single-row MERGE per record inside one transaction.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"normalize/internal/storage/sqldb"
)

// Dialect is the T-SQL flavour of SQL.
var Dialect = sqldb.Dialect{
	Name:        "mssql",
	Quote:       msIdent,
	Placeholder: func(n int) string { return fmt.Sprintf("@p%d", n) },
	Upsert:      mergeSQL,
}

// Repository is an MSSQL-backed storage.Repository.
type Repository struct {
	*sqldb.Repository
}

// NewRepository validates dsn, opens a pool and returns a Repository plus a
// Close function.
func NewRepository(ctx context.Context, dsn string) (*Repository, func(), error) {
	if _, err := msdsn.Parse(dsn); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("mssql: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("mssql: ping: %w", err)
	}
	r := &Repository{Repository: sqldb.New(db, Dialect)}
	return r, r.Close, nil
}

// Write appends through bulk copy when keys is empty and merges otherwise.
func (r *Repository) Write(ctx context.Context, table string, columns, keys []string, rows [][]any) (int64, error) {
	if len(keys) > 0 {
		return r.Repository.Write(ctx, table, columns, keys, rows)
	}
	return r.CopyFrom(ctx, table, columns, rows)
}

// CopyFrom bulk-inserts rows into table in one transaction.
func (r *Repository) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := r.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mssql: begin tx: %w", err)
	}
	rollback := func() { _ = tx.Rollback() }

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(table, mssql.BulkOptions{}, columns...))
	if err != nil {
		rollback()
		return 0, fmt.Errorf("mssql: prepare bulk: %w", err)
	}
	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rows[i]...); err != nil {
			_ = stmt.Close()
			rollback()
			return 0, fmt.Errorf("mssql: bulk row %d: %w", i, err)
		}
	}
	res, err := stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		rollback()
		return 0, fmt.Errorf("mssql: bulk finalize: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		rollback()
		return 0, fmt.Errorf("mssql: rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mssql: commit: %w", err)
	}
	return n, nil
}

// mergeSQL renders a single-row MERGE keyed on keys.
func mergeSQL(d sqldb.Dialect, table string, cols, keys []string) string {
	src := make([]string, len(cols))
	for i, c := range cols {
		src[i] = fmt.Sprintf("%s AS %s", d.Placeholder(i+1), d.Quote(c))
	}
	on := make([]string, len(keys))
	for i, k := range keys {
		on[i] = fmt.Sprintf("T.%s = S.%s", d.Quote(k), d.Quote(k))
	}
	quoted := d.QuoteAll(cols)
	vals := make([]string, len(cols))
	for i, q := range quoted {
		vals[i] = "S." + q
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "MERGE INTO %s WITH (HOLDLOCK) AS T USING (SELECT %s) AS S ON %s",
		d.QuoteFQN(table), strings.Join(src, ", "), strings.Join(on, " AND "))
	if rest := sqldb.NonKey(cols, keys); len(rest) > 0 {
		set := make([]string, len(rest))
		for i, c := range rest {
			set[i] = fmt.Sprintf("T.%s = S.%s", d.Quote(c), d.Quote(c))
		}
		sb.WriteString(" WHEN MATCHED THEN UPDATE SET " + strings.Join(set, ", "))
	}
	fmt.Fprintf(&sb, " WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s);",
		strings.Join(quoted, ", "), strings.Join(vals, ", "))
	return sb.String()
}

// msIdent quotes a SQL Server identifier using [brackets], escaping ].
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }
