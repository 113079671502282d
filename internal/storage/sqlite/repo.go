// Package sqlite implements a SQLite-backed storage.Repository on
// database/sql. Writes run as prepared single-row statements inside one
// transaction per batch; upserts use ON CONFLICT DO UPDATE.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"normalize/internal/storage/sqldb"
)

// Dialect is the SQLite flavour of SQL.
var Dialect = sqldb.Dialect{
	Name:        "sqlite",
	Quote:       quoteIdent,
	Placeholder: func(int) string { return "?" },
	Upsert:      upsertSQL,
}

// NewRepository opens dsn and returns a Repository plus a Close function.
//
// DSN is passed directly to database/sql; for example:
//
//	"file:normalize.db?_pragma=busy_timeout(5000)"
//	":memory:"
func NewRepository(ctx context.Context, dsn string) (*sqldb.Repository, func(), error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One connection: SQLite serializes writers anyway, and ":memory:" is
	// per connection.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	repo := sqldb.New(db, Dialect)
	return repo, repo.Close, nil
}

func upsertSQL(d sqldb.Dialect, table string, cols, keys []string) string {
	var sb strings.Builder
	sb.WriteString(d.InsertSQL(table, cols))
	sb.WriteString(" ON CONFLICT (")
	sb.WriteString(strings.Join(d.QuoteAll(keys), ", "))
	sb.WriteString(")")

	rest := sqldb.NonKey(cols, keys)
	if len(rest) == 0 {
		sb.WriteString(" DO NOTHING")
		return sb.String()
	}
	sb.WriteString(" DO UPDATE SET ")
	for i, c := range rest {
		if i > 0 {
			sb.WriteString(", ")
		}
		q := d.Quote(c)
		sb.WriteString(q + " = excluded." + q)
	}
	return sb.String()
}

func quoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
