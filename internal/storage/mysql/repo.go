// Package mysql implements a MySQL-backed storage.Repository on database/sql
// with github.com/go-sql-driver/mysql. Upserts use ON DUPLICATE KEY UPDATE.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"normalize/internal/storage/sqldb"
)

// Dialect is the MySQL flavour of SQL.
var Dialect = sqldb.Dialect{
	Name:        "mysql",
	Quote:       quoteIdent,
	Placeholder: func(int) string { return "?" },
	Upsert:      upsertSQL,
}

// NewRepository validates dsn, opens a pool and returns a Repository plus a
// Close function. parseTime is forced on so DATE/DATETIME columns scan as
// time.Time.
func NewRepository(ctx context.Context, dsn string) (*sqldb.Repository, func(), error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql dsn: %w", err)
	}
	cfg.ParseTime = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql: connector: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("mysql: ping: %w", err)
	}
	repo := sqldb.New(db, Dialect)
	return repo, repo.Close, nil
}

func upsertSQL(d sqldb.Dialect, table string, cols, keys []string) string {
	rest := sqldb.NonKey(cols, keys)
	if len(rest) == 0 {
		return strings.Replace(d.InsertSQL(table, cols), "INSERT", "INSERT IGNORE", 1)
	}
	set := make([]string, len(rest))
	for i, c := range rest {
		q := d.Quote(c)
		set[i] = fmt.Sprintf("%s = VALUES(%s)", q, q)
	}
	return d.InsertSQL(table, cols) + " ON DUPLICATE KEY UPDATE " + strings.Join(set, ", ")
}

func quoteIdent(id string) string {
	return "`" + strings.ReplaceAll(id, "`", "``") + "`"
}
