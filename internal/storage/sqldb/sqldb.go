// Package sqldb implements storage.Repository on database/sql. Backends
// differ only in their Dialect: identifier quoting, placeholders and the
// upsert statement.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"normalize/internal/records"
)

// Dialect describes the SQL flavour of a backend.
type Dialect struct {
	// Name prefixes error messages.
	Name string
	// Quote quotes a single identifier segment.
	Quote func(string) string
	// Placeholder returns the bind marker for the 1-based argument n.
	Placeholder func(n int) string
	// Upsert renders a single-row upsert into the quoted table. cols and keys
	// are unquoted; keys is never empty.
	Upsert func(d Dialect, table string, cols, keys []string) string
}

// QuoteFQN quotes each segment of a dotted name.
func (d Dialect) QuoteFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = d.Quote(p)
	}
	return strings.Join(parts, ".")
}

// QuoteAll quotes every name in cols.
func (d Dialect) QuoteAll(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = d.Quote(c)
	}
	return out
}

// Placeholders returns the comma-joined bind markers 1..n.
func (d Dialect) Placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = d.Placeholder(i + 1)
	}
	return strings.Join(ph, ", ")
}

// InsertSQL renders a single-row INSERT.
func (d Dialect) InsertSQL(table string, cols []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.QuoteFQN(table), strings.Join(d.QuoteAll(cols), ", "), d.Placeholders(len(cols)))
}

// SelectSQL renders a full-table SELECT of cols.
func (d Dialect) SelectSQL(table string, cols []string) string {
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(d.QuoteAll(cols), ", "), d.QuoteFQN(table))
}

// NonKey returns cols without keys, in order.
func NonKey(cols, keys []string) []string {
	isKey := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		isKey[k] = struct{}{}
	}
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if _, ok := isKey[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// Repository is a database/sql backed storage.Repository.
type Repository struct {
	db *sql.DB
	d  Dialect
}

// New wraps an open pool.
func New(db *sql.DB, d Dialect) *Repository {
	return &Repository{db: db, d: d}
}

// DB exposes the pool for backend-specific fast paths.
func (r *Repository) DB() *sql.DB { return r.db }

// Dialect returns the repository's dialect.
func (r *Repository) Dialect() Dialect { return r.d }

// LoadRows reads every row of table. Text that drivers hand back as []byte is
// returned as string.
func (r *Repository) LoadRows(ctx context.Context, table string, columns []string) ([]records.Record, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("%s: LoadRows: columns must not be empty", r.d.Name)
	}
	rows, err := r.db.QueryContext(ctx, r.d.SelectSQL(table, columns))
	if err != nil {
		return nil, fmt.Errorf("%s: select %s: %w", r.d.Name, table, err)
	}
	defer rows.Close()

	var out []records.Record
	vals := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%s: scan %s: %w", r.d.Name, table, err)
		}
		rec := make(records.Record, len(columns))
		for i, c := range columns {
			if b, ok := vals[i].([]byte); ok {
				rec[c] = string(b)
			} else {
				rec[c] = vals[i]
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: read %s: %w", r.d.Name, table, err)
	}
	return out, nil
}

// Write stores rows in a single transaction through one prepared statement:
// an upsert on keys, or a plain INSERT when keys is empty.
func (r *Repository) Write(ctx context.Context, table string, columns, keys []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("%s: Write: columns must not be empty", r.d.Name)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	stmtSQL := r.d.InsertSQL(table, columns)
	if len(keys) > 0 {
		stmtSQL = r.d.Upsert(r.d, table, columns, keys)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: begin tx: %w", r.d.Name, err)
	}
	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("%s: prepare: %w", r.d.Name, err)
	}
	defer stmt.Close()

	var written int64
	for _, row := range rows {
		if len(row) != len(columns) {
			_ = tx.Rollback()
			return 0, fmt.Errorf("%s: Write: row length %d != columns length %d", r.d.Name, len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("%s: write %s: %w", r.d.Name, table, err)
		}
		written++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: commit: %w", r.d.Name, err)
	}
	return written, nil
}

// Exec executes a statement; blank statements are ignored.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	if strings.TrimSpace(sqlText) == "" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("%s: exec: %w", r.d.Name, err)
	}
	return nil
}

// Close closes the pool.
func (r *Repository) Close() { _ = r.db.Close() }
