// Package postgres implements a Postgres repository using pgx v5. Appends
// COPY straight into the target table; upserts COPY into a temporary table
// and merge from there with INSERT ... ON CONFLICT.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"normalize/internal/records"
)

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, dsn string) (*Repository, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	r := &Repository{pool: pool}
	return r, r.Close, nil
}

// Close closes the pool.
func (r *Repository) Close() { r.pool.Close() }

// LoadRows reads every row of table.
func (r *Repository) LoadRows(ctx context.Context, table string, columns []string) ([]records.Record, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("postgres: LoadRows: columns must not be empty")
	}
	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(mapIdent(columns), ", "), pgFQN(table))
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres: select %s: %w", table, err)
	}
	defer rows.Close()

	var out []records.Record
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("postgres: scan %s: %w", table, err)
		}
		out = append(out, records.FromValues(columns, vals))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: read %s: %w", table, err)
	}
	return out, nil
}

// Write appends rows with COPY, or upserts them on keys through a temp table.
func (r *Repository) Write(ctx context.Context, table string, columns, keys []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(keys) == 0 {
		n, err := r.pool.CopyFrom(ctx, splitFQN(table), columns, pgx.CopyFromRows(rows))
		if err != nil {
			return n, fmt.Errorf("postgres: copy into %s: %w", table, describe(err))
		}
		return n, nil
	}

	tmp := tempName(table)
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, createTempSQL(tmp, table, columns)); err != nil {
		return 0, fmt.Errorf("postgres: create temp: %w", err)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{tmp}, columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, fmt.Errorf("postgres: copy into temp: %w", describe(err))
	}
	tag, err := tx.Exec(ctx, upsertSQL(tmp, table, columns, keys))
	if err != nil {
		return 0, fmt.Errorf("postgres: upsert into %s: %w", table, describe(err))
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Exec implements storage.Repository.Exec for Postgres.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	if _, err := r.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("postgres: exec: %w", err)
	}
	return nil
}

func tempName(table string) string {
	return "tmp_" + strings.ReplaceAll(table, ".", "_")
}

// createTempSQL clones the column shape of table into a transaction-scoped
// staging table.
func createTempSQL(tmp, table string, cols []string) string {
	return fmt.Sprintf(
		"CREATE TEMP TABLE %s ON COMMIT DROP AS SELECT %s FROM %s WHERE false",
		pgIdent(tmp), strings.Join(mapIdent(cols), ", "), pgFQN(table),
	)
}

func upsertSQL(tmp, table string, cols, keys []string) string {
	quoted := strings.Join(mapIdent(cols), ", ")
	stmt := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s)",
		pgFQN(table), quoted, quoted, pgIdent(tmp), strings.Join(mapIdent(keys), ", "))

	set := updateColumns(filterConflictKeys(cols, keys))
	if len(set) == 0 {
		return stmt + " DO NOTHING"
	}
	return stmt + " DO UPDATE SET " + strings.Join(set, ", ")
}

// updateColumns generates a list of column updates in the format: "col = EXCLUDED.col"
func updateColumns(cols []string) []string {
	updates := make([]string, 0, len(cols))
	for _, col := range cols {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", pgIdent(col), pgIdent(col)))
	}
	return updates
}

// filterConflictKeys drops the conflict target from the update list.
func filterConflictKeys(cols, keys []string) []string {
	keySet := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		keySet[k] = struct{}{}
	}
	var out []string
	for _, c := range cols {
		if _, isKey := keySet[c]; !isKey {
			out = append(out, c)
		}
	}
	return out
}

// describe surfaces the server-side detail of a Postgres error.
func describe(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		return fmt.Errorf("%w (%s: %s)", err, pgErr.SQLState(), pgErr.Detail)
	}
	return err
}

// pgIdent safely quotes a single identifier segment for Postgres.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// pgFQN quotes a possibly schema-qualified name like "public.sales" to
// "public"."sales".
func pgFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pgIdent(p)
	}
	return strings.Join(parts, ".")
}

// mapIdent maps a list of column names to their quoted forms.
func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgIdent(c)
	}
	return out
}

// splitFQN converts "schema.table" into a pgx.Identifier {"schema","table"}.
func splitFQN(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	id := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			id = append(id, p)
		}
	}
	return id
}
