package storage

import (
	"context"

	"normalize/internal/records"
)

// Repository is the storage-agnostic contract every backend implements.
type Repository interface {
	// LoadRows reads every row of table, restricted to columns.
	LoadRows(ctx context.Context, table string, columns []string) ([]records.Record, error)

	// Write stores rows aligned to columns into table. With keys it upserts on
	// those columns; without keys it appends. It returns the rows written.
	Write(ctx context.Context, table string, columns, keys []string, rows [][]any) (int64, error)

	// Exec runs a statement, typically DDL.
	Exec(ctx context.Context, sql string) error

	Close()
}
