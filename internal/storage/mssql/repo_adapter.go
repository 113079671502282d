package mssql

import (
	"context"

	"normalize/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
var newRepository = NewRepository

var _ storage.Repository = (*Repository)(nil)

// init registers the "mssql" backend and its DDL bootstrapper.
func init() {
	storage.Register("mssql", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, _, err := newRepository(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return r, nil
	})
	storage.RegisterDDL("mssql", EnsureTable)
}
