package postgres

import (
	"context"

	"normalize/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
// Tests may replace this variable to avoid real DB connections.
var newRepository = func(ctx context.Context, dsn string) (storage.Repository, error) {
	r, _, err := NewRepository(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return r, nil
}

var _ storage.Repository = (*Repository)(nil)

// init registers the "postgres" backend and its DDL bootstrapper, so callers
// obtain a Repository via storage.New without importing this package.
func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return newRepository(ctx, cfg.DSN)
	})
	storage.RegisterDDL("postgres", EnsureTable)
}
