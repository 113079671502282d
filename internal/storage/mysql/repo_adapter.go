package mysql

import (
	"context"

	"normalize/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
var newRepository = NewRepository

// init registers the "mysql" backend and its DDL bootstrapper.
func init() {
	storage.Register("mysql", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, _, err := newRepository(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return r, nil
	})
	storage.RegisterDDL("mysql", EnsureTable)
}
