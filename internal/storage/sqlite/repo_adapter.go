package sqlite

import (
	"context"

	"normalize/internal/storage"
)

// init registers the "sqlite" backend and its DDL bootstrapper.
func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, _, err := NewRepository(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return r, nil
	})
	storage.RegisterDDL("sqlite", EnsureTable)
}
