package storage

import (
	"context"
	"fmt"
	"sync"

	"normalize/internal/records"
)

// DDLBootstrapper creates table for schema when it does not exist yet, using
// repo.Exec. Backends register one per storage kind at init time.
type DDLBootstrapper func(ctx context.Context, repo Repository, table string, schema records.Schema) error

var (
	ddlMu  sync.RWMutex
	ddlFns = map[string]DDLBootstrapper{}
)

// RegisterDDL registers (or replaces) the DDLBootstrapper for kind.
func RegisterDDL(kind string, fn DDLBootstrapper) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlFns[kind] = fn
}

// EnsureTable locates the bootstrapper for kind and invokes it. Callers stay
// backend-agnostic: they pass the kind and the already-open Repository.
func EnsureTable(ctx context.Context, kind string, repo Repository, table string, schema records.Schema) error {
	ddlMu.RLock()
	fn, ok := ddlFns[kind]
	ddlMu.RUnlock()
	if !ok {
		return fmt.Errorf("no DDL bootstrapper registered for storage.kind=%q", kind)
	}
	if err := fn(ctx, repo, table, schema); err != nil {
		return fmt.Errorf("ensure table %s: %w", table, err)
	}
	return nil
}
