package kvstore

import (
	"context"
	"fmt"
	"strings"

	"normalize/internal/kvstore/boltstore"
	"normalize/internal/kvstore/sqlitestore"
	"normalize/internal/normalize"
)

// Store kinds accepted by Factory.
const (
	KindMemory = "memory"
	KindBolt   = "bolt"
	KindSQLite = "sqlite"
)

// Config selects the store used for every group.
type Config struct {
	Kind string `json:"kind,omitempty"`
	// Dir holds the per-group temporary files of disk stores.
	Dir string `json:"dir,omitempty"`
}

// Kinds lists the supported store kinds.
func Kinds() []string { return []string{KindMemory, KindBolt, KindSQLite} }

// Factory returns a store factory for cfg. Disk stores create one temporary
// file per group and remove it when the store is closed.
func Factory(ctx context.Context, cfg Config) (normalize.StoreFactory, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", KindMemory:
		return normalize.MemoryStores, nil
	case KindBolt:
		return func(normalize.Group) (normalize.Store, error) {
			return boltstore.Open(boltstore.Options{Dir: cfg.Dir})
		}, nil
	case KindSQLite:
		return func(normalize.Group) (normalize.Store, error) {
			return sqlitestore.Open(ctx, sqlitestore.Options{Dir: cfg.Dir})
		}, nil
	default:
		return nil, fmt.Errorf("kvstore: unknown store kind %q (want one of %s)", cfg.Kind, strings.Join(Kinds(), ", "))
	}
}
