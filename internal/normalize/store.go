package normalize

import "normalize/internal/records"

// Store maps deduplication keys to finalized dimension rows. A Store is
// owned by exactly one Indexer and is never accessed concurrently.
//
// Implementations may keep rows in memory or spill them to disk; the
// disk-backed ones live under internal/kvstore.
type Store interface {
	// Get returns the row stored under key.
	Get(key Key) (records.Record, bool, error)

	// Set inserts or overwrites the row stored under key. Overwriting keeps
	// the key's original position in the enumeration order.
	Set(key Key, row records.Record) error

	// Items calls fn for every entry in insertion order and stops at the
	// first error returned by fn.
	Items(fn func(key Key, row records.Record) error) error

	// Len returns the number of stored keys.
	Len() int

	// Close releases the resources held by the store.
	Close() error
}

// StoreFactory creates the Store for a group.
type StoreFactory func(g Group) (Store, error)

// MemoryStores is the default StoreFactory.
func MemoryStores(Group) (Store, error) { return NewMemoryStore(), nil }

// MemoryStore is an in-memory Store for groups of modest cardinality.
type MemoryStore struct {
	index map[Key]int
	keys  []Key
	rows  []records.Record
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{index: make(map[Key]int)}
}

func (s *MemoryStore) Get(key Key) (records.Record, bool, error) {
	i, ok := s.index[key]
	if !ok {
		return nil, false, nil
	}
	return s.rows[i], true, nil
}

func (s *MemoryStore) Set(key Key, row records.Record) error {
	if i, ok := s.index[key]; ok {
		s.rows[i] = row
		return nil
	}
	s.index[key] = len(s.rows)
	s.keys = append(s.keys, key)
	s.rows = append(s.rows, row)
	return nil
}

func (s *MemoryStore) Items(fn func(key Key, row records.Record) error) error {
	for i, k := range s.keys {
		if err := fn(k, s.rows[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) Len() int { return len(s.rows) }

// Close drops the stored rows.
func (s *MemoryStore) Close() error {
	s.index, s.keys, s.rows = map[Key]int{}, nil, nil
	return nil
}
