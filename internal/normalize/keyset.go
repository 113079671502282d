package normalize

import "github.com/zeebo/xxh3"

// KeySet records which keys an indexer has already seen. It keeps a 128-bit
// xxh3 digest per key instead of the key itself, so its footprint does not
// grow with key width. Contains may report false positives on a digest
// collision; callers confirm a hit against the store.
type KeySet struct {
	digests map[xxh3.Uint128]struct{}
}

// NewKeySet returns an empty set sized for hint keys.
func NewKeySet(hint int) *KeySet {
	return &KeySet{digests: make(map[xxh3.Uint128]struct{}, hint)}
}

// Add marks k as seen.
func (s *KeySet) Add(k Key) {
	s.digests[xxh3.HashString128(string(k))] = struct{}{}
}

// Contains reports whether k may have been seen. A false result is exact.
func (s *KeySet) Contains(k Key) bool {
	_, ok := s.digests[xxh3.HashString128(string(k))]
	return ok
}

// Len returns the number of distinct digests.
func (s *KeySet) Len() int { return len(s.digests) }
