// Package boltstore implements normalize.Store on a bbolt file.
package boltstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"normalize/internal/normalize"
	"normalize/internal/records"
)

var (
	bucketKeys = []byte("keys")
	bucketRows = []byte("rows")
)

const errFmtBucketNotFound = "boltstore: bucket %q not found"

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("boltstore: store is closed")

var _ normalize.Store = (*Store)(nil)

// Store keeps rows in the "rows" bucket under a big-endian sequence number
// and maps each key to its sequence in the "keys" bucket, so that cursor
// order over "rows" is insertion order. A rows value is the uvarint length
// of the key, the key, then the MessagePack row.
type Store struct {
	db     *bolt.DB
	path   string
	remove bool
	n      int
}

// Options configures Open.
type Options struct {
	// Path of the database file. Empty means a new temporary file in Dir
	// that is removed on Close.
	Path string
	// Dir holds temporary files; empty means os.TempDir().
	Dir string
	// Sync enables fsync on every commit.
	Sync bool
}

// Open opens or creates a store.
func Open(opts Options) (*Store, error) {
	s := &Store{path: opts.Path}
	if s.path == "" {
		if opts.Dir != "" {
			if err := os.MkdirAll(opts.Dir, 0o750); err != nil {
				return nil, fmt.Errorf("boltstore: mkdir %s: %w", opts.Dir, err)
			}
		}
		f, err := os.CreateTemp(opts.Dir, "normalize-*.bolt")
		if err != nil {
			return nil, fmt.Errorf("boltstore: temp file: %w", err)
		}
		s.path = f.Name()
		_ = f.Close()
		s.remove = true
	} else if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return nil, fmt.Errorf("boltstore: mkdir %s: %w", filepath.Dir(s.path), err)
	}

	db, err := bolt.Open(s.path, 0o600, &bolt.Options{Timeout: time.Second, NoSync: !opts.Sync})
	if err != nil {
		_ = s.cleanup()
		return nil, fmt.Errorf("boltstore: open %s: %w", s.path, err)
	}
	s.db = db

	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketKeys); err != nil {
			return err
		}
		rows, err := tx.CreateBucketIfNotExists(bucketRows)
		if err != nil {
			return err
		}
		s.n = rows.Stats().KeyN
		return nil
	}); err != nil {
		_ = db.Close()
		_ = s.cleanup()
		return nil, fmt.Errorf("boltstore: init %s: %w", s.path, err)
	}
	return s, nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

func (s *Store) buckets(tx *bolt.Tx) (keys, rows *bolt.Bucket, err error) {
	if keys = tx.Bucket(bucketKeys); keys == nil {
		return nil, nil, fmt.Errorf(errFmtBucketNotFound, bucketKeys)
	}
	if rows = tx.Bucket(bucketRows); rows == nil {
		return nil, nil, fmt.Errorf(errFmtBucketNotFound, bucketRows)
	}
	return keys, rows, nil
}

// Get returns the row stored under key.
func (s *Store) Get(key normalize.Key) (records.Record, bool, error) {
	if s.db == nil {
		return nil, false, ErrClosed
	}
	var (
		row   records.Record
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		keys, rows, err := s.buckets(tx)
		if err != nil {
			return err
		}
		seq := keys.Get([]byte(key))
		if seq == nil {
			return nil
		}
		v := rows.Get(seq)
		if v == nil {
			return fmt.Errorf("boltstore: row %d missing", btou64(seq))
		}
		_, row, err = decodeEntry(v)
		found = err == nil
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return row, found, nil
}

// Set stores row under key. Overwriting keeps the key's position.
func (s *Store) Set(key normalize.Key, row records.Record) error {
	if s.db == nil {
		return ErrClosed
	}
	v, err := encodeEntry(key, row)
	if err != nil {
		return err
	}
	added := false
	err = s.db.Update(func(tx *bolt.Tx) error {
		keys, rows, err := s.buckets(tx)
		if err != nil {
			return err
		}
		seq := keys.Get([]byte(key))
		if seq == nil {
			n, err := rows.NextSequence()
			if err != nil {
				return err
			}
			seq = u64tob(n)
			if err := keys.Put([]byte(key), seq); err != nil {
				return err
			}
			added = true
		}
		return rows.Put(seq, v)
	})
	if err != nil {
		return fmt.Errorf("boltstore: set: %w", err)
	}
	if added {
		s.n++
	}
	return nil
}

// Items calls fn for every row in insertion order.
func (s *Store) Items(fn func(normalize.Key, records.Record) error) error {
	if s.db == nil {
		return ErrClosed
	}
	return s.db.View(func(tx *bolt.Tx) error {
		_, rows, err := s.buckets(tx)
		if err != nil {
			return err
		}
		return rows.ForEach(func(_, v []byte) error {
			key, row, err := decodeEntry(v)
			if err != nil {
				return err
			}
			return fn(key, row)
		})
	})
}

// Len returns the number of stored keys.
func (s *Store) Len() int { return s.n }

// Close closes the database and removes it when Open created it.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if rmErr := s.cleanup(); err == nil {
		err = rmErr
	}
	return err
}

func (s *Store) cleanup() error {
	if !s.remove {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("boltstore: remove %s: %w", s.path, err)
	}
	return nil
}

func encodeEntry(key normalize.Key, row records.Record) ([]byte, error) {
	body, err := records.Encode(row)
	if err != nil {
		return nil, err
	}
	b := make([]byte, 0, binary.MaxVarintLen64+len(key)+len(body))
	b = binary.AppendUvarint(b, uint64(len(key)))
	b = append(b, string(key)...)
	return append(b, body...), nil
}

func decodeEntry(v []byte) (normalize.Key, records.Record, error) {
	n, sz := binary.Uvarint(v)
	if sz <= 0 || uint64(len(v)-sz) < n {
		return "", nil, errors.New("boltstore: corrupt entry")
	}
	key := normalize.Key(v[sz : sz+int(n)])
	row, err := records.Decode(v[sz+int(n):])
	if err != nil {
		return "", nil, err
	}
	return key, row, nil
}

func u64tob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btou64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }
