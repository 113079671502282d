// Package sqlitestore implements normalize.Store on a SQLite file using
// database/sql and the pure-Go modernc driver.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"normalize/internal/normalize"
	"normalize/internal/records"
)

const schemaSQL = `CREATE TABLE IF NOT EXISTS kv (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	k   BLOB NOT NULL UNIQUE,
	v   BLOB NOT NULL
)`

// Inserting an existing key updates v and keeps seq, so ORDER BY seq is
// insertion order.
const upsertSQL = `INSERT INTO kv (k, v) VALUES (?, ?)
ON CONFLICT(k) DO UPDATE SET v = excluded.v`

var _ normalize.Store = (*Store)(nil)

// Store is a key/value table ordered by insertion.
type Store struct {
	db     *sql.DB
	get    *sql.Stmt
	set    *sql.Stmt
	path   string
	remove bool
	n      int
}

// Options configures Open.
type Options struct {
	// Path of the database file. Empty means a temporary file in Dir that
	// is removed on Close.
	Path string
	Dir  string
}

// Open opens or creates a store.
func Open(ctx context.Context, opts Options) (*Store, error) {
	s := &Store{path: opts.Path}
	if s.path == "" {
		if opts.Dir != "" {
			if err := os.MkdirAll(opts.Dir, 0o750); err != nil {
				return nil, fmt.Errorf("sqlitestore: mkdir %s: %w", opts.Dir, err)
			}
		}
		f, err := os.CreateTemp(opts.Dir, "normalize-*.sqlite")
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: temp file: %w", err)
		}
		s.path = f.Name()
		_ = f.Close()
		s.remove = true
	} else if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return nil, fmt.Errorf("sqlitestore: mkdir %s: %w", filepath.Dir(s.path), err)
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		_ = s.cleanup()
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	// One writer; the store is used from a single goroutine.
	db.SetMaxOpenConns(1)
	s.db = db

	if err := s.init(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode = OFF",
		"PRAGMA synchronous = OFF",
	} {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("sqlitestore: %s: %w", pragma, err)
		}
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("sqlitestore: create table: %w", err)
	}
	var err error
	if s.get, err = s.db.PrepareContext(ctx, "SELECT v FROM kv WHERE k = ?"); err != nil {
		return fmt.Errorf("sqlitestore: prepare get: %w", err)
	}
	if s.set, err = s.db.PrepareContext(ctx, upsertSQL); err != nil {
		return fmt.Errorf("sqlitestore: prepare set: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM kv").Scan(&s.n); err != nil {
		return fmt.Errorf("sqlitestore: count: %w", err)
	}
	return nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Get returns the row stored under key.
func (s *Store) Get(key normalize.Key) (records.Record, bool, error) {
	var v []byte
	err := s.get.QueryRow([]byte(key)).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlitestore: get: %w", err)
	}
	row, err := records.Decode(v)
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

// Set stores row under key. Overwriting keeps the key's position.
func (s *Store) Set(key normalize.Key, row records.Record) error {
	v, err := records.Encode(row)
	if err != nil {
		return err
	}
	_, found, err := s.Get(key)
	if err != nil {
		return err
	}
	if _, err := s.set.Exec([]byte(key), v); err != nil {
		return fmt.Errorf("sqlitestore: set: %w", err)
	}
	if !found {
		s.n++
	}
	return nil
}

// Items calls fn for every row in insertion order.
func (s *Store) Items(fn func(normalize.Key, records.Record) error) error {
	rows, err := s.db.Query("SELECT k, v FROM kv ORDER BY seq")
	if err != nil {
		return fmt.Errorf("sqlitestore: items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return fmt.Errorf("sqlitestore: scan: %w", err)
		}
		row, err := records.Decode(v)
		if err != nil {
			return err
		}
		if err := fn(normalize.Key(k), row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Len returns the number of stored keys.
func (s *Store) Len() int { return s.n }

// Close closes the database and removes it when Open created it.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	var errs []error
	for _, st := range []*sql.Stmt{s.get, s.set} {
		if st != nil {
			errs = append(errs, st.Close())
		}
	}
	errs = append(errs, s.db.Close(), s.cleanup())
	s.db = nil
	return errors.Join(errs...)
}

func (s *Store) cleanup() error {
	if !s.remove {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("sqlitestore: remove %s: %w", s.path, err)
	}
	return nil
}
