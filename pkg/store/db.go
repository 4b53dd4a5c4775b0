package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"chatcore/pkg/state/logger"
	"chatcore/pkg/store/keys"

	"github.com/cockroachdb/pebble"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
	ErrClosed   = errors.New("store closed")
)

// Store keeps users and messages in a single pebble database.
type Store struct {
	db   atomic.Pointer[pebble.DB]
	path string

	// serializes user creation so email and username stay unique
	userMu sync.Mutex
}

// Open opens or creates the pebble database at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	logger.Info("pebble_opened", "path", path)
	s := &Store{path: path}
	s.db.Store(db)
	return s, nil
}

// Close flushes and closes the database. Safe to call twice.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	db := s.db.Swap(nil)
	if db == nil {
		return nil
	}
	if err := db.Flush(); err != nil {
		logger.Error("pebble_flush_failed", "error", err)
	}
	return db.Close()
}

// Ready reports whether the database is open.
func (s *Store) Ready() bool {
	return s != nil && s.db.Load() != nil
}

func (s *Store) handle() (*pebble.DB, error) {
	if s == nil {
		return nil, ErrClosed
	}
	db := s.db.Load()
	if db == nil {
		return nil, ErrClosed
	}
	return db, nil
}

func (s *Store) newBatch() (*pebble.Batch, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	return db.NewBatch(), nil
}

func (s *Store) Path() string { return s.path }

func writeOpt(sync bool) *pebble.WriteOptions {
	if sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

func (s *Store) getJSON(key string, v any) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	val, closer, err := db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return ErrNotFound
		}
		logger.Error("get_key_failed", "key", key, "error", err)
		return err
	}
	defer closer.Close()
	if err := json.Unmarshal(val, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) getString(key string) (string, error) {
	db, err := s.handle()
	if err != nil {
		return "", err
	}
	val, closer, err := db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	defer closer.Close()
	return string(val), nil
}

func setJSON(b *pebble.Batch, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return b.Set([]byte(key), data, nil)
}

func (s *Store) apply(b *pebble.Batch) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if err := db.Apply(b, writeOpt(true)); err != nil {
		logger.Error("pebble_apply_batch_failed", "error", err)
		return err
	}
	return nil
}

// scanPrefix visits keys under prefix in order (or reverse) until fn returns false.
func (s *Store) scanPrefix(prefix string, reverse bool, fn func(k, v []byte) (bool, error)) error {
	return s.scanRange([]byte(prefix), keys.UpperBound(prefix), reverse, fn)
}

// scanRange visits keys in [lower, upper).
func (s *Store) scanRange(lower, upper []byte, reverse bool, fn func(k, v []byte) (bool, error)) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer iter.Close()

	valid := iter.First()
	if reverse {
		valid = iter.Last()
	}
	for ; valid; valid = step(iter, reverse) {
		cont, err := fn(iter.Key(), iter.Value())
		if err != nil {
			return err
		}
		if !cont {
			break
		}
	}
	return iter.Error()
}

func step(iter *pebble.Iterator, reverse bool) bool {
	if reverse {
		return iter.Prev()
	}
	return iter.Next()
}
