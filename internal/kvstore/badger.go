// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package kvstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
)

// maxConflictRetries bounds Update retries on badger.ErrConflict.
const maxConflictRetries = 5

// BadgerStore implements Store on top of BadgerDB.
type BadgerStore struct {
	db     *badger.DB
	owned  bool
	closed atomic.Bool

	// locks holds one *sync.Mutex per key so that Update calls from this
	// process never race each other; ErrConflict retries cover the rest.
	locks sync.Map
}

// OpenBadger opens (creating if needed) a BadgerDB at path.
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // badger's own logger is noisy at info level

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db at %s: %w", path, err)
	}
	return &BadgerStore{db: db, owned: true}, nil
}

// NewBadgerStore wraps an already open DB. Close does not close db.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Get implements Store.
func (s *BadgerStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrClosed
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// Set implements Store.
func (s *BadgerStore) Set(_ context.Context, key string, value []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (s *BadgerStore) Delete(_ context.Context, keys ...string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete([]byte(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
		return nil
	})
	return err
}

// Update implements Store. The read and the write share one badger
// transaction; a conflicting concurrent writer causes a bounded retry.
func (s *BadgerStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	if s.closed.Load() {
		return ErrClosed
	}

	mu, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	defer mu.(*sync.Mutex).Unlock()

	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(func(txn *badger.Txn) error {
			var current []byte
			exists := true
			item, getErr := txn.Get([]byte(key))
			switch {
			case errors.Is(getErr, badger.ErrKeyNotFound):
				exists = false
			case getErr != nil:
				return getErr
			default:
				if current, getErr = item.ValueCopy(nil); getErr != nil {
					return getErr
				}
			}

			next, fnErr := fn(current, exists)
			if fnErr != nil {
				return fnErr
			}
			if next == nil {
				if !exists {
					return nil
				}
				return txn.Delete([]byte(key))
			}
			return txn.Set([]byte(key), next)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("update %s: %w", key, err)
	}
	return nil
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	if s.closed.Swap(true) || !s.owned {
		return nil
	}
	return s.db.Close()
}
