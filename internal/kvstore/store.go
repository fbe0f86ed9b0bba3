// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

// Package kvstore is the persisted key-value store behind the session
// manager and the route cache. Values are opaque byte blobs (JSON in
// practice); the store has no behaviour beyond get/set/delete by key and a
// per-key read-modify-write.
//
// Two backends exist: BadgerStore (durable, default) and MemoryStore
// (tests and storage.type=memory). Open picks one from configuration.
package kvstore

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kvstore: store is closed")

// UpdateFunc receives the current value (exists=false when absent) and
// returns the value to store. Returning a nil slice deletes the key.
type UpdateFunc func(current []byte, exists bool) ([]byte, error)

// Store is the persisted key-value contract.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// Update applies fn atomically to one key. Concurrent updates of the
	// same key are serialised; the last successful writer wins.
	Update(ctx context.Context, key string, fn UpdateFunc) error

	// Close releases the backend.
	Close() error
}

// Persisted keys.
const (
	KeyToken         = "auth:token"
	KeyUser          = "auth:user"
	KeyGuest         = "auth:guest"
	KeyPendingSignup = "auth:pending_signup"
	KeyRoutesGuest   = "routes:guest"
	KeyCurrentRoute  = "routes:current"

	keyRoutesUserPrefix = "routes:user:"
	keySearchPrefix     = "search:last:"
)

// AuthKeys lists every key the session manager owns.
var AuthKeys = []string{KeyToken, KeyUser, KeyGuest, KeyPendingSignup}

// RoutesUserKey is the authenticated-scope route list key for subjectID.
func RoutesUserKey(subjectID string) string {
	return keyRoutesUserPrefix + subjectID
}

// SearchKey is the last-search key for subjectID ("guest" for guests and
// anonymous users).
func SearchKey(subjectID string) string {
	if subjectID == "" {
		subjectID = "guest"
	}
	return keySearchPrefix + subjectID
}
