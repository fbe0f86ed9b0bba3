// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package kvstore

import (
	"fmt"

	"github.com/tomtom215/waymark/internal/logging"
)

// StoreType selects the storage backend.
type StoreType string

const (
	// StoreBadger persists to a BadgerDB directory.
	StoreBadger StoreType = "badger"

	// StoreMemory keeps everything in process memory.
	StoreMemory StoreType = "memory"
)

// DefaultSensitiveKeys are sealed when Options.SensitiveKeys is empty.
var DefaultSensitiveKeys = []string{KeyToken, KeyUser}

// Options configures Open.
type Options struct {
	Type StoreType
	Path string

	// EncryptionKey, when set, seals SensitiveKeys at rest.
	EncryptionKey string
	SensitiveKeys []string
}

// Open creates the configured Store. An empty type means badger.
func Open(opts Options) (Store, error) {
	var store Store
	switch opts.Type {
	case StoreBadger, "":
		bs, err := OpenBadger(opts.Path)
		if err != nil {
			return nil, err
		}
		store = bs
	case StoreMemory:
		store = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store type %q", opts.Type)
	}

	if opts.EncryptionKey != "" {
		enc, err := NewEncryptor(opts.EncryptionKey)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		keys := opts.SensitiveKeys
		if len(keys) == 0 {
			keys = DefaultSensitiveKeys
		}
		store = WithEncryption(store, enc, keys...)
	}

	logging.Debug().
		Str("type", string(opts.Type)).
		Str("path", opts.Path).
		Bool("encrypted", opts.EncryptionKey != "").
		Msg("Opened key-value store")
	return store, nil
}
