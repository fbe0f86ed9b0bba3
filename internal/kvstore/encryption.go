// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package kvstore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/tomtom215/waymark/internal/logging"
)

const (
	encryptionSalt = "waymark-kvstore"
	encryptionInfo = "token-encryption-v1"
	aesKeySize     = 32
)

var (
	// ErrEmptyKey is returned when NewEncryptor gets an empty secret.
	ErrEmptyKey = errors.New("kvstore: encryption key is empty")

	// ErrDecryptionFailed wraps every decryption failure.
	ErrDecryptionFailed = errors.New("kvstore: decryption failed")
)

// Encryptor seals values with AES-256-GCM under a key derived from a
// passphrase with HKDF-SHA256. The random nonce is prepended to the
// ciphertext.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor derives the AES key from secret.
func NewEncryptor(secret string) (*Encryptor, error) {
	if secret == "" {
		return nil, ErrEmptyKey
	}

	key := make([]byte, aesKeySize)
	r := hkdf.New(sha256.New, []byte(secret), []byte(encryptionSalt), []byte(encryptionInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM cipher: %w", err)
	}
	return &Encryptor{aead: aead}, nil
}

// Seal encrypts plaintext.
func (e *Encryptor) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize(), e.aead.NonceSize()+len(plaintext)+e.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a value produced by Seal.
func (e *Encryptor) Open(ciphertext []byte) ([]byte, error) {
	ns := e.aead.NonceSize()
	if len(ciphertext) < ns+e.aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}
	plain, err := e.aead.Open(nil, ciphertext[:ns], ciphertext[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plain, nil
}

// EncryptedStore wraps a Store and encrypts the values of selected keys.
// A value that fails to decrypt reads as missing.
type EncryptedStore struct {
	Store
	enc  *Encryptor
	keys map[string]struct{}
}

// WithEncryption wraps inner so that values of keys are sealed at rest.
func WithEncryption(inner Store, enc *Encryptor, keys ...string) *EncryptedStore {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return &EncryptedStore{Store: inner, enc: enc, keys: set}
}

func (s *EncryptedStore) sensitive(key string) bool {
	_, ok := s.keys[key]
	return ok
}

// Get implements Store.
func (s *EncryptedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok, err := s.Store.Get(ctx, key)
	if err != nil || !ok || !s.sensitive(key) {
		return v, ok, err
	}
	plain, err := s.enc.Open(v)
	if err != nil {
		logging.Warn().Str("key", key).Err(err).Msg("Stored value could not be decrypted, treating as missing")
		return nil, false, nil
	}
	return plain, true, nil
}

// Set implements Store.
func (s *EncryptedStore) Set(ctx context.Context, key string, value []byte) error {
	if !s.sensitive(key) {
		return s.Store.Set(ctx, key, value)
	}
	sealed, err := s.enc.Seal(value)
	if err != nil {
		return err
	}
	return s.Store.Set(ctx, key, sealed)
}

// Update implements Store.
func (s *EncryptedStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	if !s.sensitive(key) {
		return s.Store.Update(ctx, key, fn)
	}
	return s.Store.Update(ctx, key, func(current []byte, exists bool) ([]byte, error) {
		if exists {
			plain, err := s.enc.Open(current)
			if err != nil {
				current, exists = nil, false
			} else {
				current = plain
			}
		}
		next, err := fn(current, exists)
		if err != nil || next == nil {
			return next, err
		}
		return s.enc.Seal(next)
	})
}
