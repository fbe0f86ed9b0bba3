// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package kvstore

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/waymark/internal/logging"
)

// GetJSON decodes the value under key into v. An absent key and a value
// that does not parse both report (false, nil); the latter is logged.
// Only backend failures are returned as errors.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		logging.Ctx(ctx).Warn().Str("key", key).Err(err).Msg("Ignoring unparsable stored value")
		return false, nil
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}

// UpdateJSON is a typed read-modify-write over key. fn receives the
// decoded current value (the zero value when absent or unparsable) and
// returns the value to store.
func UpdateJSON[T any](ctx context.Context, s Store, key string, fn func(current T, exists bool) (T, error)) error {
	return s.Update(ctx, key, func(raw []byte, exists bool) ([]byte, error) {
		var current T
		if exists {
			if err := json.Unmarshal(raw, &current); err != nil {
				logging.Ctx(ctx).Warn().Str("key", key).Err(err).Msg("Ignoring unparsable stored value")
				var zero T
				current, exists = zero, false
			}
		}
		next, err := fn(current, exists)
		if err != nil {
			return nil, err
		}
		return json.Marshal(next)
	})
}
