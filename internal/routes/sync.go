// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package routes

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/waymark/internal/backend"
	"github.com/tomtom215/waymark/internal/logging"
	"github.com/tomtom215/waymark/internal/metrics"
	"github.com/tomtom215/waymark/internal/models"
)

// SyncPending pushes local-only records of the authenticated scope to
// the backend and swaps in the server-confirmed records. Local records
// that duplicate a server record's endpoints are dropped instead. It
// returns how many records were pushed. Guest sessions are a no-op.
func (c *Cache) SyncPending(ctx context.Context) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.syncPending(ctx, c.scope())
}

// syncPending must be called with writeMu held.
func (c *Cache) syncPending(ctx context.Context, sc scope) (int, error) {
	if !c.online(sc) {
		return 0, nil
	}
	list, err := c.activeList(ctx, sc)
	if err != nil {
		return 0, err
	}

	pending := 0
	for _, r := range list {
		if r.IsLocal() {
			pending++
		}
	}
	if pending == 0 {
		return 0, nil
	}

	log := logging.Ctx(ctx).With().Str("scope", sc.label()).Int("pending", pending).Logger()
	log.Info().Msg("Syncing local routes to backend")

	current := c.snapshotCurrent()
	next := make([]*models.Route, 0, len(list))
	var (
		synced  int
		changed bool
		errs    []error
		offline bool
	)
	for _, r := range list {
		if !r.IsLocal() {
			next = append(next, r)
			continue
		}
		if dup := serverDuplicate(list, r); dup != nil {
			metrics.RecordRouteOperation("sync", "duplicate")
			changed = true
			if current != nil && current.ID == r.ID {
				current = dup
			}
			continue
		}
		if offline {
			next = append(next, r)
			continue
		}

		out := r.Clone()
		out.ID = ""
		saved, err := c.remote.SaveRoute(ctx, out)
		if err != nil {
			errs = append(errs, fmt.Errorf("route %s: %w", r.ID, err))
			if errors.Is(err, backend.ErrUnavailable) || backend.IsTransient(err) || ctx.Err() != nil {
				offline = true
			}
			next = append(next, r)
			continue
		}
		metrics.RecordRouteOperation("sync", "remote")
		synced++
		changed = true
		next = append(next, saved)
		if current != nil && current.ID == r.ID {
			current = saved
		}
	}

	if changed {
		if err := c.commit(ctx, sc, next, current); err != nil {
			return synced, err
		}
		c.publish(ctx, "sync", sc, next, current)
	}
	log.Info().Int("synced", synced).Int("failed", len(errs)).Msg("Route sync finished")
	return synced, errors.Join(errs...)
}

// serverDuplicate returns a server-assigned record in list with the same
// endpoints as r.
func serverDuplicate(list []*models.Route, r *models.Route) *models.Route {
	for _, other := range list {
		if other.IsServerAssigned() && other.SameEndpoints(r) {
			return other
		}
	}
	return nil
}
