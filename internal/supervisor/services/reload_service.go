// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package services

import (
	"context"
	"fmt"

	"github.com/tomtom215/waymark/internal/events"
	"github.com/tomtom215/waymark/internal/logging"
	"github.com/tomtom215/waymark/internal/models"
)

// EventSubscriber is satisfied by *events.Bus.
type EventSubscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan events.Envelope, error)
}

// RouteLoader is satisfied by *routes.Cache.
type RouteLoader interface {
	Load(ctx context.Context) ([]*models.Route, error)
}

// RouteReloadService reloads the route list each time the session
// changes, so the bridge always shows the active scope's routes.
type RouteReloadService struct {
	bus    EventSubscriber
	routes RouteLoader
}

// NewRouteReloadService creates the service.
func NewRouteReloadService(bus EventSubscriber, routes RouteLoader) *RouteReloadService {
	return &RouteReloadService{bus: bus, routes: routes}
}

// Serve loads once at start, then on every session change until ctx is
// canceled. Load failures are logged; the cache keeps its last state.
func (s *RouteReloadService) Serve(ctx context.Context) error {
	ch, err := s.bus.Subscribe(ctx, events.TopicSessionChanged)
	if err != nil {
		return fmt.Errorf("subscribe to session changes: %w", err)
	}

	s.reload(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ch:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("session change subscription closed")
			}
			s.reload(ctx)
		}
	}
}

func (s *RouteReloadService) reload(ctx context.Context) {
	list, err := s.routes.Load(ctx)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Route reload after session change failed")
		return
	}
	logging.Ctx(ctx).Debug().Int("routes", len(list)).Msg("Routes reloaded for session")
}

// String names the service in supervisor logs.
func (s *RouteReloadService) String() string {
	return "route-reload"
}
