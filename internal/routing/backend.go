// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package routing

import (
	"context"

	"github.com/tomtom215/waymark/internal/backend"
	"github.com/tomtom215/waymark/internal/models"
)

// Calculator is the route backend's calculate endpoint.
type Calculator interface {
	CalculateRoute(ctx context.Context, req backend.RouteRequest) (*models.Route, error)
}

// BackendProvider is the primary provider.
type BackendProvider struct {
	calc Calculator
}

// NewBackendProvider wraps the backend client.
func NewBackendProvider(calc Calculator) *BackendProvider {
	return &BackendProvider{calc: calc}
}

func (p *BackendProvider) Name() string { return KindBackend }

// Route implements Provider.
func (p *BackendProvider) Route(ctx context.Context, origin, destination models.Place, opts Options) (*models.Route, error) {
	r, err := p.calc.CalculateRoute(ctx, backend.RouteRequest{
		Origin:        origin,
		Destination:   destination,
		TransportMode: opts.mode(),
	})
	if err != nil {
		return nil, err
	}
	if r.RouteKind == "" {
		r.RouteKind = KindBackend
	}
	return r, nil
}
