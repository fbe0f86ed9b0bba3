// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package geo

import (
	"context"

	"github.com/tomtom215/waymark/internal/models"
)

// BackendReverser is the route backend's reverse geocoding endpoint.
// *backend.Client satisfies it.
type BackendReverser interface {
	ReverseGeocode(ctx context.Context, c models.Coordinate) (string, error)
}

// BackendGeocoder reverse geocodes through the route backend.
type BackendGeocoder struct {
	client BackendReverser
}

// NewBackendGeocoder wraps client.
func NewBackendGeocoder(client BackendReverser) *BackendGeocoder {
	return &BackendGeocoder{client: client}
}

func (g *BackendGeocoder) Name() string { return "backend" }

func (g *BackendGeocoder) IsAvailable() bool { return g.client != nil }

// Reverse implements ReverseGeocoder.
func (g *BackendGeocoder) Reverse(ctx context.Context, c models.Coordinate) (*models.Place, error) {
	label, err := g.client.ReverseGeocode(ctx, c)
	if err != nil {
		return nil, err
	}
	return &models.Place{Coordinate: c, Address: label}, nil
}
