// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package routing

import (
	"context"
	"time"

	"github.com/tomtom215/waymark/internal/geo"
	"github.com/tomtom215/waymark/internal/models"
)

// Average speeds in m/s used for straight-line duration estimates.
var averageSpeed = map[string]float64{
	ModeDriving: 50.0 / 3.6,
	ModeCycling: 15.0 / 3.6,
	ModeWalking: 5.0 / 3.6,
}

// StraightLineProvider draws a two-point route with a great-circle
// distance. It never fails.
type StraightLineProvider struct{}

func (StraightLineProvider) Name() string { return KindStraightLine }

// Route implements Provider.
func (StraightLineProvider) Route(_ context.Context, origin, destination models.Place, opts Options) (*models.Route, error) {
	mode := opts.mode()
	d := geo.HaversineMeters(origin.Coordinate, destination.Coordinate)
	return &models.Route{
		Origin:          origin,
		Destination:     destination,
		DistanceMeters:  d,
		DurationSeconds: d / averageSpeed[mode],
		Polyline:        []models.Coordinate{origin.Coordinate, destination.Coordinate},
		CreatedAt:       time.Now().UTC(),
		RouteKind:       KindStraightLine,
		TransportKind:   mode,
	}, nil
}
