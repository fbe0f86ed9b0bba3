// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

// Package geo resolves coordinates to addresses and search text to
// coordinates through ranked provider chains: the route backend first,
// then MapTiler, then the public Nominatim service. The first provider to
// succeed wins; a failing provider is logged and skipped.
package geo

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/tomtom215/waymark/internal/models"
)

// ErrNoProviders is returned when no provider in a chain succeeded.
var ErrNoProviders = errors.New("no geocoding provider could resolve the request")

// ReverseGeocoder turns a coordinate into a place label.
type ReverseGeocoder interface {
	Name() string
	IsAvailable() bool
	Reverse(ctx context.Context, c models.Coordinate) (*models.Place, error)
}

// ForwardGeocoder turns free text into candidate places.
type ForwardGeocoder interface {
	Name() string
	IsAvailable() bool
	Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error)
}

// DetailedReverser returns a decomposed address.
type DetailedReverser interface {
	ReverseDetailed(ctx context.Context, c models.Coordinate) (*Address, error)
}

// Address is a reverse-geocoded address split into components. Any
// component may be empty.
type Address struct {
	Locality string `json:"locality,omitempty"`
	City     string `json:"city,omitempty"`
	Region   string `json:"region,omitempty"`
	Country  string `json:"country,omitempty"`
}

// Label joins the present components with ", ", skipping a city that
// repeats the locality.
func (a *Address) Label() string {
	parts := make([]string, 0, 4)
	seen := make(map[string]bool, 4)
	for _, p := range []string{a.Locality, a.City, a.Region, a.Country} {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		parts = append(parts, p)
	}
	return strings.Join(parts, ", ")
}

const earthRadiusMeters = 6371008.8

// HaversineMeters is the great-circle distance between a and b.
func HaversineMeters(a, b models.Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}
