// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package models

import (
	"fmt"
	"time"
)

// Location is a resolved device position.
type Location struct {
	Coordinate
	Label     string    `json:"label"`
	Accuracy  float64   `json:"accuracy_meters,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Source names the position source ("static", "ip").
	Source string `json:"source"`
}

// SearchResult is one forward-geocoding candidate.
type SearchResult struct {
	Name     string  `json:"name"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Provider string  `json:"provider"`
}

// Coordinate returns the result position.
func (s SearchResult) Coordinate() Coordinate {
	return Coordinate{Lat: s.Lat, Lng: s.Lon}
}

// FormatCoordinates renders c the way it is shown when no address is known.
func FormatCoordinates(c Coordinate) string {
	return fmt.Sprintf("%.6f, %.6f", c.Lat, c.Lng)
}
