// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalIDPrefix marks routes that were never confirmed by the backend.
const LocalIDPrefix = "local_"

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Place is a coordinate with its human-readable address.
type Place struct {
	Coordinate
	Address string `json:"address"`
}

// Route is a computed path between two places plus its metadata.
//
// Server-assigned ids are decimal numbers; ids created on the device
// carry LocalIDPrefix.
type Route struct {
	ID              string       `json:"id"`
	Origin          Place        `json:"origin"`
	Destination     Place        `json:"destination"`
	DistanceMeters  float64      `json:"distance_meters"`
	DurationSeconds float64      `json:"duration_seconds"`
	Polyline        []Coordinate `json:"polyline,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	Favorite        bool         `json:"favorite"`
	RouteKind       string       `json:"route_kind,omitempty"`
	TransportKind   string       `json:"transport_kind,omitempty"`
}

// NewLocalID returns a fresh local-only route id.
func NewLocalID() string {
	return LocalIDPrefix + uuid.NewString()
}

// IsLocal reports whether the route was created on the device only.
func (r *Route) IsLocal() bool {
	return strings.HasPrefix(r.ID, LocalIDPrefix)
}

// IsServerAssigned reports whether the id is a backend numeric id.
func (r *Route) IsServerAssigned() bool {
	return IsServerID(r.ID)
}

// IsServerID reports whether id is a decimal backend id.
func IsServerID(id string) bool {
	if id == "" {
		return false
	}
	_, err := strconv.ParseUint(id, 10, 64)
	return err == nil
}

// SameEndpoints compares origin and destination coordinates exactly.
func (r *Route) SameEndpoints(other *Route) bool {
	return r.Origin.Coordinate == other.Origin.Coordinate &&
		r.Destination.Coordinate == other.Destination.Coordinate
}

// Clone returns a deep copy of r.
func (r *Route) Clone() *Route {
	if r == nil {
		return nil
	}
	c := *r
	if r.Polyline != nil {
		c.Polyline = append([]Coordinate(nil), r.Polyline...)
	}
	return &c
}

// SearchInput is the last origin/destination text a user entered.
type SearchInput struct {
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	SavedAt     time.Time `json:"saved_at"`
}
