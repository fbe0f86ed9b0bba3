// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package routes

import (
	"context"
	"strings"

	"github.com/tomtom215/waymark/internal/kvstore"
	"github.com/tomtom215/waymark/internal/models"
	"github.com/tomtom215/waymark/internal/validation"
)

// SaveSearch remembers the origin and destination text the current user
// last entered. Guests and anonymous users share one slot.
func (c *Cache) SaveSearch(ctx context.Context, origin, destination string) error {
	in := models.SearchInput{
		Origin:      strings.TrimSpace(origin),
		Destination: strings.TrimSpace(destination),
		SavedAt:     c.now().UTC(),
	}
	return kvstore.SetJSON(ctx, c.store, kvstore.SearchKey(c.searchSubject()), in)
}

// LastSearch returns the inputs saved by SaveSearch for the current user.
func (c *Cache) LastSearch(ctx context.Context) (*models.SearchInput, bool) {
	var in models.SearchInput
	ok, err := kvstore.GetJSON(ctx, c.store, kvstore.SearchKey(c.searchSubject()), &in)
	if err != nil || !ok {
		return nil, false
	}
	return &in, true
}

func (c *Cache) searchSubject() string {
	sc := c.scope()
	if !sc.authenticated {
		return ""
	}
	return sc.subjectID
}

type endpoints struct {
	OriginLat float64 `validate:"latitude"`
	OriginLng float64 `validate:"longitude"`
	DestLat   float64 `validate:"latitude"`
	DestLng   float64 `validate:"longitude"`
}

func validateEndpoints(r *models.Route) error {
	return validation.ValidateStruct(endpoints{
		OriginLat: r.Origin.Lat,
		OriginLng: r.Origin.Lng,
		DestLat:   r.Destination.Lat,
		DestLng:   r.Destination.Lng,
	})
}
