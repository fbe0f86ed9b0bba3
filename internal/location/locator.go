// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package location

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/waymark/internal/config"
	"github.com/tomtom215/waymark/internal/geo"
	"github.com/tomtom215/waymark/internal/logging"
	"github.com/tomtom215/waymark/internal/models"
)

// Geocoder is the part of *geo.Resolver the locator needs.
type Geocoder interface {
	Label(ctx context.Context, c models.Coordinate) string
	ReverseDetailed(ctx context.Context, c models.Coordinate) (*geo.Address, error)
}

// Locator answers one-shot "where am I" requests.
type Locator struct {
	source   PositionSource
	geocoder Geocoder
	opts     Options
	now      func() time.Time

	mu   sync.Mutex
	last *Position
}

// NewLocator creates a locator. Zero option fields take DefaultOptions
// values.
func NewLocator(source PositionSource, geocoder Geocoder, opts Options) *Locator {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaximumAge < 0 {
		opts.MaximumAge = 0
	}
	return &Locator{source: source, geocoder: geocoder, opts: opts, now: time.Now}
}

// OptionsFromConfig converts the location config section.
func OptionsFromConfig(cfg config.LocationConfig) Options {
	return Options{HighAccuracy: cfg.HighAccuracy, Timeout: cfg.Timeout, MaximumAge: cfg.MaximumAge}
}

// Position returns a fix no older than MaximumAge, acquiring a new one
// within Timeout when needed.
func (l *Locator) Position(ctx context.Context) (*Position, error) {
	l.mu.Lock()
	if l.last != nil && l.opts.MaximumAge > 0 && l.now().Sub(l.last.Timestamp) <= l.opts.MaximumAge {
		p := *l.last
		l.mu.Unlock()
		return &p, nil
	}
	l.mu.Unlock()

	pos, err := l.acquire(ctx)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.last = pos
	l.mu.Unlock()
	cp := *pos
	return &cp, nil
}

// acquire asks the source for a fresh fix.
func (l *Locator) acquire(ctx context.Context) (*Position, error) {
	actx, cancel := context.WithTimeout(ctx, l.opts.Timeout)
	defer cancel()

	pos, err := l.source.CurrentPosition(actx, l.opts)
	if err != nil {
		return nil, classify(err)
	}
	if pos.Timestamp.IsZero() {
		pos.Timestamp = l.now()
	}
	return pos, nil
}

// GetCurrentLocation returns the position labelled by the reverse
// geocoding chain, or by its coordinates when every provider fails.
func (l *Locator) GetCurrentLocation(ctx context.Context) (*models.Location, error) {
	pos, err := l.Position(ctx)
	if err != nil {
		return nil, err
	}
	return l.label(ctx, pos), nil
}

// GetCurrentLocationDetailed labels the position with locality, city,
// region and country from the primary detailed provider. Any provider
// failure falls back to GetCurrentLocation.
func (l *Locator) GetCurrentLocationDetailed(ctx context.Context) (*models.Location, error) {
	pos, err := l.Position(ctx)
	if err != nil {
		return nil, err
	}

	addr, err := l.geocoder.ReverseDetailed(ctx, pos.Coordinate)
	if err != nil || addr.Label() == "" {
		logging.Ctx(ctx).Debug().Err(err).Msg("Detailed reverse geocoding failed, using the standard chain")
		return l.GetCurrentLocation(ctx)
	}
	return &models.Location{
		Coordinate: pos.Coordinate,
		Label:      addr.Label(),
		Accuracy:   pos.Accuracy,
		Timestamp:  pos.Timestamp,
		Source:     pos.Source,
	}, nil
}

func (l *Locator) label(ctx context.Context, pos *Position) *models.Location {
	return &models.Location{
		Coordinate: pos.Coordinate,
		Label:      l.geocoder.Label(ctx, pos.Coordinate),
		Accuracy:   pos.Accuracy,
		Timestamp:  pos.Timestamp,
		Source:     pos.Source,
	}
}
