// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

// Package routing computes route geometry through a ranked chain of
// providers: the route backend first, then the public OSRM service, and
// finally a straight-line estimate when allowed.
package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/waymark/internal/config"
	"github.com/tomtom215/waymark/internal/logging"
	"github.com/tomtom215/waymark/internal/metrics"
	"github.com/tomtom215/waymark/internal/models"
)

// Route kinds recorded on computed routes.
const (
	KindBackend      = "backend"
	KindOSRM         = "osrm"
	KindStraightLine = "straight_line"
)

// Transport modes.
const (
	ModeDriving = "driving"
	ModeWalking = "walking"
	ModeCycling = "cycling"
)

// ErrNoRoute is returned when every provider failed.
var ErrNoRoute = errors.New("no route could be calculated")

// Options tune a route request.
type Options struct {
	// TransportMode is driving, walking or cycling. Empty means driving.
	TransportMode string
}

func (o Options) mode() string {
	switch m := strings.ToLower(strings.TrimSpace(o.TransportMode)); m {
	case ModeWalking, ModeCycling:
		return m
	default:
		return ModeDriving
	}
}

// Provider computes a route between two places. The returned route has
// no id.
type Provider interface {
	Name() string
	Route(ctx context.Context, origin, destination models.Place, opts Options) (*models.Route, error)
}

// Planner asks each provider in rank order and returns the first route.
type Planner struct {
	providers []Provider
}

// NewPlanner builds a planner. Order is rank.
func NewPlanner(providers ...Provider) *Planner {
	return &Planner{providers: providers}
}

// NewDefaultPlanner wires backend -> OSRM. The straight-line estimate
// is appended when straightLine is set. backend may be nil.
func NewDefaultPlanner(cfg config.RoutingConfig, backend Calculator, straightLine bool) *Planner {
	providers := make([]Provider, 0, 3)
	if backend != nil {
		providers = append(providers, NewBackendProvider(backend))
	}
	if cfg.OSRMURL != "" {
		providers = append(providers, NewOSRMProvider(cfg.OSRMURL, cfg.Profile, cfg.Timeout))
	}
	if straightLine {
		providers = append(providers, StraightLineProvider{})
	}
	return NewPlanner(providers...)
}

// Plan returns the first provider's route. Failures are logged and the
// next provider tried; ErrNoRoute joined with every failure is returned
// when none succeeds.
func (p *Planner) Plan(ctx context.Context, origin, destination models.Place, opts Options) (*models.Route, error) {
	log := logging.Ctx(ctx)
	errs := []error{ErrNoRoute}
	for _, prov := range p.providers {
		r, err := prov.Route(ctx, origin, destination, opts)
		if err == nil && r == nil {
			err = errors.New("empty route")
		}
		if err != nil {
			metrics.RecordRouteOperation("calculate", prov.Name()+"_failed")
			log.Warn().Err(err).Str("provider", prov.Name()).Msg("Route provider failed, trying next")
			errs = append(errs, fmt.Errorf("%s: %w", prov.Name(), err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		metrics.RecordRouteOperation("calculate", prov.Name())
		if r.TransportKind == "" {
			r.TransportKind = opts.mode()
		}
		if r.Origin.Address == "" {
			r.Origin.Address = origin.Address
		}
		if r.Destination.Address == "" {
			r.Destination.Address = destination.Address
		}
		return r, nil
	}
	return nil, errors.Join(errs...)
}

// Providers returns the provider names in rank order.
func (p *Planner) Providers() []string {
	names := make([]string, len(p.providers))
	for i, prov := range p.providers {
		names[i] = prov.Name()
	}
	return names
}
