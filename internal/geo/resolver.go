// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package geo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/waymark/internal/cache"
	"github.com/tomtom215/waymark/internal/config"
	"github.com/tomtom215/waymark/internal/logging"
	"github.com/tomtom215/waymark/internal/metrics"
	"github.com/tomtom215/waymark/internal/models"
)

const resolverCacheSize = 512

// Resolver runs the ranked provider chains and caches results.
type Resolver struct {
	reverse []ReverseGeocoder
	forward []ForwardGeocoder

	places   *cache.LRU[*models.Place]
	searches *cache.LRU[[]models.SearchResult]
}

// NewResolver builds a resolver over the given chains. Order is rank.
func NewResolver(reverse []ReverseGeocoder, forward []ForwardGeocoder, ttl time.Duration) *Resolver {
	return &Resolver{
		reverse:  reverse,
		forward:  forward,
		places:   cache.NewLRU[*models.Place](resolverCacheSize, ttl),
		searches: cache.NewLRU[[]models.SearchResult](resolverCacheSize, ttl),
	}
}

// NewDefaultResolver wires backend -> MapTiler -> Nominatim for reverse
// lookups and MapTiler -> Nominatim for search. backend may be nil.
func NewDefaultResolver(cfg config.GeocodingConfig, backend BackendReverser) *Resolver {
	maptiler := NewMapTilerGeocoder(cfg.MapTilerURL, cfg.MapTilerKey, cfg.Timeout)
	nominatim := NewNominatimGeocoder(cfg.NominatimURL, cfg.UserAgent, cfg.Timeout)

	reverse := make([]ReverseGeocoder, 0, 3)
	if backend != nil {
		reverse = append(reverse, NewBackendGeocoder(backend))
	}
	reverse = append(reverse, maptiler, nominatim)

	return NewResolver(reverse, []ForwardGeocoder{maptiler, nominatim}, cfg.CacheTTL)
}

// coordKey rounds to ~1 m so jitter in repeated fixes still hits.
func coordKey(c models.Coordinate) string {
	return fmt.Sprintf("%.5f,%.5f", c.Lat, c.Lng)
}

// Reverse asks each available provider in order and returns the first
// success. It fails with ErrNoProviders (joined with each provider's
// error) when none succeeds.
func (r *Resolver) Reverse(ctx context.Context, c models.Coordinate) (*models.Place, error) {
	key := coordKey(c)
	if p, ok := r.places.Get(key); ok {
		metrics.GeocoderLookups.WithLabelValues("cache", "cache_hit").Inc()
		cp := *p
		cp.Coordinate = c
		return &cp, nil
	}

	log := logging.Ctx(ctx)
	errs := []error{ErrNoProviders}
	for _, g := range r.reverse {
		if !g.IsAvailable() {
			continue
		}
		p, err := g.Reverse(ctx, c)
		if err == nil && (p == nil || strings.TrimSpace(p.Address) == "") {
			err = errors.New("empty address")
		}
		metrics.RecordGeocoderLookup(g.Name(), err)
		if err != nil {
			log.Debug().Err(err).Str("provider", g.Name()).Msg("Reverse geocoding provider failed, trying next")
			errs = append(errs, fmt.Errorf("%s: %w", g.Name(), err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		r.places.Set(key, p)
		return p, nil
	}
	return nil, errors.Join(errs...)
}

// Label always returns something displayable: the resolved address, or
// the coordinates formatted to six decimals when every provider failed.
func (r *Resolver) Label(ctx context.Context, c models.Coordinate) string {
	p, err := r.Reverse(ctx, c)
	if err != nil {
		metrics.GeocoderLookups.WithLabelValues("coordinates", "fallback").Inc()
		logging.Ctx(ctx).Warn().Err(err).Msg("All reverse geocoders failed, using coordinates")
		return models.FormatCoordinates(c)
	}
	return p.Address
}

// ReverseDetailed asks the highest-ranked available provider that can
// decompose addresses. Lower-ranked providers are not consulted.
func (r *Resolver) ReverseDetailed(ctx context.Context, c models.Coordinate) (*Address, error) {
	for _, g := range r.reverse {
		d, ok := g.(DetailedReverser)
		if !ok || !g.IsAvailable() {
			continue
		}
		addr, err := d.ReverseDetailed(ctx, c)
		metrics.RecordGeocoderLookup(g.Name(), err)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", g.Name(), err)
		}
		return addr, nil
	}
	return nil, ErrNoProviders
}

// Search runs a forward lookup through the ranked forward geocoders. A
// provider that answers with zero candidates counts as a failure so the
// next one gets a chance.
func (r *Resolver) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("search text is empty")
	}

	key := cache.GenerateKey("search", []any{strings.ToLower(query), limit})
	if res, ok := r.searches.Get(key); ok {
		metrics.GeocoderLookups.WithLabelValues("cache", "cache_hit").Inc()
		return append([]models.SearchResult(nil), res...), nil
	}

	log := logging.Ctx(ctx)
	errs := []error{ErrNoProviders}
	for _, g := range r.forward {
		if !g.IsAvailable() {
			continue
		}
		res, err := g.Search(ctx, query, limit)
		if err == nil && len(res) == 0 {
			err = errors.New("no results")
		}
		metrics.RecordGeocoderLookup(g.Name(), err)
		if err != nil {
			log.Debug().Err(err).Str("provider", g.Name()).Str("query", query).Msg("Search provider failed, trying next")
			errs = append(errs, fmt.Errorf("%s: %w", g.Name(), err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if limit > 0 && len(res) > limit {
			res = res[:limit]
		}
		r.searches.Set(key, res)
		return append([]models.SearchResult(nil), res...), nil
	}
	return nil, errors.Join(errs...)
}
