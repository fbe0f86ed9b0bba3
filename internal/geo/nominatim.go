// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package geo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/waymark/internal/models"
)

// NominatimGeocoder is the public OpenStreetMap fallback. Its usage
// policy allows one request per second and requires a User-Agent.
type NominatimGeocoder struct {
	baseURL   string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
}

// NewNominatimGeocoder creates a Nominatim client limited to 1 req/s.
func NewNominatimGeocoder(baseURL, userAgent string, timeout time.Duration) *NominatimGeocoder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if userAgent == "" {
		userAgent = "waymark/1.0"
	}
	return &NominatimGeocoder{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (g *NominatimGeocoder) Name() string { return "nominatim" }

func (g *NominatimGeocoder) IsAvailable() bool { return g.baseURL != "" }

type nominatimAddress struct {
	Suburb        string `json:"suburb"`
	Neighbourhood string `json:"neighbourhood"`
	Village       string `json:"village"`
	Town          string `json:"town"`
	City          string `json:"city"`
	State         string `json:"state"`
	Country       string `json:"country"`
}

type nominatimPlace struct {
	DisplayName string            `json:"display_name"`
	Lat         string            `json:"lat"`
	Lon         string            `json:"lon"`
	Address     *nominatimAddress `json:"address"`
	Error       string            `json:"error"`
}

func (g *NominatimGeocoder) get(ctx context.Context, path string, q url.Values, out any) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("nominatim rate limit: %w", err)
	}
	q.Set("format", "jsonv2")
	return getJSON(ctx, g.client, g.baseURL+path+"?"+q.Encode(), g.userAgent, out)
}

func coordQuery(c models.Coordinate) url.Values {
	return url.Values{
		"lat": {strconv.FormatFloat(c.Lat, 'f', -1, 64)},
		"lon": {strconv.FormatFloat(c.Lng, 'f', -1, 64)},
	}
}

// Reverse implements ReverseGeocoder.
func (g *NominatimGeocoder) Reverse(ctx context.Context, c models.Coordinate) (*models.Place, error) {
	var p nominatimPlace
	if err := g.get(ctx, "/reverse", coordQuery(c), &p); err != nil {
		return nil, err
	}
	if p.Error != "" {
		return nil, errors.New(p.Error)
	}
	if p.DisplayName == "" {
		return nil, errors.New("nominatim returned no display name")
	}
	return &models.Place{Coordinate: c, Address: p.DisplayName}, nil
}

// ReverseDetailed implements DetailedReverser.
func (g *NominatimGeocoder) ReverseDetailed(ctx context.Context, c models.Coordinate) (*Address, error) {
	q := coordQuery(c)
	q.Set("addressdetails", "1")

	var p nominatimPlace
	if err := g.get(ctx, "/reverse", q, &p); err != nil {
		return nil, err
	}
	if p.Address == nil {
		return nil, errors.New("nominatim returned no address")
	}
	a := p.Address
	addr := &Address{
		Locality: firstNonEmpty(a.Neighbourhood, a.Suburb),
		City:     firstNonEmpty(a.City, a.Town, a.Village),
		Region:   a.State,
		Country:  a.Country,
	}
	if addr.Label() == "" {
		return nil, errors.New("nominatim returned no address components")
	}
	return addr, nil
}

// Search implements ForwardGeocoder.
func (g *NominatimGeocoder) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	q := url.Values{"q": {query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var places []nominatimPlace
	if err := g.get(ctx, "/search", q, &places); err != nil {
		return nil, err
	}

	out := make([]models.SearchResult, 0, len(places))
	for _, p := range places {
		lat, errLat := strconv.ParseFloat(p.Lat, 64)
		lon, errLon := strconv.ParseFloat(p.Lon, 64)
		if errLat != nil || errLon != nil {
			continue
		}
		out = append(out, models.SearchResult{Name: p.DisplayName, Lat: lat, Lon: lon, Provider: g.Name()})
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
