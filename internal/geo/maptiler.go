// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package geo

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/waymark/internal/models"
)

// MapTilerGeocoder is the primary third-party provider. It needs an API
// key.
type MapTilerGeocoder struct {
	baseURL string
	key     string
	client  *http.Client
}

// NewMapTilerGeocoder creates a MapTiler client. An empty key makes the
// provider unavailable.
func NewMapTilerGeocoder(baseURL, key string, timeout time.Duration) *MapTilerGeocoder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MapTilerGeocoder{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		client:  &http.Client{Timeout: timeout},
	}
}

func (g *MapTilerGeocoder) Name() string { return "maptiler" }

func (g *MapTilerGeocoder) IsAvailable() bool { return g.key != "" }

type maptilerContext struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type maptilerFeature struct {
	PlaceName string            `json:"place_name"`
	Text      string            `json:"text"`
	PlaceType []string          `json:"place_type"`
	Center    []float64         `json:"center"`
	Context   []maptilerContext `json:"context"`
}

type maptilerResponse struct {
	Features []maptilerFeature `json:"features"`
}

func (g *MapTilerGeocoder) reverse(ctx context.Context, c models.Coordinate) (*maptilerFeature, error) {
	u := g.baseURL + "/geocoding/" +
		strconv.FormatFloat(c.Lng, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lat, 'f', -1, 64) +
		".json?" + url.Values{"key": {g.key}}.Encode()

	var resp maptilerResponse
	if err := getJSON(ctx, g.client, u, "", &resp); err != nil {
		return nil, err
	}
	if len(resp.Features) == 0 {
		return nil, errors.New("maptiler returned no features")
	}
	return &resp.Features[0], nil
}

// Reverse implements ReverseGeocoder.
func (g *MapTilerGeocoder) Reverse(ctx context.Context, c models.Coordinate) (*models.Place, error) {
	f, err := g.reverse(ctx, c)
	if err != nil {
		return nil, err
	}
	label := f.PlaceName
	if label == "" {
		label = f.Text
	}
	if label == "" {
		return nil, errors.New("maptiler feature has no name")
	}
	return &models.Place{Coordinate: c, Address: label}, nil
}

// ReverseDetailed implements DetailedReverser from the top feature and
// its context hierarchy.
func (g *MapTilerGeocoder) ReverseDetailed(ctx context.Context, c models.Coordinate) (*Address, error) {
	f, err := g.reverse(ctx, c)
	if err != nil {
		return nil, err
	}

	addr := &Address{}
	assign := func(kind, text string) {
		switch kind {
		case "neighbourhood", "locality", "municipal_district", "postal_code":
			if addr.Locality == "" {
				addr.Locality = text
			}
		case "municipality", "place", "city":
			if addr.City == "" {
				addr.City = text
			}
		case "region", "subregion", "county":
			if addr.Region == "" {
				addr.Region = text
			}
		case "country":
			if addr.Country == "" {
				addr.Country = text
			}
		}
	}
	for _, kind := range f.PlaceType {
		assign(kind, f.Text)
	}
	for _, cx := range f.Context {
		kind, _, _ := strings.Cut(cx.ID, ".")
		assign(kind, cx.Text)
	}

	if addr.Label() == "" {
		return nil, errors.New("maptiler returned no address components")
	}
	return addr, nil
}

// Search implements ForwardGeocoder.
func (g *MapTilerGeocoder) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	q := url.Values{"key": {g.key}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	u := g.baseURL + "/geocoding/" + url.PathEscape(query) + ".json?" + q.Encode()

	var resp maptilerResponse
	if err := getJSON(ctx, g.client, u, "", &resp); err != nil {
		return nil, err
	}

	out := make([]models.SearchResult, 0, len(resp.Features))
	for _, f := range resp.Features {
		if len(f.Center) < 2 {
			continue
		}
		name := f.PlaceName
		if name == "" {
			name = f.Text
		}
		out = append(out, models.SearchResult{Name: name, Lat: f.Center[1], Lon: f.Center[0], Provider: g.Name()})
	}
	return out, nil
}
