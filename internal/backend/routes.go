// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package backend

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/waymark/internal/models"
)

// flexID accepts both JSON numbers and strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id is neither number nor string: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

// remoteRoute is the backend's route record.
type remoteRoute struct {
	ID            flexID       `json:"id,omitempty"`
	StartLat      float64      `json:"startLat"`
	StartLng      float64      `json:"startLng"`
	StartAddress  string       `json:"startAddress"`
	EndLat        float64      `json:"endLat"`
	EndLng        float64      `json:"endLng"`
	EndAddress    string       `json:"endAddress"`
	Distance      float64      `json:"distance"`
	Duration      float64      `json:"duration"`
	Geometry      [][2]float64 `json:"geometry,omitempty"`
	CreatedAt     *time.Time   `json:"createdAt,omitempty"`
	IsFavorite    bool         `json:"isFavorite"`
	RouteType     string       `json:"routeType,omitempty"`
	TransportMode string       `json:"transportMode,omitempty"`
}

func (r *remoteRoute) toModel() *models.Route {
	out := &models.Route{
		ID: string(r.ID),
		Origin: models.Place{
			Coordinate: models.Coordinate{Lat: r.StartLat, Lng: r.StartLng},
			Address:    r.StartAddress,
		},
		Destination: models.Place{
			Coordinate: models.Coordinate{Lat: r.EndLat, Lng: r.EndLng},
			Address:    r.EndAddress,
		},
		DistanceMeters:  r.Distance,
		DurationSeconds: r.Duration,
		Favorite:        r.IsFavorite,
		RouteKind:       r.RouteType,
		TransportKind:   r.TransportMode,
	}
	if r.CreatedAt != nil {
		out.CreatedAt = *r.CreatedAt
	}
	if len(r.Geometry) > 0 {
		out.Polyline = make([]models.Coordinate, len(r.Geometry))
		for i, p := range r.Geometry {
			out.Polyline[i] = models.Coordinate{Lat: p[0], Lng: p[1]}
		}
	}
	return out
}

func fromModel(r *models.Route) remoteRoute {
	rr := remoteRoute{
		StartLat:      r.Origin.Lat,
		StartLng:      r.Origin.Lng,
		StartAddress:  r.Origin.Address,
		EndLat:        r.Destination.Lat,
		EndLng:        r.Destination.Lng,
		EndAddress:    r.Destination.Address,
		Distance:      r.DistanceMeters,
		Duration:      r.DurationSeconds,
		IsFavorite:    r.Favorite,
		RouteType:     r.RouteKind,
		TransportMode: r.TransportKind,
	}
	if !r.CreatedAt.IsZero() {
		t := r.CreatedAt
		rr.CreatedAt = &t
	}
	if len(r.Polyline) > 0 {
		rr.Geometry = make([][2]float64, len(r.Polyline))
		for i, c := range r.Polyline {
			rr.Geometry[i] = [2]float64{c.Lat, c.Lng}
		}
	}
	return rr
}

// routeEnvelope accepts {"route": {...}} or a bare route object.
type routeEnvelope struct {
	remoteRoute
	Route *remoteRoute `json:"route"`
}

func (e *routeEnvelope) get() *remoteRoute {
	if e.Route != nil {
		return e.Route
	}
	return &e.remoteRoute
}

// RouteRequest asks the backend to compute a route.
type RouteRequest struct {
	Origin        models.Place
	Destination   models.Place
	TransportMode string
}

type calculateRequest struct {
	StartLat      float64 `json:"startLat"`
	StartLng      float64 `json:"startLng"`
	StartAddress  string  `json:"startAddress,omitempty"`
	EndLat        float64 `json:"endLat"`
	EndLng        float64 `json:"endLng"`
	EndAddress    string  `json:"endAddress,omitempty"`
	TransportMode string  `json:"transportMode,omitempty"`
}

// CalculateRoute asks the backend for route geometry. The returned route
// has no id.
func (c *Client) CalculateRoute(ctx context.Context, req RouteRequest) (*models.Route, error) {
	var resp routeEnvelope
	err := c.do(ctx, call{
		endpoint: "routes.calculate",
		method:   http.MethodPost,
		path:     "/api/routes/calculate",
		auth:     true,
		body: calculateRequest{
			StartLat:      req.Origin.Lat,
			StartLng:      req.Origin.Lng,
			StartAddress:  req.Origin.Address,
			EndLat:        req.Destination.Lat,
			EndLng:        req.Destination.Lng,
			EndAddress:    req.Destination.Address,
			TransportMode: req.TransportMode,
		},
	}, &resp)
	if err != nil {
		return nil, err
	}
	r := resp.get().toModel()
	r.ID = ""
	if r.Origin.Address == "" {
		r.Origin.Address = req.Origin.Address
	}
	if r.Destination.Address == "" {
		r.Destination.Address = req.Destination.Address
	}
	if r.Origin.Coordinate == (models.Coordinate{}) {
		r.Origin.Coordinate = req.Origin.Coordinate
		r.Destination.Coordinate = req.Destination.Coordinate
	}
	return r, nil
}

// SaveRoute stores r for the signed-in user and returns the
// server-confirmed record.
func (c *Client) SaveRoute(ctx context.Context, r *models.Route) (*models.Route, error) {
	var resp routeEnvelope
	err := c.do(ctx, call{
		endpoint: "routes.save",
		method:   http.MethodPost,
		path:     "/api/routes",
		auth:     true,
		body:     fromModel(r),
	}, &resp)
	if err != nil {
		return nil, err
	}
	saved := resp.get().toModel()
	if !models.IsServerID(saved.ID) {
		return nil, fmt.Errorf("backend returned route without a numeric id (%q)", saved.ID)
	}
	if len(saved.Polyline) == 0 {
		saved.Polyline = r.Polyline
	}
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = r.CreatedAt
	}
	return saved, nil
}

// ListRoutes fetches one page of the signed-in user's routes.
func (c *Client) ListRoutes(ctx context.Context, page, limit int) ([]*models.Route, error) {
	var raw json.RawMessage
	err := c.do(ctx, call{
		endpoint: "routes.list",
		method:   http.MethodGet,
		path:     "/api/routes",
		query:    url.Values{"page": {strconv.Itoa(page)}, "limit": {strconv.Itoa(limit)}},
		auth:     true,
	}, &raw)
	if err != nil {
		return nil, err
	}

	var items []remoteRoute
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &items)
	} else {
		var envelope struct {
			Routes []remoteRoute `json:"routes"`
			Data   []remoteRoute `json:"data"`
		}
		err = json.Unmarshal(trimmed, &envelope)
		items = envelope.Routes
		if items == nil {
			items = envelope.Data
		}
	}
	if err != nil {
		return nil, fmt.Errorf("decode routes.list response: %w", err)
	}

	out := make([]*models.Route, 0, len(items))
	for i := range items {
		out = append(out, items[i].toModel())
	}
	return out, nil
}

// ToggleFavorite flips the favorite flag server-side and returns the
// authoritative new value.
func (c *Client) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	var resp struct {
		IsFavorite *bool        `json:"isFavorite"`
		Route      *remoteRoute `json:"route"`
	}
	err := c.do(ctx, call{
		endpoint: "routes.favorite",
		method:   http.MethodPatch,
		path:     "/api/routes/" + url.PathEscape(id) + "/favorite",
		auth:     true,
	}, &resp)
	if err != nil {
		return false, err
	}
	switch {
	case resp.IsFavorite != nil:
		return *resp.IsFavorite, nil
	case resp.Route != nil:
		return resp.Route.IsFavorite, nil
	default:
		return false, fmt.Errorf("favorite response carried no value")
	}
}

// DeleteRoute removes a route server-side.
func (c *Client) DeleteRoute(ctx context.Context, id string) error {
	return c.do(ctx, call{
		endpoint: "routes.delete",
		method:   http.MethodDelete,
		path:     "/api/routes/" + url.PathEscape(id),
		auth:     true,
	}, nil)
}

// ReverseGeocode resolves a coordinate through the backend geocoder.
func (c *Client) ReverseGeocode(ctx context.Context, coord models.Coordinate) (string, error) {
	var resp struct {
		Address     string `json:"address"`
		DisplayName string `json:"display_name"`
	}
	err := c.do(ctx, call{
		endpoint: "geocode.reverse",
		method:   http.MethodGet,
		path:     "/api/geocode/reverse",
		query: url.Values{
			"lat": {strconv.FormatFloat(coord.Lat, 'f', -1, 64)},
			"lng": {strconv.FormatFloat(coord.Lng, 'f', -1, 64)},
		},
	}, &resp)
	if err != nil {
		return "", err
	}
	label := strings.TrimSpace(resp.Address)
	if label == "" {
		label = strings.TrimSpace(resp.DisplayName)
	}
	if label == "" {
		return "", fmt.Errorf("backend geocoder returned no address")
	}
	return label, nil
}
