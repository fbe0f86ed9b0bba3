// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package routing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/waymark/internal/models"
)

const maxOSRMResponse = 4 << 20

// OSRMProvider queries an OSRM route service. The public demo server
// asks for at most one request per second.
type OSRMProvider struct {
	baseURL string
	profile string
	client  *http.Client
	limiter *rate.Limiter
}

// NewOSRMProvider creates an OSRM client. profile defaults to driving
// and is overridden per request by a walking or cycling transport mode.
func NewOSRMProvider(baseURL, profile string, timeout time.Duration) *OSRMProvider {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if profile == "" {
		profile = ModeDriving
	}
	return &OSRMProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		profile: profile,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (p *OSRMProvider) Name() string { return KindOSRM }

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

func (p *OSRMProvider) profileFor(opts Options) string {
	switch opts.mode() {
	case ModeWalking:
		return "foot"
	case ModeCycling:
		return "bike"
	default:
		return p.profile
	}
}

func formatLngLat(c models.Coordinate) string {
	return strconv.FormatFloat(c.Lng, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lat, 'f', -1, 64)
}

// Route implements Provider.
func (p *OSRMProvider) Route(ctx context.Context, origin, destination models.Place, opts Options) (*models.Route, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("osrm rate limit: %w", err)
	}

	u := fmt.Sprintf("%s/route/v1/%s/%s;%s?%s",
		p.baseURL,
		url.PathEscape(p.profileFor(opts)),
		formatLngLat(origin.Coordinate),
		formatLngLat(destination.Coordinate),
		url.Values{"overview": {"full"}, "geometries": {"geojson"}}.Encode(),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body osrmResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxOSRMResponse)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode osrm response (status %d): %w", resp.StatusCode, err)
	}
	if body.Code != "Ok" || len(body.Routes) == 0 {
		msg := body.Message
		if msg == "" {
			msg = "no route found"
		}
		return nil, fmt.Errorf("osrm %s: %s", body.Code, msg)
	}

	best := body.Routes[0]
	polyline := make([]models.Coordinate, len(best.Geometry.Coordinates))
	for i, pt := range best.Geometry.Coordinates {
		polyline[i] = models.Coordinate{Lat: pt[1], Lng: pt[0]}
	}
	return &models.Route{
		Origin:          origin,
		Destination:     destination,
		DistanceMeters:  best.Distance,
		DurationSeconds: best.Duration,
		Polyline:        polyline,
		CreatedAt:       time.Now().UTC(),
		RouteKind:       KindOSRM,
		TransportKind:   opts.mode(),
	}, nil
}
