// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

// Package location acquires the device position, labels it through the
// reverse geocoding chain and runs live tracking.
//
// Every acquisition failure surfaces as one of three human-readable
// errors: ErrPermissionDenied, ErrPositionUnavailable or ErrTimeout.
// Geocoding failures never block returning coordinates.
package location

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/waymark/internal/config"
	"github.com/tomtom215/waymark/internal/models"
)

var (
	ErrPermissionDenied    = errors.New("location access was denied")
	ErrPositionUnavailable = errors.New("location information is unavailable")
	ErrTimeout             = errors.New("the request to get your location timed out")
)

// Options mirrors the one-shot position request options.
type Options struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaximumAge   time.Duration
}

// DefaultOptions are high accuracy, a 10s timeout and a 5-minute cache.
func DefaultOptions() Options {
	return Options{HighAccuracy: true, Timeout: 10 * time.Second, MaximumAge: 5 * time.Minute}
}

// Position is a raw fix.
type Position struct {
	models.Coordinate
	Accuracy  float64
	Timestamp time.Time
	Source    string
}

// PositionSource produces device positions.
type PositionSource interface {
	Name() string
	CurrentPosition(ctx context.Context, opts Options) (*Position, error)
}

// StaticSource always reports a configured coordinate.
type StaticSource struct {
	coord models.Coordinate
	now   func() time.Time
}

// NewStaticSource returns a source fixed at c.
func NewStaticSource(c models.Coordinate) *StaticSource {
	return &StaticSource{coord: c, now: time.Now}
}

func (s *StaticSource) Name() string { return "static" }

// CurrentPosition implements PositionSource.
func (s *StaticSource) CurrentPosition(ctx context.Context, _ Options) (*Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify(err)
	}
	return &Position{Coordinate: s.coord, Accuracy: 0, Timestamp: s.now(), Source: s.Name()}, nil
}

// IPSource derives a coarse position from the public IP address.
type IPSource struct {
	url    string
	client *http.Client
}

// NewIPSource queries an ip-api.com compatible endpoint.
func NewIPSource(url string) *IPSource {
	return &IPSource{url: url, client: &http.Client{}}
}

func (s *IPSource) Name() string { return "ip" }

// ipAccuracyMeters is the nominal accuracy of city-level IP lookups.
const ipAccuracyMeters = 5000

type ipResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// CurrentPosition implements PositionSource.
func (s *IPSource) CurrentPosition(ctx context.Context, _ Options) (*Position, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPositionUnavailable, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrPermissionDenied
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: lookup returned status %d", ErrPositionUnavailable, resp.StatusCode)
	}

	var body ipResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPositionUnavailable, err)
	}
	if body.Status != "" && body.Status != "success" {
		return nil, fmt.Errorf("%w: %s", ErrPositionUnavailable, body.Message)
	}
	return &Position{
		Coordinate: models.Coordinate{Lat: body.Lat, Lng: body.Lon},
		Accuracy:   ipAccuracyMeters,
		Timestamp:  time.Now(),
		Source:     s.Name(),
	}, nil
}

// NewSource builds the configured position source.
func NewSource(cfg config.LocationConfig) (PositionSource, error) {
	switch cfg.Source {
	case "static":
		return NewStaticSource(models.Coordinate{Lat: cfg.Latitude, Lng: cfg.Longitude}), nil
	case "ip", "":
		return NewIPSource(cfg.IPLookupURL), nil
	default:
		return nil, fmt.Errorf("unknown location source %q", cfg.Source)
	}
}

// classify maps context and transport errors onto the three public
// failures.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrPositionUnavailable), errors.Is(err, ErrTimeout):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrPositionUnavailable, err)
	}
}
