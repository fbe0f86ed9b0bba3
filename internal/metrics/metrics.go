// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

// Package metrics declares Waymark's Prometheus instrumentation. The
// collectors register with the default registry and are exposed on the
// live-map bridge at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Backend client
	BackendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waymark_backend_requests_total",
			Help: "Requests sent to the route backend",
		},
		[]string{"endpoint", "outcome"}, // outcome: success, client_error, server_error, network_error, rejected
	)

	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "waymark_backend_request_duration_seconds",
			Help:    "Latency of route backend requests including retries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 90},
		},
		[]string{"endpoint"},
	)

	// Circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "waymark_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waymark_circuit_breaker_state_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Geocoding
	GeocoderLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waymark_geocoder_lookups_total",
			Help: "Geocoder provider calls",
		},
		[]string{"provider", "result"}, // result: success, failure, cache_hit, fallback
	)

	// Route cache
	RouteOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waymark_route_operations_total",
			Help: "Route cache operations by the path they took",
		},
		[]string{"operation", "path"}, // path: remote, local, duplicate, fallback
	)

	RoutesCached = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "waymark_routes_cached",
			Help: "Routes held in the active scope list",
		},
		[]string{"scope"},
	)

	// Session
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waymark_token_refresh_total",
			Help: "Token refresh attempts",
		},
		[]string{"result"},
	)

	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waymark_session_transitions_total",
			Help: "Session state changes",
		},
		[]string{"state"},
	)

	// Location
	LocationUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waymark_location_updates_total",
			Help: "Live tracking position updates published",
		},
	)

	// Live-map bridge
	BridgeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waymark_bridge_requests_total",
			Help: "HTTP requests served by the live-map bridge",
		},
		[]string{"method", "route", "status"},
	)

	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "waymark_websocket_connections",
			Help: "Open live-map websocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waymark_websocket_messages_sent_total",
			Help: "Messages broadcast to websocket clients",
		},
	)
)

// RecordBackendRequest records one logical backend call.
func RecordBackendRequest(endpoint, outcome string, duration time.Duration) {
	BackendRequests.WithLabelValues(endpoint, outcome).Inc()
	BackendRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordGeocoderLookup records one provider call.
func RecordGeocoderLookup(provider string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	GeocoderLookups.WithLabelValues(provider, result).Inc()
}

// RecordRouteOperation records which path a route cache operation took.
func RecordRouteOperation(operation, path string) {
	RouteOperations.WithLabelValues(operation, path).Inc()
}

// RecordTokenRefresh records a refresh outcome.
func RecordTokenRefresh(err error) {
	if err != nil {
		TokenRefreshes.WithLabelValues("failure").Inc()
		return
	}
	TokenRefreshes.WithLabelValues("success").Inc()
}
