// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

// Package config loads Waymark configuration.
//
// Values are layered with koanf: struct defaults first, then an optional
// YAML file, then environment variables (highest priority). Environment
// names are mapped explicitly so unrelated variables never leak in:
//
//	WAYMARK_BACKEND_URL=https://api.example.com
//	WAYMARK_STORAGE_TYPE=memory
//	MAPTILER_KEY=...
package config

import "time"

// Config is the root configuration.
type Config struct {
	Backend   BackendConfig   `koanf:"backend"`
	Geocoding GeocodingConfig `koanf:"geocoding"`
	Routing   RoutingConfig   `koanf:"routing"`
	Storage   StorageConfig   `koanf:"storage"`
	Session   SessionConfig   `koanf:"session"`
	Routes    RoutesConfig    `koanf:"routes"`
	Location  LocationConfig  `koanf:"location"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// BackendConfig describes the auth/OTP/route backend. The hosted backend
// runs on a free tier that sleeps when idle, so the first request after a
// pause gets the longer cold start budget.
type BackendConfig struct {
	URL              string        `koanf:"url"`
	Timeout          time.Duration `koanf:"timeout"`
	ColdStartTimeout time.Duration `koanf:"cold_start_timeout"`
	RetryAttempts    int           `koanf:"retry_attempts"`
	RetryDelay       time.Duration `koanf:"retry_delay"`

	// BreakerFailures consecutive failures open the circuit breaker.
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
}

// GeocodingConfig configures the reverse/forward geocoder chain.
type GeocodingConfig struct {
	MapTilerKey  string        `koanf:"maptiler_key"`
	MapTilerURL  string        `koanf:"maptiler_url"`
	NominatimURL string        `koanf:"nominatim_url"`
	UserAgent    string        `koanf:"user_agent"`
	CacheTTL     time.Duration `koanf:"cache_ttl"`
	SearchLimit  int           `koanf:"search_limit"`
	Timeout      time.Duration `koanf:"timeout"`
}

// RoutingConfig configures the fallback routing service.
type RoutingConfig struct {
	OSRMURL string        `koanf:"osrm_url"`
	Profile string        `koanf:"profile"`
	Timeout time.Duration `koanf:"timeout"`
}

// StorageConfig selects the persisted key-value store.
type StorageConfig struct {
	// Type is "badger" or "memory".
	Type string `koanf:"type"`
	Path string `koanf:"path"`

	// EncryptionKey enables at-rest encryption of the access token.
	EncryptionKey string `koanf:"encryption_key"`
}

// SessionConfig tunes the session manager.
type SessionConfig struct {
	RefreshInterval   time.Duration `koanf:"refresh_interval"`
	OTPResendCooldown time.Duration `koanf:"otp_resend_cooldown"`
	AllowQuickLogin   bool          `koanf:"allow_quick_login"`
	ValidateTimeout   time.Duration `koanf:"validate_timeout"`
}

// RoutesConfig tunes the route cache.
type RoutesConfig struct {
	MaxRoutes int `koanf:"max_routes"`
	PageSize  int `koanf:"page_size"`
}

// LocationConfig selects where device positions come from.
type LocationConfig struct {
	// Source is "static" or "ip".
	Source        string        `koanf:"source"`
	Latitude      float64       `koanf:"latitude"`
	Longitude     float64       `koanf:"longitude"`
	IPLookupURL   string        `koanf:"ip_lookup_url"`
	Timeout       time.Duration `koanf:"timeout"`
	MaximumAge    time.Duration `koanf:"maximum_age"`
	HighAccuracy  bool          `koanf:"high_accuracy"`
	WatchInterval time.Duration `koanf:"watch_interval"`
}

// ServerConfig configures the local live-map bridge.
type ServerConfig struct {
	Host           string   `koanf:"host"`
	Port           int      `koanf:"port"`
	AllowedOrigins []string `koanf:"allowed_origins"`
	RateLimit      int      `koanf:"rate_limit"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

func defaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:              "http://localhost:5000",
			Timeout:          60 * time.Second,
			ColdStartTimeout: 90 * time.Second,
			RetryAttempts:    3,
			RetryDelay:       2 * time.Second,
			BreakerFailures:  5,
			BreakerTimeout:   30 * time.Second,
		},
		Geocoding: GeocodingConfig{
			MapTilerURL:  "https://api.maptiler.com",
			NominatimURL: "https://nominatim.openstreetmap.org",
			UserAgent:    "waymark/1.0",
			CacheTTL:     10 * time.Minute,
			SearchLimit:  5,
			Timeout:      10 * time.Second,
		},
		Routing: RoutingConfig{
			OSRMURL: "https://router.project-osrm.org",
			Profile: "driving",
			Timeout: 15 * time.Second,
		},
		Storage: StorageConfig{
			Type: "badger",
			Path: defaultDataPath(),
		},
		Session: SessionConfig{
			RefreshInterval:   20 * time.Minute,
			OTPResendCooldown: 60 * time.Second,
			AllowQuickLogin:   false,
			ValidateTimeout:   15 * time.Second,
		},
		Routes: RoutesConfig{
			MaxRoutes: 50,
			PageSize:  50,
		},
		Location: LocationConfig{
			Source:        "ip",
			IPLookupURL:   "http://ip-api.com/json/",
			Timeout:       10 * time.Second,
			MaximumAge:    5 * time.Minute,
			HighAccuracy:  true,
			WatchInterval: 5 * time.Second,
		},
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8787,
			AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
			RateLimit:      120,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
