// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file search.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order; the first existing file wins.
var DefaultConfigPaths = []string{
	"waymark.yaml",
	"waymark.yml",
}

// Load builds the configuration from defaults, the YAML file at path (or
// the first file found by the default search when path is empty) and the
// environment, then validates it.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	paths := DefaultConfigPaths
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths[:len(paths):len(paths)], filepath.Join(dir, "waymark", "config.yaml"))
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func defaultDataPath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "waymark", "store")
	}
	return filepath.Join(os.TempDir(), "waymark-store")
}

var sliceConfigPaths = []string{
	"server.allowed_origins",
}

// processSliceFields splits comma-separated env values into slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lower-cased) to koanf paths.
var envMappings = map[string]string{
	"waymark_backend_url":             "backend.url",
	"waymark_backend_timeout":         "backend.timeout",
	"waymark_backend_cold_start":      "backend.cold_start_timeout",
	"waymark_backend_retry_attempts":  "backend.retry_attempts",
	"waymark_backend_retry_delay":     "backend.retry_delay",
	"maptiler_key":                    "geocoding.maptiler_key",
	"waymark_maptiler_url":            "geocoding.maptiler_url",
	"waymark_nominatim_url":           "geocoding.nominatim_url",
	"waymark_user_agent":              "geocoding.user_agent",
	"waymark_geocode_cache_ttl":       "geocoding.cache_ttl",
	"waymark_osrm_url":                "routing.osrm_url",
	"waymark_routing_profile":         "routing.profile",
	"waymark_storage_type":            "storage.type",
	"waymark_storage_path":            "storage.path",
	"waymark_encryption_key":          "storage.encryption_key",
	"waymark_refresh_interval":        "session.refresh_interval",
	"waymark_otp_resend_cooldown":     "session.otp_resend_cooldown",
	"waymark_allow_quick_login":       "session.allow_quick_login",
	"waymark_max_routes":              "routes.max_routes",
	"waymark_location_source":         "location.source",
	"waymark_latitude":                "location.latitude",
	"waymark_longitude":               "location.longitude",
	"waymark_location_watch_interval": "location.watch_interval",
	"waymark_http_host":               "server.host",
	"waymark_http_port":               "server.port",
	"waymark_allowed_origins":         "server.allowed_origins",
	"log_level":                       "logging.level",
	"log_format":                      "logging.format",
	"log_caller":                      "logging.caller",
}

// envTransformFunc returns "" for unmapped names so they are skipped.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
