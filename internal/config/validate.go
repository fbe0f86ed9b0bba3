// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// MinEncryptionKeyLength is the shortest accepted storage.encryption_key.
const MinEncryptionKeyLength = 16

// Validate checks the configuration for values the rest of the program
// cannot work with.
func (c *Config) Validate() error {
	checks := []func() error{
		c.validateBackend,
		c.validateStorage,
		c.validateSession,
		c.validateRoutes,
		c.validateLocation,
		c.validateServer,
		c.validateLogging,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateBackend() error {
	if err := validateHTTPURL("backend.url", c.Backend.URL); err != nil {
		return err
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive, got %v", c.Backend.Timeout)
	}
	if c.Backend.ColdStartTimeout < c.Backend.Timeout {
		return fmt.Errorf("backend.cold_start_timeout (%v) must not be shorter than backend.timeout (%v)",
			c.Backend.ColdStartTimeout, c.Backend.Timeout)
	}
	if c.Backend.RetryAttempts < 1 || c.Backend.RetryAttempts > 10 {
		return fmt.Errorf("backend.retry_attempts must be between 1 and 10, got %d", c.Backend.RetryAttempts)
	}
	if c.Backend.RetryDelay < 0 {
		return fmt.Errorf("backend.retry_delay must not be negative")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Type {
	case "badger":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the badger store")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.type must be badger or memory, got %q", c.Storage.Type)
	}
	if k := c.Storage.EncryptionKey; k != "" && len(k) < MinEncryptionKeyLength {
		return fmt.Errorf("storage.encryption_key must be at least %d characters", MinEncryptionKeyLength)
	}
	return nil
}

func (c *Config) validateSession() error {
	if c.Session.RefreshInterval < 0 {
		return fmt.Errorf("session.refresh_interval must not be negative")
	}
	if c.Session.OTPResendCooldown < 0 {
		return fmt.Errorf("session.otp_resend_cooldown must not be negative")
	}
	return nil
}

func (c *Config) validateRoutes() error {
	if c.Routes.MaxRoutes < 1 {
		return fmt.Errorf("routes.max_routes must be at least 1, got %d", c.Routes.MaxRoutes)
	}
	if c.Routes.PageSize < 1 {
		return fmt.Errorf("routes.page_size must be at least 1, got %d", c.Routes.PageSize)
	}
	return nil
}

func (c *Config) validateLocation() error {
	switch c.Location.Source {
	case "static":
		if c.Location.Latitude < -90 || c.Location.Latitude > 90 {
			return fmt.Errorf("location.latitude out of range: %v", c.Location.Latitude)
		}
		if c.Location.Longitude < -180 || c.Location.Longitude > 180 {
			return fmt.Errorf("location.longitude out of range: %v", c.Location.Longitude)
		}
	case "ip":
		if err := validateHTTPURL("location.ip_lookup_url", c.Location.IPLookupURL); err != nil {
			return err
		}
	default:
		return fmt.Errorf("location.source must be static or ip, got %q", c.Location.Source)
	}
	if c.Location.Timeout <= 0 {
		return fmt.Errorf("location.timeout must be positive")
	}
	if c.Location.WatchInterval <= 0 {
		return fmt.Errorf("location.watch_interval must be positive")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got %d", c.Server.Port)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "disabled", "off":
	default:
		return fmt.Errorf("logging.level %q is not a known level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

func validateHTTPURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", field, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s has no host", field)
	}
	return nil
}
