// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// setupEnv points the CLI at an in-memory store, a static location and
// fake collaborators that always fail, so nothing leaves the machine.
func setupEnv(t *testing.T) {
	t.Helper()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"not here"}`, http.StatusNotFound)
	}))
	t.Cleanup(failing.Close)

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("WAYMARK_STORAGE_TYPE", "memory")
	t.Setenv("WAYMARK_BACKEND_URL", failing.URL)
	t.Setenv("WAYMARK_BACKEND_RETRY_DELAY", "1ms")
	t.Setenv("WAYMARK_NOMINATIM_URL", failing.URL)
	t.Setenv("WAYMARK_OSRM_URL", failing.URL)
	t.Setenv("MAPTILER_KEY", "")
	t.Setenv("WAYMARK_LOCATION_SOURCE", "static")
	t.Setenv("WAYMARK_LATITUDE", "52.52")
	t.Setenv("WAYMARK_LONGITUDE", "13.405")
	t.Setenv("LOG_LEVEL", "disabled")
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunUsage(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no arguments", nil, exitUsage},
		{"help", []string{"help"}, exitOK},
		{"unknown command", []string{"teleport"}, exitUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			if code != tt.want {
				t.Errorf("run(%v) = %d, want %d", tt.args, code, tt.want)
			}
			if !strings.Contains(stderr, "Usage: waymark") {
				t.Errorf("stderr missing usage: %q", stderr)
			}
		})
	}
}

func TestRunWhoamiAnonymous(t *testing.T) {
	setupEnv(t)

	code, stdout, stderr := runCLI(t, "whoami")
	if code != exitOK {
		t.Fatalf("whoami exit = %d, stderr %q", code, stderr)
	}
	if !strings.Contains(stdout, "State: anonymous") || !strings.Contains(stdout, "Not signed in") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestRunRoutesListEmpty(t *testing.T) {
	setupEnv(t)

	code, stdout, stderr := runCLI(t, "routes")
	if code != exitOK {
		t.Fatalf("routes exit = %d, stderr %q", code, stderr)
	}
	if !strings.Contains(stdout, "No saved routes") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestRunRoutesBadArguments(t *testing.T) {
	setupEnv(t)

	tests := [][]string{
		{"routes", "rename"},
		{"routes", "favorite"},
		{"route", "only-one-place"},
		{"locate", "-bogus"},
	}
	for _, args := range tests {
		if code, _, _ := runCLI(t, args...); code != exitUsage {
			t.Errorf("run(%v) = %d, want %d", args, code, exitUsage)
		}
	}
}

func TestRunLocateFallsBackToCoordinates(t *testing.T) {
	setupEnv(t)

	code, stdout, stderr := runCLI(t, "locate")
	if code != exitOK {
		t.Fatalf("locate exit = %d, stderr %q", code, stderr)
	}
	if !strings.Contains(stdout, "52.520000, 13.405000") || !strings.Contains(stdout, "source static") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestRunInvalidConfig(t *testing.T) {
	setupEnv(t)
	t.Setenv("WAYMARK_STORAGE_TYPE", "floppy")

	code, _, stderr := runCLI(t, "whoami")
	if code != exitError || !strings.Contains(stderr, "storage.type") {
		t.Errorf("exit = %d, stderr %q", code, stderr)
	}
}
