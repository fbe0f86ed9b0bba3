// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package models

import (
	"strings"
	"testing"
	"time"
)

func TestRouteIDClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id     string
		local  bool
		server bool
	}{
		{"42", false, true},
		{"0", false, true},
		{NewLocalID(), true, false},
		{"local_abc", true, false},
		{"", false, false},
		{"-5", false, false},
		{"12a", false, false},
	}

	for _, tt := range tests {
		r := &Route{ID: tt.id}
		if got := r.IsLocal(); got != tt.local {
			t.Errorf("IsLocal(%q) = %v, want %v", tt.id, got, tt.local)
		}
		if got := r.IsServerAssigned(); got != tt.server {
			t.Errorf("IsServerAssigned(%q) = %v, want %v", tt.id, got, tt.server)
		}
	}
}

func TestSameEndpoints(t *testing.T) {
	t.Parallel()

	a := &Route{
		Origin:      Place{Coordinate: Coordinate{Lat: 52.52, Lng: 13.405}, Address: "Berlin"},
		Destination: Place{Coordinate: Coordinate{Lat: 48.1351, Lng: 11.582}, Address: "Munich"},
	}
	b := a.Clone()
	b.Origin.Address = "somewhere else"
	if !a.SameEndpoints(b) {
		t.Error("routes with equal coordinates should match regardless of address")
	}

	b.Destination.Lng = 11.5821
	if a.SameEndpoints(b) {
		t.Error("routes differing in one coordinate should not match")
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	r := &Route{ID: "1", Polyline: []Coordinate{{Lat: 1, Lng: 2}}}
	c := r.Clone()
	c.Polyline[0].Lat = 9
	if r.Polyline[0].Lat != 1 {
		t.Error("Clone() shared the polyline slice")
	}
}

func TestNewGuestSession(t *testing.T) {
	t.Parallel()

	now := time.UnixMilli(1700000000123)
	s := NewGuestSession(now)
	if s.SubjectID != "guest_1700000000123" {
		t.Errorf("SubjectID = %q", s.SubjectID)
	}
	if s.Authenticated || s.Kind != SessionGuest || !s.IsGuest() {
		t.Errorf("unexpected guest session %+v", s)
	}

	u := &User{ID: "7", Name: "Ada", Email: "ada@example.com"}
	if SessionFromUser(u).IsGuest() {
		t.Error("authenticated session reported as guest")
	}
}

func TestCredentialExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()
	if (&Credential{}).Expired(now) {
		t.Error("credential without expiry should not be expired")
	}
	if !(&Credential{ExpiresAt: now.Add(-time.Minute)}).Expired(now) {
		t.Error("past expiry should be expired")
	}
}

func TestFormatCoordinates(t *testing.T) {
	t.Parallel()

	got := FormatCoordinates(Coordinate{Lat: 40.7128, Lng: -74.006})
	if got != "40.712800, -74.006000" {
		t.Errorf("FormatCoordinates() = %q", got)
	}
	if !strings.Contains(got, ", ") {
		t.Error("expected comma separator")
	}
}
