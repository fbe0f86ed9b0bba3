// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

// Package models defines the data structures shared across Waymark:
// users and sessions, credentials, routes and locations.
package models

import (
	"strconv"
	"strings"
	"time"
)

// SessionKind classifies who is using the client.
type SessionKind string

const (
	SessionAnonymous     SessionKind = "anonymous"
	SessionGuest         SessionKind = "guest"
	SessionAuthenticated SessionKind = "authenticated"
)

// GuestIDPrefix marks device-local guest subject ids.
const GuestIDPrefix = "guest_"

// User is the account record returned by the auth backend.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	AvatarURL string    `json:"avatar_url,omitempty"`
}

// Session is the in-memory identity of the current user. The persisted
// store only holds a serialized copy used to rehydrate on startup.
type Session struct {
	SubjectID     string      `json:"subject_id"`
	DisplayName   string      `json:"display_name"`
	Email         string      `json:"email"`
	Authenticated bool        `json:"authenticated"`
	CreatedAt     time.Time   `json:"created_at"`
	AvatarURL     string      `json:"avatar_url,omitempty"`
	Kind          SessionKind `json:"kind"`
}

// SessionFromUser builds an authenticated session for u.
func SessionFromUser(u *User) *Session {
	return &Session{
		SubjectID:     u.ID,
		DisplayName:   u.Name,
		Email:         u.Email,
		Authenticated: true,
		CreatedAt:     u.CreatedAt,
		AvatarURL:     u.AvatarURL,
		Kind:          SessionAuthenticated,
	}
}

// NewGuestSession returns a device-local guest identity whose id is
// derived from now.
func NewGuestSession(now time.Time) *Session {
	return &Session{
		SubjectID:     GuestIDPrefix + strconv.FormatInt(now.UnixMilli(), 10),
		DisplayName:   "Guest",
		Authenticated: false,
		CreatedAt:     now,
		Kind:          SessionGuest,
	}
}

// IsGuest reports whether s is a device-local guest session.
func (s *Session) IsGuest() bool {
	return s != nil && !s.Authenticated && strings.HasPrefix(s.SubjectID, GuestIDPrefix)
}

// Credential is the current bearer token.
type Credential struct {
	AccessToken string    `json:"access_token"`
	IssuedAt    time.Time `json:"issued_at"`

	// ExpiresAt is zero when the token carries no readable exp claim.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the credential's known expiry is before now.
func (c *Credential) Expired(now time.Time) bool {
	return c != nil && !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// PendingSignup is the signup payload held locally until the emailed OTP
// is verified.
type PendingSignup struct {
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Password    string    `json:"password"`
	RequestedAt time.Time `json:"requested_at"`
}
