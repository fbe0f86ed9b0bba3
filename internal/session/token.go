// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/waymark/internal/models"
)

// newCredential wraps token, reading the exp claim when the token is a
// JWT. The signature is not checked: the backend owns the key, and the
// expiry is only used for display and refresh scheduling.
func newCredential(token string, now time.Time) *models.Credential {
	cred := &models.Credential{AccessToken: token, IssuedAt: now}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return cred
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		cred.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		cred.IssuedAt = iat.Time
	}
	return cred
}
