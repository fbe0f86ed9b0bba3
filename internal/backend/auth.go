// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package backend

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/waymark/internal/models"
)

// remoteUser is the user object in auth responses.
type remoteUser struct {
	ID        flexID    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
}

func (u *remoteUser) toModel() *models.User {
	if u == nil {
		return nil
	}
	return &models.User{
		ID:        string(u.ID),
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		AvatarURL: u.AvatarURL,
	}
}

// AuthResult is a successful sign-in, sign-up or refresh.
type AuthResult struct {
	AccessToken string
	// User is nil when the backend did not return user fields.
	User *models.User
}

type authResponse struct {
	AccessToken string      `json:"accessToken"`
	Token       string      `json:"token"`
	User        *remoteUser `json:"user"`
}

func (r *authResponse) result() *AuthResult {
	tok := r.AccessToken
	if tok == "" {
		tok = r.Token
	}
	return &AuthResult{AccessToken: tok, User: r.User.toModel()}
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignIn exchanges credentials for a token. Transient failures are
// retried.
func (c *Client) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	var resp authResponse
	err := c.do(ctx, call{
		endpoint: "auth.signin",
		method:   http.MethodPost,
		path:     "/api/auth/signin",
		body:     signInRequest{Email: email, Password: password},
		retry:    true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.result(), nil
}

// SignUp creates an account.
func (c *Client) SignUp(ctx context.Context, name, email, password string) (*AuthResult, error) {
	var resp authResponse
	err := c.do(ctx, call{
		endpoint: "auth.signup",
		method:   http.MethodPost,
		path:     "/api/auth/signup",
		body:     signUpRequest{Name: name, Email: email, Password: password},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.result(), nil
}

// Refresh trades the current token for a new one. It is a background
// call: a 401 here never clears the session.
func (c *Client) Refresh(ctx context.Context) (*AuthResult, error) {
	var resp authResponse
	err := c.do(ctx, call{
		endpoint:   "auth.refresh",
		method:     http.MethodPost,
		path:       "/api/auth/refresh",
		auth:       true,
		background: true,
		retry:      true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.result(), nil
}

// Validate checks the current token and returns its user.
func (c *Client) Validate(ctx context.Context) (*models.User, error) {
	var resp struct {
		Valid *bool       `json:"valid"`
		User  *remoteUser `json:"user"`
	}
	err := c.do(ctx, call{
		endpoint:   "auth.validate",
		method:     http.MethodGet,
		path:       "/api/auth/validate",
		auth:       true,
		background: true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Valid != nil && !*resp.Valid {
		return nil, &APIError{Endpoint: "auth.validate", Status: http.StatusUnauthorized, Message: "token is no longer valid"}
	}
	return resp.User.toModel(), nil
}

// SignOut invalidates the token server-side.
func (c *Client) SignOut(ctx context.Context) error {
	return c.do(ctx, call{
		endpoint:   "auth.signout",
		method:     http.MethodPost,
		path:       "/api/auth/signout",
		auth:       true,
		background: true,
	}, nil)
}
