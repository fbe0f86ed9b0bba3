// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package backend

import (
	"context"
	"errors"
	"net/http"

	gobreaker "github.com/sony/gobreaker/v2"
)

var (
	// ErrUnauthorized matches any 401 response.
	ErrUnauthorized = errors.New("session expired, please sign in again")

	// ErrUnavailable matches network failures, 5xx responses and an open
	// circuit breaker.
	ErrUnavailable = errors.New("route service is unavailable, please try again later")
)

// APIError is a non-2xx response. Error returns the server's message
// unchanged so callers can show it inline.
type APIError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if t := http.StatusText(e.Status); t != "" {
		return t
	}
	return "request failed"
}

// Is lets errors.Is match APIError against ErrUnauthorized and
// ErrUnavailable.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrUnavailable:
		return e.Status >= http.StatusInternalServerError
	}
	return false
}

// networkError wraps a transport failure.
type networkError struct {
	endpoint string
	err      error
}

func (e *networkError) Error() string {
	return ErrUnavailable.Error()
}

func (e *networkError) Unwrap() []error {
	return []error{ErrUnavailable, e.err}
}

// IsTransient reports whether err is worth retrying: transport failures,
// timeouts, 5xx and 429 responses. An open circuit breaker is not
// transient from the caller's point of view.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 || apiErr.Status == http.StatusTooManyRequests
	}
	var netErr *networkError
	return errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded)
}
