// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/waymark/internal/config"
	"github.com/tomtom215/waymark/internal/models"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func testConfig(url string) config.BackendConfig {
	return config.BackendConfig{
		URL:              url,
		Timeout:          2 * time.Second,
		ColdStartTimeout: 3 * time.Second,
		RetryAttempts:    3,
		RetryDelay:       time.Millisecond,
		BreakerFailures:  50,
		BreakerTimeout:   time.Second,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(testConfig(srv.URL))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestSignInSuccess(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/auth/signin" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body signInRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Email != "ada@example.com" || body.Password != "secret1" {
			t.Errorf("unexpected body %+v", body)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"accessToken": "tok-1",
			"user":        map[string]any{"id": 7, "name": "Ada", "email": "ada@example.com"},
		})
	})

	res, err := c.SignIn(context.Background(), "ada@example.com", "secret1")
	if err != nil {
		t.Fatalf("SignIn() failed: %v", err)
	}
	if res.AccessToken != "tok-1" {
		t.Errorf("AccessToken = %q", res.AccessToken)
	}
	if res.User == nil || res.User.ID != "7" || res.User.Name != "Ada" {
		t.Errorf("User = %+v", res.User)
	}
}

func TestSignInSurfacesServerMessage(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid email or password"})
	})

	_, err := c.SignIn(context.Background(), "ada@example.com", "wrong")
	if err == nil {
		t.Fatal("SignIn() should fail")
	}
	if err.Error() != "Invalid email or password" {
		t.Errorf("error = %q, want the server message unchanged", err.Error())
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Errorf("expected *APIError with 401, got %T %v", err, err)
	}
}

func TestSignInRetriesTransientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "waking up"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"accessToken": "tok"})
	})

	res, err := c.SignIn(context.Background(), "a@b.co", "secret1")
	if err != nil {
		t.Fatalf("SignIn() failed: %v", err)
	}
	if res.AccessToken != "tok" || calls.Load() != 3 {
		t.Errorf("token=%q calls=%d, want tok after 3 calls", res.AccessToken, calls.Load())
	}
}

func TestNonRetryableCallIsSingleAttempt(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	err := c.DeleteRoute(context.Background(), "5")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("DeleteRoute() error = %v, want ErrUnavailable", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestUnauthorizedHandler(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer stale" {
			t.Errorf("Authorization = %q", got)
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "jwt expired"})
	})
	c.SetTokenSource(staticToken("stale"))

	var fired atomic.Int32
	c.SetUnauthorizedHandler(func(context.Context) { fired.Add(1) })

	_, err := c.ListRoutes(context.Background(), 1, 50)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("ListRoutes() error = %v, want ErrUnauthorized", err)
	}
	if fired.Load() != 1 {
		t.Errorf("handler fired %d times, want 1", fired.Load())
	}

	// Background calls are exempt.
	_, _ = c.Validate(context.Background())
	_, _ = c.Refresh(context.Background())
	_ = c.SignOut(context.Background())
	if fired.Load() != 1 {
		t.Errorf("background calls fired the handler (%d)", fired.Load())
	}
}

func TestCircuitBreakerOpens(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.BreakerFailures = 2
	cfg.BreakerTimeout = time.Minute
	c := New(cfg)

	for i := 0; i < 2; i++ {
		_ = c.DeleteRoute(context.Background(), "1")
	}
	if c.BreakerState() != "open" {
		t.Fatalf("BreakerState() = %s, want open", c.BreakerState())
	}

	err := c.DeleteRoute(context.Background(), "1")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("open breaker error = %v, want ErrUnavailable", err)
	}
	if calls.Load() != 2 {
		t.Errorf("server saw %d calls, want 2 (third rejected)", calls.Load())
	}
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad"})
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.BreakerFailures = 1
	c := New(cfg)
	for i := 0; i < 3; i++ {
		_ = c.SendOTP(context.Background(), "a@b.co", "signup_verification")
	}
	if c.BreakerState() != "closed" {
		t.Errorf("BreakerState() = %s, want closed", c.BreakerState())
	}
}

func TestNetworkErrorIsUnavailable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(testConfig(url))
	_, err := c.ListRoutes(context.Background(), 1, 50)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
	if !IsTransient(err) {
		t.Error("network error should be transient")
	}
}

func TestListRoutesFormats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"bare array", `[{"id":12,"startLat":1,"startLng":2,"endLat":3,"endLng":4,"distance":1000,"duration":60,"geometry":[[1,2],[3,4]],"isFavorite":true}]`},
		{"routes envelope", `{"routes":[{"id":"12","startLat":1,"startLng":2,"endLat":3,"endLng":4,"distance":1000,"duration":60,"geometry":[[1,2],[3,4]],"isFavorite":true}]}`},
		{"data envelope", `{"data":[{"id":12,"startLat":1,"startLng":2,"endLat":3,"endLng":4,"distance":1000,"duration":60,"geometry":[[1,2],[3,4]],"isFavorite":true}],"page":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("page") != "1" || r.URL.Query().Get("limit") != "50" {
					t.Errorf("unexpected query %s", r.URL.RawQuery)
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, tt.body)
			})

			routes, err := c.ListRoutes(context.Background(), 1, 50)
			if err != nil {
				t.Fatalf("ListRoutes() failed: %v", err)
			}
			if len(routes) != 1 {
				t.Fatalf("got %d routes", len(routes))
			}
			r := routes[0]
			if r.ID != "12" || !r.IsServerAssigned() || !r.Favorite {
				t.Errorf("route = %+v", r)
			}
			if len(r.Polyline) != 2 || r.Polyline[1] != (models.Coordinate{Lat: 3, Lng: 4}) {
				t.Errorf("polyline = %v", r.Polyline)
			}
			if r.Destination.Lng != 4 {
				t.Errorf("destination = %+v", r.Destination)
			}
		})
	}
}

func TestSaveRouteRequiresNumericID(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body remoteRoute
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.StartLat != 52.5 {
			t.Errorf("startLat = %v", body.StartLat)
		}
		writeJSON(w, http.StatusCreated, map[string]any{"route": map[string]any{"id": 99, "startLat": 52.5}})
	})

	saved, err := c.SaveRoute(context.Background(), &models.Route{
		Origin:   models.Place{Coordinate: models.Coordinate{Lat: 52.5, Lng: 13.4}},
		Polyline: []models.Coordinate{{Lat: 52.5, Lng: 13.4}},
	})
	if err != nil {
		t.Fatalf("SaveRoute() failed: %v", err)
	}
	if saved.ID != "99" || len(saved.Polyline) != 1 {
		t.Errorf("saved = %+v", saved)
	}

	bad := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	if _, err := bad.SaveRoute(context.Background(), &models.Route{}); err == nil {
		t.Error("SaveRoute() should reject a response without id")
	}
}

func TestToggleFavoriteAndReverseGeocode(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPatch && r.URL.Path == "/api/routes/12/favorite":
			writeJSON(w, http.StatusOK, map[string]any{"isFavorite": true})
		case r.URL.Path == "/api/geocode/reverse":
			if !strings.HasPrefix(r.URL.Query().Get("lat"), "40.7") {
				t.Errorf("lat = %q", r.URL.Query().Get("lat"))
			}
			writeJSON(w, http.StatusOK, map[string]string{"address": "Manhattan, New York"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	fav, err := c.ToggleFavorite(context.Background(), "12")
	if err != nil || !fav {
		t.Errorf("ToggleFavorite() = %v, %v", fav, err)
	}

	label, err := c.ReverseGeocode(context.Background(), models.Coordinate{Lat: 40.7128, Lng: -74.006})
	if err != nil || label != "Manhattan, New York" {
		t.Errorf("ReverseGeocode() = %q, %v", label, err)
	}
}

func TestVerifyOTPRejected(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"verified": false, "message": "Code expired"})
	})
	err := c.VerifyOTP(context.Background(), "a@b.co", "123456", "signup_verification")
	if err == nil || err.Error() != "Code expired" {
		t.Errorf("VerifyOTP() = %v, want Code expired", err)
	}
}

func TestExtractMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		body string
		want string
	}{
		{`{"message":"nope"}`, "nope"},
		{`{"error":"broken"}`, "broken"},
		{`{"other":1}`, ""},
		{"plain text failure", "plain text failure"},
		{"<html>gateway</html>", ""},
	}
	for _, tt := range tests {
		if got := extractMessage([]byte(tt.body)); got != tt.want {
			t.Errorf("extractMessage(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestAPIErrorFallbackMessage(t *testing.T) {
	t.Parallel()

	err := &APIError{Status: http.StatusNotFound}
	if err.Error() != "Not Found" {
		t.Errorf("Error() = %q", err.Error())
	}
}
