// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package geo

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/waymark/internal/models"
)

type fakeReverser struct {
	name      string
	available bool
	label     string
	err       error
	calls     atomic.Int32
}

func (f *fakeReverser) Name() string      { return f.name }
func (f *fakeReverser) IsAvailable() bool { return f.available }

func (f *fakeReverser) Reverse(_ context.Context, c models.Coordinate) (*models.Place, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Place{Coordinate: c, Address: f.label}, nil
}

func TestResolverChainOrder(t *testing.T) {
	t.Parallel()

	berlin := models.Coordinate{Lat: 52.52, Lng: 13.405}

	tests := []struct {
		name      string
		providers []*fakeReverser
		want      string
		wantCalls []int32
	}{
		{
			name: "primary wins",
			providers: []*fakeReverser{
				{name: "a", available: true, label: "Mitte, Berlin"},
				{name: "b", available: true, label: "unused"},
			},
			want:      "Mitte, Berlin",
			wantCalls: []int32{1, 0},
		},
		{
			name: "falls through failures",
			providers: []*fakeReverser{
				{name: "a", available: true, err: errors.New("boom")},
				{name: "b", available: true, label: ""},
				{name: "c", available: true, label: "Berlin, Germany"},
			},
			want:      "Berlin, Germany",
			wantCalls: []int32{1, 1, 1},
		},
		{
			name: "skips unavailable",
			providers: []*fakeReverser{
				{name: "a", available: false, label: "nope"},
				{name: "b", available: true, label: "Berlin"},
			},
			want:      "Berlin",
			wantCalls: []int32{0, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			chain := make([]ReverseGeocoder, len(tt.providers))
			for i, p := range tt.providers {
				chain[i] = p
			}
			r := NewResolver(chain, nil, time.Minute)

			p, err := r.Reverse(context.Background(), berlin)
			if err != nil {
				t.Fatalf("Reverse() failed: %v", err)
			}
			if p.Address != tt.want {
				t.Errorf("Address = %q, want %q", p.Address, tt.want)
			}
			for i, p := range tt.providers {
				if got := p.calls.Load(); got != tt.wantCalls[i] {
					t.Errorf("provider %s calls = %d, want %d", p.name, got, tt.wantCalls[i])
				}
			}
		})
	}
}

func TestResolverAllFail(t *testing.T) {
	t.Parallel()

	a := &fakeReverser{name: "a", available: true, err: errors.New("down")}
	b := &fakeReverser{name: "b", available: true, err: errors.New("quota")}
	r := NewResolver([]ReverseGeocoder{a, b}, nil, time.Minute)

	c := models.Coordinate{Lat: 40.7128, Lng: -74.006}
	_, err := r.Reverse(context.Background(), c)
	if !errors.Is(err, ErrNoProviders) {
		t.Errorf("Reverse() error = %v, want ErrNoProviders", err)
	}

	if got := r.Label(context.Background(), c); got != "40.712800, -74.006000" {
		t.Errorf("Label() = %q", got)
	}
}

func TestResolverCaches(t *testing.T) {
	t.Parallel()

	a := &fakeReverser{name: "a", available: true, label: "Somewhere"}
	r := NewResolver([]ReverseGeocoder{a}, nil, time.Minute)

	for i := 0; i < 3; i++ {
		if _, err := r.Reverse(context.Background(), models.Coordinate{Lat: 1.000001, Lng: 2}); err != nil {
			t.Fatalf("Reverse() failed: %v", err)
		}
	}
	if a.calls.Load() != 1 {
		t.Errorf("provider calls = %d, want 1", a.calls.Load())
	}
}

func TestAddressLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		addr Address
		want string
	}{
		{Address{Locality: "Kreuzberg", City: "Berlin", Region: "Berlin", Country: "Germany"}, "Kreuzberg, Berlin, Germany"},
		{Address{City: "Paris", Country: "France"}, "Paris, France"},
		{Address{Country: "Iceland"}, "Iceland"},
		{Address{}, ""},
	}
	for _, tt := range tests {
		if got := tt.addr.Label(); got != tt.want {
			t.Errorf("Label(%+v) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestHaversineMeters(t *testing.T) {
	t.Parallel()

	berlin := models.Coordinate{Lat: 52.5200, Lng: 13.4050}
	paris := models.Coordinate{Lat: 48.8566, Lng: 2.3522}

	got := HaversineMeters(berlin, paris)
	if math.Abs(got-877_500) > 5_000 {
		t.Errorf("Berlin-Paris = %.0f m, want ~877.5 km", got)
	}
	if HaversineMeters(berlin, berlin) != 0 {
		t.Error("distance to self should be 0")
	}
}

func TestMapTilerGeocoder(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/geocoding/13.405,52.52.json":
			_, _ = io.WriteString(w, `{"features":[{
				"place_name":"Mitte, Berlin, Germany","text":"Mitte","place_type":["municipal_district"],
				"context":[{"id":"municipality.1","text":"Berlin"},{"id":"region.2","text":"Berlin"},{"id":"country.3","text":"Germany"}]
			}]}`)
		case "/geocoding/Alexanderplatz.json":
			_, _ = io.WriteString(w, `{"features":[{"place_name":"Alexanderplatz, Berlin","center":[13.4132,52.5219]}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	g := NewMapTilerGeocoder(srv.URL, "test-key", time.Second)
	if !g.IsAvailable() {
		t.Fatal("IsAvailable() = false with a key")
	}
	if NewMapTilerGeocoder(srv.URL, "", time.Second).IsAvailable() {
		t.Error("IsAvailable() = true without a key")
	}

	c := models.Coordinate{Lat: 52.52, Lng: 13.405}
	p, err := g.Reverse(context.Background(), c)
	if err != nil || p.Address != "Mitte, Berlin, Germany" {
		t.Errorf("Reverse() = %+v, %v", p, err)
	}

	addr, err := g.ReverseDetailed(context.Background(), c)
	if err != nil {
		t.Fatalf("ReverseDetailed() failed: %v", err)
	}
	if addr.Label() != "Mitte, Berlin, Germany" {
		t.Errorf("detailed label = %q (%+v)", addr.Label(), addr)
	}

	res, err := g.Search(context.Background(), "Alexanderplatz", 5)
	if err != nil || len(res) != 1 {
		t.Fatalf("Search() = %v, %v", res, err)
	}
	if res[0].Lat != 52.5219 || res[0].Lon != 13.4132 || res[0].Provider != "maptiler" {
		t.Errorf("result = %+v", res[0])
	}
}

func TestNominatimGeocoder(t *testing.T) {
	t.Parallel()

	var userAgent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent.Store(r.Header.Get("User-Agent"))
		if r.URL.Query().Get("format") != "jsonv2" {
			t.Errorf("format = %q", r.URL.Query().Get("format"))
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/reverse":
			if r.URL.Query().Get("addressdetails") == "1" {
				_, _ = io.WriteString(w, `{"display_name":"x","address":{"suburb":"Soho","city":"London","state":"England","country":"United Kingdom"}}`)
				return
			}
			_, _ = io.WriteString(w, `{"display_name":"Soho, London, England"}`)
		case "/search":
			_, _ = io.WriteString(w, `[{"display_name":"London","lat":"51.5074","lon":"-0.1278"},{"display_name":"bad","lat":"x","lon":"y"}]`)
		}
	}))
	defer srv.Close()

	g := NewNominatimGeocoder(srv.URL, "waymark-test/1.0", time.Second)
	g.limiter = rate.NewLimiter(rate.Inf, 1)

	c := models.Coordinate{Lat: 51.5136, Lng: -0.1365}
	p, err := g.Reverse(context.Background(), c)
	if err != nil || p.Address != "Soho, London, England" {
		t.Errorf("Reverse() = %+v, %v", p, err)
	}
	if ua, _ := userAgent.Load().(string); ua != "waymark-test/1.0" {
		t.Errorf("User-Agent = %q", ua)
	}

	addr, err := g.ReverseDetailed(context.Background(), c)
	if err != nil || addr.Label() != "Soho, London, England, United Kingdom" {
		t.Errorf("ReverseDetailed() = %+v, %v", addr, err)
	}

	res, err := g.Search(context.Background(), "London", 5)
	if err != nil || len(res) != 1 || res[0].Lon != -0.1278 {
		t.Errorf("Search() = %+v, %v", res, err)
	}
}

func TestNominatimRateLimit(t *testing.T) {
	t.Parallel()

	g := NewNominatimGeocoder("http://127.0.0.1:1", "", time.Second)
	// Consume the single burst token.
	if !g.limiter.Allow() {
		t.Fatal("first token should be available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := g.Reverse(ctx, models.Coordinate{}); err == nil {
		t.Error("Reverse() should fail while rate limited past the deadline")
	}
}

type fakeForward struct {
	name    string
	results []models.SearchResult
	err     error
	calls   atomic.Int32
}

func (f *fakeForward) Name() string      { return f.name }
func (f *fakeForward) IsAvailable() bool { return true }

func (f *fakeForward) Search(context.Context, string, int) ([]models.SearchResult, error) {
	f.calls.Add(1)
	return f.results, f.err
}

func TestResolverSearch(t *testing.T) {
	t.Parallel()

	empty := &fakeForward{name: "primary"}
	fallback := &fakeForward{name: "fallback", results: []models.SearchResult{
		{Name: "A"}, {Name: "B"}, {Name: "C"},
	}}
	r := NewResolver(nil, []ForwardGeocoder{empty, fallback}, time.Minute)

	res, err := r.Search(context.Background(), "  Main St ", 2)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(res) != 2 || res[0].Name != "A" {
		t.Errorf("results = %+v", res)
	}

	// Cached regardless of case.
	if _, err := r.Search(context.Background(), "main st", 2); err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if fallback.calls.Load() != 1 {
		t.Errorf("fallback calls = %d, want 1", fallback.calls.Load())
	}

	if _, err := r.Search(context.Background(), "   ", 2); err == nil {
		t.Error("empty query should fail")
	}
}

func TestReverseDetailedUsesPrimaryOnly(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	maptiler := NewMapTilerGeocoder(srv.URL, "k", time.Second)
	nominatim := NewNominatimGeocoder(srv.URL, "", time.Second)
	r := NewResolver([]ReverseGeocoder{&fakeReverser{name: "plain", available: true}, maptiler, nominatim}, nil, time.Minute)

	_, err := r.ReverseDetailed(context.Background(), models.Coordinate{Lat: 1, Lng: 1})
	if err == nil {
		t.Fatal("ReverseDetailed() should surface the primary provider failure")
	}
	if !nominatim.limiter.Allow() {
		t.Error("lower-ranked provider should not have been consulted")
	}
}
