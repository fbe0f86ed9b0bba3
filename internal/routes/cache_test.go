// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package routes

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/waymark/internal/backend"
	"github.com/tomtom215/waymark/internal/config"
	"github.com/tomtom215/waymark/internal/kvstore"
	"github.com/tomtom215/waymark/internal/models"
	"github.com/tomtom215/waymark/internal/routing"
)

type fakeSession struct {
	mu   sync.Mutex
	sess *models.Session
}

func (f *fakeSession) Current() *models.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sess
}

func (f *fakeSession) set(s *models.Session) {
	f.mu.Lock()
	f.sess = s
	f.mu.Unlock()
}

func guest() *models.Session {
	return models.NewGuestSession(time.Unix(1700000000, 0))
}

func user(id string) *models.Session {
	return models.SessionFromUser(&models.User{ID: id, Name: "Ada", Email: "ada@example.com"})
}

// fakeRemote is an in-memory route backend.
type fakeRemote struct {
	mu      sync.Mutex
	routes  []*models.Route
	nextID  int
	down    bool
	saves   int
	lists   int
	toggles int
	deletes int
}

func (f *fakeRemote) SaveRoute(_ context.Context, r *models.Route) (*models.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.down {
		return nil, backend.ErrUnavailable
	}
	f.nextID++
	saved := r.Clone()
	saved.ID = strconv.Itoa(100 + f.nextID)
	f.routes = append([]*models.Route{saved}, f.routes...)
	return saved.Clone(), nil
}

func (f *fakeRemote) ListRoutes(_ context.Context, page, limit int) ([]*models.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.down {
		return nil, backend.ErrUnavailable
	}
	out := make([]*models.Route, 0, len(f.routes))
	for _, r := range f.routes {
		out = append(out, r.Clone())
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRemote) ToggleFavorite(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggles++
	if f.down {
		return false, backend.ErrUnavailable
	}
	for _, r := range f.routes {
		if r.ID == id {
			r.Favorite = !r.Favorite
			return r.Favorite, nil
		}
	}
	return false, &backend.APIError{Status: 404, Message: "Route not found"}
}

func (f *fakeRemote) DeleteRoute(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	if f.down {
		return backend.ErrUnavailable
	}
	for i, r := range f.routes {
		if r.ID == id {
			f.routes = append(f.routes[:i], f.routes[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeRemote) setDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
}

func route(i int) *models.Route {
	lat := float64(i) / 100
	return &models.Route{
		Origin:          models.Place{Coordinate: models.Coordinate{Lat: lat, Lng: 10}, Address: "From " + strconv.Itoa(i)},
		Destination:     models.Place{Coordinate: models.Coordinate{Lat: lat, Lng: 11}, Address: "To " + strconv.Itoa(i)},
		DistanceMeters:  1000,
		DurationSeconds: 60,
	}
}

func newTestCache(t *testing.T, sess *fakeSession, remote RemoteStore, opts ...Option) (*Cache, kvstore.Store) {
	t.Helper()
	store := kvstore.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	return NewCache(sess, remote, store, config.RoutesConfig{MaxRoutes: 50, PageSize: 50}, opts...), store
}

func TestGuestDuplicateAddKeepsOneRecord(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{}
	c, _ := newTestCache(t, &fakeSession{sess: guest()}, remote)
	ctx := context.Background()

	first, err := c.Add(ctx, route(1))
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	other, _ := c.Add(ctx, route(2))
	second, err := c.Add(ctx, route(1))
	if err != nil {
		t.Fatalf("Add() duplicate failed: %v", err)
	}

	list := c.Routes()
	if len(list) != 2 {
		t.Fatalf("len(Routes()) = %d, want 2", len(list))
	}
	if second.ID != first.ID || !first.IsLocal() || first.Favorite {
		t.Errorf("first=%+v second=%+v", first, second)
	}
	if c.Current().ID != first.ID {
		t.Errorf("duplicate not re-selected: current=%s other=%s", c.Current().ID, other.ID)
	}
	if remote.saves != 0 {
		t.Error("guest routes must never reach the backend")
	}
}

func TestListIsCappedNewestFirst(t *testing.T) {
	t.Parallel()

	c, store := newTestCache(t, &fakeSession{sess: guest()}, nil)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		if _, err := c.Add(ctx, route(i)); err != nil {
			t.Fatalf("Add(%d) failed: %v", i, err)
		}
		if n := len(c.Routes()); n > DefaultMaxRoutes {
			t.Fatalf("len(Routes()) = %d after %d adds", n, i+1)
		}
	}

	list := c.Routes()
	if len(list) != 50 {
		t.Fatalf("len(Routes()) = %d, want 50", len(list))
	}
	if list[0].Origin.Address != "From 59" || list[49].Origin.Address != "From 10" {
		t.Errorf("newest=%q oldest=%q", list[0].Origin.Address, list[49].Origin.Address)
	}

	var persisted []*models.Route
	if ok, _ := kvstore.GetJSON(ctx, store, kvstore.KeyRoutesGuest, &persisted); !ok || len(persisted) != 50 {
		t.Errorf("persisted %d routes", len(persisted))
	}
}

func TestToggleFavoriteTwiceRestores(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		sess   *models.Session
		down   bool
		remote int
	}{
		{"guest local id", guest(), false, 0},
		{"authenticated server id", user("7"), false, 2},
		{"authenticated backend down", user("7"), true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			remote := &fakeRemote{}
			c, _ := newTestCache(t, &fakeSession{sess: tt.sess}, remote)
			ctx := context.Background()

			r, err := c.Add(ctx, route(3))
			if err != nil {
				t.Fatalf("Add() failed: %v", err)
			}
			remote.setDown(tt.down)

			on, err := c.ToggleFavorite(ctx, r.ID)
			if err != nil || !on {
				t.Fatalf("ToggleFavorite() = %v, %v", on, err)
			}
			if !c.Current().Favorite {
				t.Error("current route not updated")
			}
			off, err := c.ToggleFavorite(ctx, r.ID)
			if err != nil || off {
				t.Fatalf("second ToggleFavorite() = %v, %v", off, err)
			}
			if c.Routes()[0].Favorite {
				t.Error("favorite flag did not return to its original value")
			}

			remote.mu.Lock()
			calls := remote.toggles
			remote.mu.Unlock()
			if tt.remote > 0 && calls != tt.remote {
				t.Errorf("remote toggles = %d, want %d", calls, tt.remote)
			}
			if tt.sess.IsGuest() && calls != 0 {
				t.Error("local ids must not be sent to the backend")
			}
		})
	}
}

func TestToggleFavoriteUsesServerValue(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{routes: []*models.Route{{ID: "5", Favorite: true, Origin: route(5).Origin, Destination: route(5).Destination}}}
	c, _ := newTestCache(t, &fakeSession{sess: user("1")}, remote)
	ctx := context.Background()

	if _, err := c.Load(ctx); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	// Server already flipped it elsewhere; local copy is stale.
	remote.mu.Lock()
	remote.routes[0].Favorite = false
	remote.mu.Unlock()

	got, err := c.ToggleFavorite(ctx, "5")
	if err != nil {
		t.Fatalf("ToggleFavorite() failed: %v", err)
	}
	if !got {
		t.Errorf("ToggleFavorite() = %v, want server value true", got)
	}
	if _, err := c.ToggleFavorite(ctx, "missing"); !errors.Is(err, ErrRouteNotFound) {
		t.Errorf("ToggleFavorite(missing) = %v", err)
	}
}

func TestDeleteThenLoadDoesNotResurface(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{sess: guest()}
	c, store := newTestCache(t, sess, nil)
	ctx := context.Background()

	r, _ := c.Add(ctx, route(1))
	if err := c.Delete(ctx, r.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if c.Current() != nil {
		t.Error("current route should be cleared")
	}

	raw, ok, _ := store.Get(ctx, kvstore.KeyRoutesGuest)
	if !ok || string(raw) != "[]" {
		t.Errorf("persisted list = %q, %v; want empty list", raw, ok)
	}

	fresh := NewCache(sess, nil, store, config.RoutesConfig{})
	list, err := fresh.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("deleted route resurfaced: %+v", list)
	}
	if err := c.Delete(ctx, r.ID); !errors.Is(err, ErrRouteNotFound) {
		t.Errorf("second Delete() = %v", err)
	}
}

func TestDeleteServerRouteBestEffort(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{}
	c, _ := newTestCache(t, &fakeSession{sess: user("1")}, remote)
	ctx := context.Background()

	a, _ := c.Add(ctx, route(1))
	b, _ := c.Add(ctx, route(2))
	if err := c.Delete(ctx, b.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	remote.setDown(true)
	if err := c.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() with backend down failed: %v", err)
	}
	if len(c.Routes()) != 0 || remote.deletes != 2 {
		t.Errorf("routes=%d deletes=%d", len(c.Routes()), remote.deletes)
	}
}

func TestRefreshWithBackendUnreachableReturnsCache(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{}
	sess := &fakeSession{sess: user("42")}
	c, store := newTestCache(t, sess, remote)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.Add(ctx, route(i)); err != nil {
			t.Fatalf("Add() failed: %v", err)
		}
	}
	var want []*models.Route
	_, _ = kvstore.GetJSON(ctx, store, kvstore.RoutesUserKey("42"), &want)

	remote.setDown(true)
	fresh := NewCache(sess, remote, store, config.RoutesConfig{})
	got, err := fresh.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh() failed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID {
			t.Errorf("route %d = %s, want %s", i, got[i].ID, want[i].ID)
		}
	}
}

func TestLoadMergesServerAndCache(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{}
	sess := &fakeSession{sess: user("1")}
	c, store := newTestCache(t, sess, remote)
	ctx := context.Background()

	stale := route(1)
	stale.ID = "101"
	stale.Origin.Address = "stale"
	local := route(2)
	local.ID = "local_abc"
	_ = kvstore.SetJSON(ctx, store, kvstore.RoutesUserKey("1"), []*models.Route{stale, local})

	server := route(1)
	server.ID = "101"
	server.Origin.Address = "fresh"
	remote.routes = []*models.Route{server}

	list, err := c.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].ID != "101" || list[0].Origin.Address != "fresh" {
		t.Errorf("server record should win: %+v", list[0])
	}
	if list[1].ID != "local_abc" {
		t.Errorf("cached local record missing: %+v", list[1])
	}
}

// tickClock advances one second per reading.
type tickClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func TestLoadKeepsNewestLocalRouteAtCap(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{}
	clock := &tickClock{now: time.Unix(1700000000, 0)}
	c, store := newTestCache(t, &fakeSession{sess: user("4")}, remote, WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < DefaultMaxRoutes; i++ {
		if _, err := c.Add(ctx, route(i)); err != nil {
			t.Fatalf("Add(%d) failed: %v", i, err)
		}
	}

	remote.setDown(true)
	offline, err := c.Add(ctx, route(99))
	if err != nil || !offline.IsLocal() {
		t.Fatalf("Add() offline = %+v, %v", offline, err)
	}
	remote.setDown(false)

	list, err := c.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(list) != DefaultMaxRoutes {
		t.Fatalf("len = %d, want %d", len(list), DefaultMaxRoutes)
	}
	if list[0].ID != offline.ID {
		t.Errorf("newest route = %s, want local %s", list[0].ID, offline.ID)
	}
	if last := list[len(list)-1].ID; last != "102" {
		t.Errorf("oldest kept route = %s, want 102 (101 evicted)", last)
	}
	for i := 1; i < len(list); i++ {
		if list[i].CreatedAt.After(list[i-1].CreatedAt) {
			t.Fatalf("list not newest first at %d", i)
		}
	}

	var persisted []*models.Route
	_, _ = kvstore.GetJSON(ctx, store, kvstore.RoutesUserKey("4"), &persisted)
	if len(persisted) == 0 || persisted[0].ID != offline.ID {
		t.Error("local route not persisted after Load")
	}
	if n, err := c.SyncPending(ctx); n != 1 || err != nil {
		t.Errorf("SyncPending() = %d, %v; want 1", n, err)
	}
}

func TestLoadDropsLocalCopyOfServerRoute(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{down: true}
	c, _ := newTestCache(t, &fakeSession{sess: user("6")}, remote)
	ctx := context.Background()

	local, err := c.Add(ctx, route(1))
	if err != nil || !local.IsLocal() {
		t.Fatalf("Add() = %+v, %v", local, err)
	}

	server := route(1)
	server.ID = "55"
	remote.mu.Lock()
	remote.routes = []*models.Route{server}
	remote.down = false
	remote.mu.Unlock()

	list, err := c.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != "55" {
		t.Errorf("list = %+v, want only server record 55", list)
	}
	if cur := c.Current(); cur == nil || cur.ID != "55" {
		t.Errorf("Current() = %+v, want server record 55", cur)
	}
}

func TestScopesAreDisjoint(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{}
	sess := &fakeSession{sess: guest()}
	c, _ := newTestCache(t, sess, remote)
	ctx := context.Background()

	g, _ := c.Add(ctx, route(1))
	_ = c.SetCurrent(ctx, g)

	sess.set(user("9"))
	if n := len(c.Routes()); n != 0 {
		t.Errorf("guest routes visible after sign-in: %d", n)
	}
	if c.Current() != nil {
		t.Error("guest current route visible after sign-in")
	}

	list, err := c.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	for _, r := range list {
		if r.ID == g.ID {
			t.Fatal("guest route merged into the authenticated list")
		}
	}

	a, _ := c.Add(ctx, route(2))
	sess.set(guest())
	list, _ = c.Load(ctx)
	if len(list) != 1 || list[0].ID != g.ID {
		t.Errorf("guest list = %+v", list)
	}
	if cur := c.Current(); cur == nil || cur.ID != g.ID {
		t.Errorf("guest current route = %+v, want %s (not %s)", cur, g.ID, a.ID)
	}
}

func TestAddFallsBackAndSyncPending(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{down: true}
	c, _ := newTestCache(t, &fakeSession{sess: user("3")}, remote)
	ctx := context.Background()

	offline, err := c.Add(ctx, route(1))
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if !offline.IsLocal() {
		t.Fatalf("ID = %q, want local id", offline.ID)
	}

	remote.setDown(false)
	online, _ := c.Add(ctx, route(2))
	if !online.IsServerAssigned() {
		t.Fatalf("ID = %q, want server id", online.ID)
	}

	list, err := c.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh() failed: %v", err)
	}
	for _, r := range list {
		if r.IsLocal() {
			t.Errorf("local route %s not synced", r.ID)
		}
	}
	if len(list) != 2 {
		t.Errorf("len = %d, want 2", len(list))
	}
	if n, err := c.SyncPending(ctx); n != 0 || err != nil {
		t.Errorf("SyncPending() = %d, %v; want nothing left", n, err)
	}
}

func TestSyncPendingDropsServerDuplicates(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{}
	sess := &fakeSession{sess: user("3")}
	c, store := newTestCache(t, sess, remote)
	ctx := context.Background()

	server := route(1)
	server.ID = "55"
	local := route(1)
	local.ID = "local_dup"
	_ = kvstore.SetJSON(ctx, store, kvstore.RoutesUserKey("3"), []*models.Route{local, server})

	n, err := c.SyncPending(ctx)
	if err != nil || n != 0 {
		t.Fatalf("SyncPending() = %d, %v", n, err)
	}
	list := c.Routes()
	if len(list) != 1 || list[0].ID != "55" || remote.saves != 0 {
		t.Errorf("list=%+v saves=%d", list, remote.saves)
	}
}

func TestCurrentRoutePersists(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{sess: guest()}
	c, store := newTestCache(t, sess, nil)
	ctx := context.Background()

	a, _ := c.Add(ctx, route(1))
	_, _ = c.Add(ctx, route(2))
	if _, err := c.SelectByID(ctx, a.ID); err != nil {
		t.Fatalf("SelectByID() failed: %v", err)
	}

	fresh := NewCache(sess, nil, store, config.RoutesConfig{})
	if _, err := fresh.Load(ctx); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cur := fresh.Current(); cur == nil || cur.ID != a.ID {
		t.Errorf("Current() = %+v, want %s", cur, a.ID)
	}

	if err := fresh.SetCurrent(ctx, nil); err != nil {
		t.Fatalf("SetCurrent(nil) failed: %v", err)
	}
	again := NewCache(sess, nil, store, config.RoutesConfig{})
	_, _ = again.Load(ctx)
	if cur := again.Current(); cur != nil {
		t.Errorf("cleared current route still persisted: %+v", cur)
	}
}

type fakePlanner struct {
	err error
}

func (f fakePlanner) Plan(_ context.Context, o, d models.Place, opts routing.Options) (*models.Route, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Route{Origin: o, Destination: d, DistanceMeters: 42, RouteKind: "osrm", TransportKind: opts.TransportMode}, nil
}

func TestCalculate(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{sess: guest()}
	c, _ := newTestCache(t, sess, nil, WithPlanner(fakePlanner{}))
	ctx := context.Background()

	r1 := route(1)
	got, err := c.Calculate(ctx, r1.Origin, r1.Destination, routing.Options{TransportMode: "walking"})
	if err != nil {
		t.Fatalf("Calculate() failed: %v", err)
	}
	if got.DistanceMeters != 42 || c.Current().ID != got.ID {
		t.Errorf("route = %+v", got)
	}

	failing, _ := newTestCache(t, sess, nil, WithPlanner(fakePlanner{err: routing.ErrNoRoute}))
	if _, err := failing.Calculate(ctx, r1.Origin, r1.Destination, routing.Options{}); !errors.Is(err, routing.ErrNoRoute) {
		t.Errorf("Calculate() = %v", err)
	}
	bare, _ := newTestCache(t, sess, nil)
	if _, err := bare.Calculate(ctx, r1.Origin, r1.Destination, routing.Options{}); !errors.Is(err, ErrNoPlanner) {
		t.Errorf("Calculate() = %v", err)
	}
}

func TestAddRejectsInvalidCoordinates(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, &fakeSession{sess: guest()}, nil)
	bad := route(1)
	bad.Destination.Lat = 123
	if _, err := c.Add(context.Background(), bad); err == nil {
		t.Error("Add() should reject latitude 123")
	}
}

func TestLastSearchPerUser(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{sess: user("1")}
	c, _ := newTestCache(t, sess, nil)
	ctx := context.Background()

	if _, ok := c.LastSearch(ctx); ok {
		t.Error("LastSearch() on empty store")
	}
	if err := c.SaveSearch(ctx, " Berlin ", "Potsdam"); err != nil {
		t.Fatalf("SaveSearch() failed: %v", err)
	}
	in, ok := c.LastSearch(ctx)
	if !ok || in.Origin != "Berlin" || in.Destination != "Potsdam" {
		t.Errorf("LastSearch() = %+v, %v", in, ok)
	}

	sess.set(user("2"))
	if _, ok := c.LastSearch(ctx); ok {
		t.Error("another user's search leaked")
	}
}
