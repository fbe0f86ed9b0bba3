// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

// Package routes owns the user's route history: the per-scope route
// lists and the current route.
//
// Authenticated users get their list from the route backend, unioned
// with locally cached records the server has not seen. Guests (and
// anonymous users) only ever use the guest-scope cache. Writes are
// optimistic: when the backend is unreachable the change is applied
// locally and SyncPending pushes it later.
//
// Scopes are disjoint keys in the persisted store, so switching between
// a guest and an authenticated session never mixes lists.
package routes

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/tomtom215/waymark/internal/config"
	"github.com/tomtom215/waymark/internal/events"
	"github.com/tomtom215/waymark/internal/kvstore"
	"github.com/tomtom215/waymark/internal/logging"
	"github.com/tomtom215/waymark/internal/metrics"
	"github.com/tomtom215/waymark/internal/models"
	"github.com/tomtom215/waymark/internal/routing"
)

// DefaultMaxRoutes caps each scope list.
const DefaultMaxRoutes = 50

var (
	// ErrRouteNotFound is returned for ids not in the active list.
	ErrRouteNotFound = errors.New("route not found")

	// ErrNoPlanner is returned by Calculate when no planner was wired.
	ErrNoPlanner = errors.New("route calculation is not configured")
)

// SessionSource gives the cache the current identity.
type SessionSource interface {
	Current() *models.Session
}

// RemoteStore is the route backend.
type RemoteStore interface {
	SaveRoute(ctx context.Context, r *models.Route) (*models.Route, error)
	ListRoutes(ctx context.Context, page, limit int) ([]*models.Route, error)
	ToggleFavorite(ctx context.Context, id string) (bool, error)
	DeleteRoute(ctx context.Context, id string) error
}

// Planner computes route geometry.
type Planner interface {
	Plan(ctx context.Context, origin, destination models.Place, opts routing.Options) (*models.Route, error)
}

// Change is the payload published on events.TopicRoutesChanged.
type Change struct {
	Operation string `json:"operation"`
	Scope     string `json:"scope"`
	Count     int    `json:"count"`
	CurrentID string `json:"current_id,omitempty"`
}

// currentRoutes is the persisted current route of each scope, keyed by
// the scope's list key.
type currentRoutes map[string]*models.Route

// scope identifies one route list partition.
type scope struct {
	key           string
	subjectID     string
	authenticated bool
}

func (s scope) label() string {
	if s.authenticated {
		return "user"
	}
	return "guest"
}

// Cache is the route cache and reconciler. It is the only writer of the
// route list keys and the current route key.
type Cache struct {
	session   SessionSource
	remote    RemoteStore
	planner   Planner
	store     kvstore.Store
	publisher events.Publisher
	maxRoutes int
	pageSize  int
	now       func() time.Time

	// writeMu serialises mutations so each scope key has one writer.
	writeMu sync.Mutex

	mu      sync.RWMutex
	loaded  string
	routes  []*models.Route
	current *models.Route
}

// Option configures a Cache.
type Option func(*Cache)

// WithPlanner enables Calculate.
func WithPlanner(p Planner) Option {
	return func(c *Cache) { c.planner = p }
}

// WithPublisher publishes routes.changed events.
func WithPublisher(p events.Publisher) Option {
	return func(c *Cache) {
		if p != nil {
			c.publisher = p
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// NewCache creates a route cache. remote may be nil, in which case every
// scope behaves like the guest scope for network purposes.
func NewCache(session SessionSource, remote RemoteStore, store kvstore.Store, cfg config.RoutesConfig, opts ...Option) *Cache {
	c := &Cache{
		session:   session,
		remote:    remote,
		store:     store,
		publisher: events.Discard{},
		maxRoutes: cfg.MaxRoutes,
		pageSize:  cfg.PageSize,
		now:       time.Now,
	}
	if c.maxRoutes <= 0 {
		c.maxRoutes = DefaultMaxRoutes
	}
	if c.pageSize <= 0 {
		c.pageSize = c.maxRoutes
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) scope() scope {
	var s *models.Session
	if c.session != nil {
		s = c.session.Current()
	}
	if s != nil && s.Authenticated && s.SubjectID != "" {
		return scope{key: kvstore.RoutesUserKey(s.SubjectID), subjectID: s.SubjectID, authenticated: true}
	}
	sc := scope{key: kvstore.KeyRoutesGuest}
	if s != nil {
		sc.subjectID = s.SubjectID
	}
	return sc
}

func (c *Cache) online(sc scope) bool {
	return sc.authenticated && c.remote != nil
}

// Routes returns a snapshot of the loaded list. It is empty when the
// loaded list belongs to another scope than the current session's.
func (c *Cache) Routes() []*models.Route {
	sc := c.scope()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.loaded != sc.key {
		return []*models.Route{}
	}
	return cloneList(c.routes)
}

// Current returns the active route of the current scope, or nil.
func (c *Cache) Current() *models.Route {
	sc := c.scope()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.loaded != sc.key {
		return nil
	}
	return c.current.Clone()
}

// Load reads the route list for the current session. Authenticated
// sessions fetch the first page from the backend and union it with
// cached records the server did not return; any fetch failure returns
// the cached list unmodified. Guest sessions never call the backend.
func (c *Cache) Load(ctx context.Context) ([]*models.Route, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	list, _, err := c.load(ctx, c.scope())
	if err != nil {
		return nil, err
	}
	return cloneList(list), nil
}

// load must be called with writeMu held. remoteOK reports whether the
// list came from the backend.
func (c *Cache) load(ctx context.Context, sc scope) (list []*models.Route, remoteOK bool, err error) {
	log := logging.Ctx(ctx).With().Str("scope", sc.label()).Logger()

	cached, err := c.readList(ctx, sc.key)
	if err != nil {
		return nil, false, err
	}

	list = cached
	switch {
	case !c.online(sc):
		metrics.RecordRouteOperation("load", "local")
	default:
		remote, ferr := c.remote.ListRoutes(ctx, 1, c.pageSize)
		if ferr != nil {
			log.Warn().Err(ferr).Int("cached", len(cached)).Msg("Failed to fetch routes, using cached list")
			metrics.RecordRouteOperation("load", "fallback")
			break
		}
		list = mergeRemote(remote, cached, c.maxRoutes)
		remoteOK = true
		metrics.RecordRouteOperation("load", "remote")
		if err := c.writeList(ctx, sc.key, list); err != nil {
			log.Warn().Err(err).Msg("Failed to persist fetched routes")
		}
	}

	current, err := c.readCurrent(ctx, sc.key)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read current route")
	}
	current = matchCurrent(list, current)

	c.setState(sc, list, current)
	c.publish(ctx, "load", sc, list, current)
	log.Debug().Int("routes", len(list)).Bool("remote", remoteOK).Msg("Routes loaded")
	return list, remoteOK, nil
}

// mergeRemote unions the server records with cached records whose id
// the server did not return, newest first and capped at limit. Server
// records win on id collision. A local-only record with the endpoints of
// a server record is dropped.
func mergeRemote(remote, cached []*models.Route, limit int) []*models.Route {
	seen := make(map[string]struct{}, len(remote))
	out := make([]*models.Route, 0, len(remote)+len(cached))
	for _, r := range remote {
		if r == nil {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	server := out[:len(out):len(out)]
	for _, r := range cached {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		if r.IsLocal() && serverDuplicate(server, r) != nil {
			continue
		}
		out = append(out, r)
	}
	slices.SortStableFunc(out, func(a, b *models.Route) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return capList(out, limit)
}

// matchCurrent returns the record of list that current refers to. A
// local-only current route that was replaced by its server copy maps
// to that copy.
func matchCurrent(list []*models.Route, current *models.Route) *models.Route {
	if current == nil {
		return nil
	}
	for _, r := range list {
		if r.ID == current.ID {
			return r.Clone()
		}
	}
	if current.IsLocal() {
		if dup := serverDuplicate(list, current); dup != nil {
			return dup.Clone()
		}
	}
	return current
}

// Refresh re-runs Load. After a successful backend fetch it pushes
// local-only records with SyncPending. Only a failure of the whole
// operation is returned; backend fallbacks are silent.
func (c *Cache) Refresh(ctx context.Context) ([]*models.Route, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	sc := c.scope()
	list, remoteOK, err := c.load(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh routes: %w", err)
	}
	if remoteOK {
		if _, err := c.syncPending(ctx, sc); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Some local routes could not be synced")
		}
		list = c.snapshot()
	}
	return cloneList(list), nil
}

// Add stores a computed route. An exact origin/destination duplicate of
// an existing record leaves the list unchanged and makes that record
// current. Authenticated sessions save remotely first; a failed save, or
// a guest session, stores a local-only record instead. The added record
// becomes current.
func (c *Cache) Add(ctx context.Context, r *models.Route) (*models.Route, error) {
	if r == nil {
		return nil, errors.New("route is nil")
	}
	if err := validateEndpoints(r); err != nil {
		return nil, err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	sc := c.scope()
	log := logging.Ctx(ctx).With().Str("scope", sc.label()).Logger()

	list, err := c.activeList(ctx, sc)
	if err != nil {
		return nil, err
	}

	for _, existing := range list {
		if existing.SameEndpoints(r) {
			metrics.RecordRouteOperation("add", "duplicate")
			log.Debug().Str("route_id", existing.ID).Msg("Duplicate route, selecting existing record")
			if err := c.writeCurrent(ctx, sc.key, existing); err != nil {
				return nil, err
			}
			c.setState(sc, list, existing)
			c.publish(ctx, "select", sc, list, existing)
			return existing.Clone(), nil
		}
	}

	rec := r.Clone()
	rec.ID = ""
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = c.now().UTC()
	}

	path := "local"
	if c.online(sc) {
		saved, err := c.remote.SaveRoute(ctx, rec)
		if err == nil {
			rec, path = saved, "remote"
		} else {
			log.Warn().Err(err).Msg("Failed to save route to backend, keeping it locally")
			path = "fallback"
		}
	}
	if rec.ID == "" {
		rec.ID = models.NewLocalID()
	}
	metrics.RecordRouteOperation("add", path)

	list = capList(append([]*models.Route{rec}, list...), c.maxRoutes)
	if err := c.commit(ctx, sc, list, rec); err != nil {
		return nil, err
	}
	c.publish(ctx, "add", sc, list, rec)
	return rec.Clone(), nil
}

// ToggleFavorite flips the favorite flag of id and returns the new
// value. Server ids of authenticated sessions use the backend's
// authoritative value; a backend failure or a local id flips locally.
func (c *Cache) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	sc := c.scope()
	list, err := c.activeList(ctx, sc)
	if err != nil {
		return false, err
	}
	idx := indexOf(list, id)
	if idx < 0 {
		return false, fmt.Errorf("%w: %s", ErrRouteNotFound, id)
	}

	target := list[idx].Clone()
	favorite := !target.Favorite
	path := "local"
	if c.online(sc) && models.IsServerID(id) {
		v, err := c.remote.ToggleFavorite(ctx, id)
		if err == nil {
			favorite, path = v, "remote"
		} else {
			logging.Ctx(ctx).Warn().Err(err).Str("route_id", id).Msg("Failed to sync favorite, applying locally")
			path = "fallback"
		}
	}
	metrics.RecordRouteOperation("favorite", path)

	target.Favorite = favorite
	list = replaceAt(list, idx, target)

	current := c.snapshotCurrent()
	if current != nil && current.ID == id {
		current = target
	}
	if err := c.commit(ctx, sc, list, current); err != nil {
		return false, err
	}
	c.publish(ctx, "favorite", sc, list, current)
	return favorite, nil
}

// Delete removes id from the list, best-effort deleting it remotely
// first when it is a server id. The list is persisted even when it
// becomes empty. The current route is cleared if it was the deleted one.
func (c *Cache) Delete(ctx context.Context, id string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	sc := c.scope()
	list, err := c.activeList(ctx, sc)
	if err != nil {
		return err
	}
	idx := indexOf(list, id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrRouteNotFound, id)
	}

	path := "local"
	if c.online(sc) && models.IsServerID(id) {
		if err := c.remote.DeleteRoute(ctx, id); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("route_id", id).Msg("Failed to delete route on backend, removing locally")
			path = "fallback"
		} else {
			path = "remote"
		}
	}
	metrics.RecordRouteOperation("delete", path)

	next := make([]*models.Route, 0, len(list)-1)
	next = append(next, list[:idx]...)
	next = append(next, list[idx+1:]...)

	current := c.snapshotCurrent()
	if current != nil && current.ID == id {
		current = nil
	}
	if err := c.commit(ctx, sc, next, current); err != nil {
		return err
	}
	c.publish(ctx, "delete", sc, next, current)
	return nil
}

// SetCurrent makes r the active route, or clears it when r is nil. It
// has no network effect.
func (c *Cache) SetCurrent(ctx context.Context, r *models.Route) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	sc := c.scope()
	list, err := c.activeList(ctx, sc)
	if err != nil {
		return err
	}
	current := r.Clone()
	if err := c.writeCurrent(ctx, sc.key, current); err != nil {
		return err
	}
	c.setState(sc, list, current)
	c.publish(ctx, "select", sc, list, current)
	return nil
}

// SelectByID makes the listed route id current.
func (c *Cache) SelectByID(ctx context.Context, id string) (*models.Route, error) {
	c.writeMu.Lock()
	sc := c.scope()
	list, err := c.activeList(ctx, sc)
	c.writeMu.Unlock()
	if err != nil {
		return nil, err
	}
	idx := indexOf(list, id)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrRouteNotFound, id)
	}
	if err := c.SetCurrent(ctx, list[idx]); err != nil {
		return nil, err
	}
	return list[idx].Clone(), nil
}

// Calculate asks the planner for a route between origin and destination
// and adds the result.
func (c *Cache) Calculate(ctx context.Context, origin, destination models.Place, opts routing.Options) (*models.Route, error) {
	if c.planner == nil {
		return nil, ErrNoPlanner
	}
	r, err := c.planner.Plan(ctx, origin, destination, opts)
	if err != nil {
		return nil, err
	}
	return c.Add(ctx, r)
}

// commit persists list and current for sc, then swaps them in.
func (c *Cache) commit(ctx context.Context, sc scope, list []*models.Route, current *models.Route) error {
	if err := c.writeList(ctx, sc.key, list); err != nil {
		return err
	}
	if err := c.writeCurrent(ctx, sc.key, current); err != nil {
		return err
	}
	c.setState(sc, list, current)
	return nil
}

// activeList returns the in-memory list when it belongs to sc, otherwise
// the persisted one. Must be called with writeMu held.
func (c *Cache) activeList(ctx context.Context, sc scope) ([]*models.Route, error) {
	c.mu.RLock()
	if c.loaded == sc.key {
		list := c.routes
		c.mu.RUnlock()
		return list, nil
	}
	c.mu.RUnlock()

	list, err := c.readList(ctx, sc.key)
	if err != nil {
		return nil, err
	}
	current, err := c.readCurrent(ctx, sc.key)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to read current route")
	}
	c.setState(sc, list, current)
	return list, nil
}

func (c *Cache) readList(ctx context.Context, key string) ([]*models.Route, error) {
	var list []*models.Route
	ok, err := kvstore.GetJSON(ctx, c.store, key, &list)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return []*models.Route{}, nil
	}
	out := list[:0]
	for _, r := range list {
		if r != nil {
			out = append(out, r)
		}
	}
	return capList(out, c.maxRoutes), nil
}

// writeList persists list under key, including when it is empty.
func (c *Cache) writeList(ctx context.Context, key string, list []*models.Route) error {
	if list == nil {
		list = []*models.Route{}
	}
	if err := kvstore.SetJSON(ctx, c.store, key, list); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}

func (c *Cache) readCurrent(ctx context.Context, scopeKey string) (*models.Route, error) {
	var cur currentRoutes
	ok, err := kvstore.GetJSON(ctx, c.store, kvstore.KeyCurrentRoute, &cur)
	if err != nil || !ok {
		return nil, err
	}
	return cur[scopeKey], nil
}

// writeCurrent sets or (for nil) clears the current route of one scope,
// leaving the other scope's entry alone.
func (c *Cache) writeCurrent(ctx context.Context, scopeKey string, r *models.Route) error {
	err := kvstore.UpdateJSON(ctx, c.store, kvstore.KeyCurrentRoute, func(cur currentRoutes, _ bool) (currentRoutes, error) {
		if cur == nil {
			cur = currentRoutes{}
		}
		if r == nil {
			delete(cur, scopeKey)
		} else {
			cur[scopeKey] = r
		}
		return cur, nil
	})
	if err != nil {
		return fmt.Errorf("persist current route: %w", err)
	}
	return nil
}

func (c *Cache) setState(sc scope, list []*models.Route, current *models.Route) {
	c.mu.Lock()
	c.loaded = sc.key
	c.routes = list
	c.current = current
	c.mu.Unlock()
	metrics.RoutesCached.WithLabelValues(sc.label()).Set(float64(len(list)))
}

func (c *Cache) snapshot() []*models.Route {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.routes
}

func (c *Cache) snapshotCurrent() *models.Route {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

func (c *Cache) publish(ctx context.Context, op string, sc scope, list []*models.Route, current *models.Route) {
	ch := Change{Operation: op, Scope: sc.label(), Count: len(list)}
	if current != nil {
		ch.CurrentID = current.ID
	}
	if err := c.publisher.Publish(ctx, events.TopicRoutesChanged, ch); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Msg("Failed to publish routes change")
	}
}

func indexOf(list []*models.Route, id string) int {
	for i, r := range list {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// replaceAt returns a copy of list with list[i] replaced. Snapshots
// handed out earlier keep their slice.
func replaceAt(list []*models.Route, i int, r *models.Route) []*models.Route {
	out := make([]*models.Route, len(list))
	copy(out, list)
	out[i] = r
	return out
}

// capList keeps the newest limit records. Lists are newest first.
func capList(list []*models.Route, limit int) []*models.Route {
	if len(list) > limit {
		return list[:limit]
	}
	return list
}

func cloneList(list []*models.Route) []*models.Route {
	out := make([]*models.Route, len(list))
	for i, r := range list {
		out[i] = r.Clone()
	}
	return out
}
