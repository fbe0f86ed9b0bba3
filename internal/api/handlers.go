// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/waymark/internal/backend"
	"github.com/tomtom215/waymark/internal/location"
	"github.com/tomtom215/waymark/internal/models"
	"github.com/tomtom215/waymark/internal/routes"
	"github.com/tomtom215/waymark/internal/routing"
	"github.com/tomtom215/waymark/internal/session"
	"github.com/tomtom215/waymark/internal/validation"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 20
	maxBodyBytes       = 64 * 1024
)

// SessionView is the read side of the session manager.
type SessionView interface {
	Current() *models.Session
	State() session.State
}

// RouteService is the subset of the route cache the bridge exposes.
type RouteService interface {
	Routes() []*models.Route
	Current() *models.Route
	Refresh(ctx context.Context) ([]*models.Route, error)
	SelectByID(ctx context.Context, id string) (*models.Route, error)
	SetCurrent(ctx context.Context, r *models.Route) error
	ToggleFavorite(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
	Calculate(ctx context.Context, origin, destination models.Place, opts routing.Options) (*models.Route, error)
}

// Locator resolves the device position.
type Locator interface {
	GetCurrentLocation(ctx context.Context) (*models.Location, error)
	GetCurrentLocationDetailed(ctx context.Context) (*models.Location, error)
}

// Searcher runs forward geocoding.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error)
}

// Handler serves the bridge endpoints.
type Handler struct {
	session  SessionView
	routes   RouteService
	locator  Locator
	searcher Searcher
}

// NewHandler creates a handler. Any dependency may be nil; its endpoints
// then answer 503.
func NewHandler(sess SessionView, rs RouteService, loc Locator, searcher Searcher) *Handler {
	return &Handler{session: sess, routes: rs, locator: loc, searcher: searcher}
}

type sessionResponse struct {
	State   string          `json:"state"`
	Session *models.Session `json:"session"`
}

type currentRequest struct {
	ID string `json:"id"`
}

type favoriteResponse struct {
	ID       string `json:"id"`
	Favorite bool   `json:"favorite"`
}

type calculateRequest struct {
	Origin        models.Place `json:"origin"`
	Destination   models.Place `json:"destination"`
	TransportMode string       `json:"transport_mode"`
}

// Health answers liveness probes.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Session returns the lifecycle state and active session.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	if h.session == nil {
		respondError(w, r, http.StatusServiceUnavailable, "SESSION_UNAVAILABLE", "Session manager is not running", nil)
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse{
		State:   h.session.State().String(),
		Session: h.session.Current(),
	})
}

// ListRoutes returns the cached list for the active scope.
func (h *Handler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	if !h.requireRoutes(w, r) {
		return
	}
	respondJSON(w, http.StatusOK, h.routes.Routes())
}

// RefreshRoutes reloads the list from the backend, falling back to the cache.
func (h *Handler) RefreshRoutes(w http.ResponseWriter, r *http.Request) {
	if !h.requireRoutes(w, r) {
		return
	}
	list, err := h.routes.Refresh(r.Context())
	if err != nil {
		h.routeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// CurrentRoute returns the route shown on the map, or null.
func (h *Handler) CurrentRoute(w http.ResponseWriter, r *http.Request) {
	if !h.requireRoutes(w, r) {
		return
	}
	respondJSON(w, http.StatusOK, h.routes.Current())
}

// SetCurrentRoute selects a cached route by id. An empty id clears it.
func (h *Handler) SetCurrentRoute(w http.ResponseWriter, r *http.Request) {
	if !h.requireRoutes(w, r) {
		return
	}
	var req currentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		if err := h.routes.SetCurrent(r.Context(), nil); err != nil {
			h.routeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, nil)
		return
	}
	route, err := h.routes.SelectByID(r.Context(), req.ID)
	if err != nil {
		h.routeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, route)
}

// CalculateRoute computes a route and adds it to the list.
func (h *Handler) CalculateRoute(w http.ResponseWriter, r *http.Request) {
	if !h.requireRoutes(w, r) {
		return
	}
	var req calculateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	route, err := h.routes.Calculate(r.Context(), req.Origin, req.Destination, routing.Options{TransportMode: req.TransportMode})
	if err != nil {
		h.routeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, route)
}

// ToggleFavorite flips the favorite flag of a route.
func (h *Handler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	if !h.requireRoutes(w, r) {
		return
	}
	id := chi.URLParam(r, "id")
	fav, err := h.routes.ToggleFavorite(r.Context(), id)
	if err != nil {
		h.routeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, favoriteResponse{ID: id, Favorite: fav})
}

// DeleteRoute removes a route.
func (h *Handler) DeleteRoute(w http.ResponseWriter, r *http.Request) {
	if !h.requireRoutes(w, r) {
		return
	}
	if err := h.routes.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.routeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Location returns the labelled device position. ?detailed=true asks for
// a City, Country style label.
func (h *Handler) Location(w http.ResponseWriter, r *http.Request) {
	if h.locator == nil {
		respondError(w, r, http.StatusServiceUnavailable, "LOCATION_UNAVAILABLE", "Location is not configured", nil)
		return
	}
	detailed, _ := strconv.ParseBool(r.URL.Query().Get("detailed"))

	var (
		loc *models.Location
		err error
	)
	if detailed {
		loc, err = h.locator.GetCurrentLocationDetailed(r.Context())
	} else {
		loc, err = h.locator.GetCurrentLocation(r.Context())
	}
	if err != nil {
		status, code := http.StatusServiceUnavailable, "POSITION_UNAVAILABLE"
		switch {
		case errors.Is(err, location.ErrPermissionDenied):
			status, code = http.StatusForbidden, "PERMISSION_DENIED"
		case errors.Is(err, location.ErrTimeout):
			status, code = http.StatusGatewayTimeout, "TIMEOUT"
		}
		respondError(w, r, status, code, err.Error(), err)
		return
	}
	respondJSON(w, http.StatusOK, loc)
}

// Search runs a forward geocoding query: ?q=text&limit=n.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if h.searcher == nil {
		respondError(w, r, http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Query parameter q is required", nil)
		return
	}
	limit := defaultSearchLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxSearchLimit {
			respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be between 1 and 20", nil)
			return
		}
		limit = n
	}

	res, err := h.searcher.Search(r.Context(), q, limit)
	if err != nil {
		respondError(w, r, http.StatusBadGateway, "SEARCH_FAILED", "No search provider could answer", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *Handler) requireRoutes(w http.ResponseWriter, r *http.Request) bool {
	if h.routes == nil {
		respondError(w, r, http.StatusServiceUnavailable, "ROUTES_UNAVAILABLE", "Route cache is not running", nil)
		return false
	}
	return true
}

func (h *Handler) routeError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs *validation.Errors
	switch {
	case errors.Is(err, routes.ErrRouteNotFound):
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.As(err, &verrs):
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, routing.ErrNoRoute):
		respondError(w, r, http.StatusBadGateway, "NO_ROUTE", routing.ErrNoRoute.Error(), err)
	case errors.Is(err, routes.ErrNoPlanner):
		respondError(w, r, http.StatusServiceUnavailable, "NO_PLANNER", err.Error(), nil)
	case errors.Is(err, backend.ErrUnauthorized):
		respondError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", err.Error(), nil)
	case errors.Is(err, backend.ErrUnavailable):
		respondError(w, r, http.StatusServiceUnavailable, "BACKEND_UNAVAILABLE", err.Error(), err)
	default:
		respondError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Route operation failed", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_JSON", "Request body is not valid JSON", err)
		return false
	}
	return true
}
