// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

/*
Package api serves the live-map bridge: a small local HTTP server that a
browser map page talks to. It exposes the session state, the cached route
list, device location, place search, and a websocket that pushes route,
session and location changes as they happen.
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	gorillaws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/waymark/internal/config"
	"github.com/tomtom215/waymark/internal/logging"
	ws "github.com/tomtom215/waymark/internal/websocket"
)

// Router wires the handler, the websocket hub and middleware together.
type Router struct {
	handler        *Handler
	hub            *ws.Hub
	middleware     *Middleware
	allowedOrigins []string
}

// NewRouter creates the bridge router. hub may be nil to disable /ws.
func NewRouter(handler *Handler, hub *ws.Hub, cfg config.ServerConfig) *Router {
	return &Router{
		handler: handler,
		hub:     hub,
		middleware: NewMiddleware(MiddlewareConfig{
			AllowedOrigins:    cfg.AllowedOrigins,
			RateLimitRequests: cfg.RateLimit,
			RateLimitWindow:   time.Minute,
		}),
		allowedOrigins: cfg.AllowedOrigins,
	}
}

// Setup builds the chi mux.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(rt.middleware.CORS())
	r.Use(Metrics())

	r.Get("/healthz", rt.handler.Health)
	r.Handle("/metrics", promhttp.Handler())
	if rt.hub != nil {
		r.Get("/ws", rt.WebSocket)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.middleware.RateLimit())
		r.Use(SecurityHeaders())

		r.Get("/session", rt.handler.Session)
		r.Get("/location", rt.handler.Location)
		r.Get("/search", rt.handler.Search)

		r.Route("/routes", func(r chi.Router) {
			r.Get("/", rt.handler.ListRoutes)
			r.Post("/", rt.handler.CalculateRoute)
			r.Post("/refresh", rt.handler.RefreshRoutes)
			r.Get("/current", rt.handler.CurrentRoute)
			r.Put("/current", rt.handler.SetCurrentRoute)
			r.Post("/{id}/favorite", rt.handler.ToggleFavorite)
			r.Delete("/{id}", rt.handler.DeleteRoute)
		})
	})

	return r
}

func (rt *Router) upgrader() *gorillaws.Upgrader {
	return &gorillaws.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Non-browser clients send no Origin.
			if origin == "" {
				return true
			}
			allowed := originAllowed(origin, rt.allowedOrigins)
			if !allowed {
				logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket origin rejected")
			}
			return allowed
		},
	}
}

// WebSocket upgrades the connection and hands it to the hub.
func (rt *Router) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := rt.upgrader().Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logging.Ctx(r.Context()).Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	client := ws.NewClient(rt.hub, conn)
	rt.hub.Register <- client
	client.Start()
}
