// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/tomtom215/waymark/internal/backend"
	"github.com/tomtom215/waymark/internal/config"
	"github.com/tomtom215/waymark/internal/events"
	"github.com/tomtom215/waymark/internal/geo"
	"github.com/tomtom215/waymark/internal/kvstore"
	"github.com/tomtom215/waymark/internal/location"
	"github.com/tomtom215/waymark/internal/logging"
	"github.com/tomtom215/waymark/internal/routes"
	"github.com/tomtom215/waymark/internal/routing"
	"github.com/tomtom215/waymark/internal/session"
)

// app holds every component a command may need. Construction order
// follows the dependency graph: store, bus, backend, session, geocoding,
// routing, route cache, location.
type app struct {
	cfg      *config.Config
	out      io.Writer
	store    kvstore.Store
	bus      *events.Bus
	client   *backend.Client
	session  *session.Manager
	resolver *geo.Resolver
	planner  *routing.Planner
	routes   *routes.Cache
	locator  *location.Locator
}

func newApp(ctx context.Context, out io.Writer) (*app, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})

	store, err := kvstore.Open(kvstore.Options{
		Type:          kvstore.StoreType(cfg.Storage.Type),
		Path:          cfg.Storage.Path,
		EncryptionKey: cfg.Storage.EncryptionKey,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &app{cfg: cfg, out: out, store: store, bus: events.NewBus(0)}

	a.client = backend.New(cfg.Backend)
	a.session = session.NewManager(store, a.client, cfg.Session, session.WithPublisher(a.bus))
	a.client.SetTokenSource(a.session)
	a.client.SetUnauthorizedHandler(a.session.HandleUnauthorized)

	a.resolver = geo.NewDefaultResolver(cfg.Geocoding, a.client)
	a.planner = routing.NewDefaultPlanner(cfg.Routing, a.client, false)
	a.routes = routes.NewCache(a.session, a.client, store, cfg.Routes,
		routes.WithPlanner(a.planner),
		routes.WithPublisher(a.bus),
	)

	src, err := location.NewSource(cfg.Location)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.locator = location.NewLocator(src, a.resolver, location.OptionsFromConfig(cfg.Location))

	if err := a.session.Initialize(ctx); err != nil {
		logging.Warn().Err(err).Msg("Session could not be restored")
	}
	return a, nil
}

// Close releases the bus, the session manager and the store.
func (a *app) Close() {
	a.session.Close()
	if err := a.bus.Close(); err != nil {
		logging.Debug().Err(err).Msg("Event bus close failed")
	}
	if err := a.store.Close(); err != nil {
		logging.Error().Err(err).Msg("Store close failed")
	}
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
