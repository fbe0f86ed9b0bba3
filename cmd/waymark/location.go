// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/waymark/internal/api"
	"github.com/tomtom215/waymark/internal/location"
	"github.com/tomtom215/waymark/internal/logging"
	"github.com/tomtom215/waymark/internal/models"
	"github.com/tomtom215/waymark/internal/session"
	"github.com/tomtom215/waymark/internal/supervisor"
	"github.com/tomtom215/waymark/internal/supervisor/services"
	ws "github.com/tomtom215/waymark/internal/websocket"
)

func cmdLocate(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("locate")
	detailed := fs.Bool("detailed", false, "City, Country style label")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	var (
		loc *models.Location
		err error
	)
	if *detailed {
		loc, err = a.locator.GetCurrentLocationDetailed(ctx)
	} else {
		loc, err = a.locator.GetCurrentLocation(ctx)
	}
	if err != nil {
		return err
	}
	a.printf("%s\n  %s (source %s", loc.Label, models.FormatCoordinates(loc.Coordinate), loc.Source)
	if loc.Accuracy > 0 {
		a.printf(", ~%.0f m", loc.Accuracy)
	}
	a.printf(")\n")
	return nil
}

// bridgeSnapshot is sent to every websocket client when it connects.
type bridgeSnapshot struct {
	State   string          `json:"state"`
	Session *models.Session `json:"session"`
	Routes  []*models.Route `json:"routes"`
	Current *models.Route   `json:"current"`
}

func cmdTrack(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("track")
	noBridge := fs.Bool("no-bridge", false, "track without serving the live-map bridge")
	interval := fs.Duration("interval", a.cfg.Location.WatchInterval, "time between position fixes")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewComponentSlogLogger("supervisor"), supervisor.DefaultTreeConfig())
	if err != nil {
		return err
	}

	tree.AddSessionService(session.NewRefresher(a.session, a.cfg.Session.RefreshInterval))
	tree.AddSessionService(services.NewRouteReloadService(a.bus, a.routes))

	tracker := location.NewTracker(a.locator, a.bus, *interval)
	tree.AddTrackingService(tracker)

	if !*noBridge {
		hub := ws.NewHub(func(context.Context) any {
			return bridgeSnapshot{
				State:   a.session.State().String(),
				Session: a.session.Current(),
				Routes:  a.routes.Routes(),
				Current: a.routes.Current(),
			}
		})
		tree.AddTrackingService(ws.NewRelay(a.bus, hub))
		tree.AddBridgeService(hub)

		router := api.NewRouter(api.NewHandler(a.session, a.routes, a.locator, a.resolver), hub, a.cfg.Server)
		server := api.NewServer(a.cfg.Server, router.Setup())
		tree.AddBridgeService(services.NewHTTPServerService(server, 10*time.Second))
		a.printf("Live-map bridge on http://%s\n", server.Addr)
	}

	a.printf("Tracking every %s, press Ctrl+C to stop\n", *interval)
	err = tree.Serve(ctx)

	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		logging.Warn().Int("count", len(report)).Msg("Services did not stop in time")
	}
	if terr := tracker.Err(); terr != nil {
		return fmt.Errorf("live tracking stopped: %w", terr)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
