// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

/*
Package supervisor runs the long-lived parts of waymark under a suture v4
supervisor tree.

The tree is split into three layers so a failure in one does not take the
others down:

	RootSupervisor ("waymark")
	├── SessionSupervisor ("session-layer")
	│   ├── Refresher            (periodic token refresh)
	│   └── RouteReloadService   (reloads routes when the session changes)
	├── TrackingSupervisor ("tracking-layer")
	│   ├── Tracker              (live location updates)
	│   └── Relay                (event bus -> websocket hub)
	└── BridgeSupervisor ("bridge-layer")
	    ├── Hub                  (websocket clients)
	    └── HTTPServerService    (live-map bridge)

Supervisor events are logged through sutureslog with the component slog
logger from the logging package.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddSessionService(session.NewRefresher(manager, cfg.Session.RefreshInterval))
	tree.AddBridgeService(services.NewHTTPServerService(server, 10*time.Second))
	return tree.Serve(ctx)
*/
package supervisor
