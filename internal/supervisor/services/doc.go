// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

// Package services adapts waymark components that do not already speak
// suture's Serve(ctx) error to the supervisor tree.
//
// HTTPServerService turns ListenAndServe/Shutdown into Serve with a
// bounded graceful shutdown. RouteReloadService watches session changes on
// the event bus and reloads the route list for the new scope.
package services
