// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

// Package models holds the data shared across waymark: routes and places,
// sessions and credentials, device locations and search results. JSON tags
// match the layout persisted in the key-value store.
package models
