// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package session

import (
	"context"
	"time"

	"github.com/tomtom215/waymark/internal/logging"
)

// Refresher renews the access token on a fixed interval while a token
// exists. It implements suture.Service.
type Refresher struct {
	manager  *Manager
	interval time.Duration
	name     string
}

// NewRefresher creates a refresher for m. A non-positive interval falls
// back to 20 minutes.
func NewRefresher(m *Manager, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = 20 * time.Minute
	}
	return &Refresher{manager: m, interval: interval, name: "token-refresher"}
}

// Serve runs until ctx is canceled. Refresh failures are logged by the
// manager and never stop the loop.
func (r *Refresher) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	logging.Debug().Dur("interval", r.interval).Msg("Token refresher started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if r.manager.Token() == "" {
				continue
			}
			_ = r.manager.RefreshToken(logging.ContextWithNewCorrelationID(ctx))
		}
	}
}

// String implements fmt.Stringer for suture logs.
func (r *Refresher) String() string {
	return r.name
}
