// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/waymark/internal/events"
	"github.com/tomtom215/waymark/internal/logging"
	"github.com/tomtom215/waymark/internal/metrics"
)

// ErrAlreadyTracking is returned by StartLiveTracking when a watch is
// running.
var ErrAlreadyTracking = errors.New("live tracking is already running")

// Tracker watches the position source and publishes location.updated
// events. A source error ends the watch; Err reports it.
type Tracker struct {
	locator   *Locator
	publisher events.Publisher
	interval  time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewTracker creates a tracker polling every interval.
func NewTracker(locator *Locator, publisher events.Publisher, interval time.Duration) *Tracker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &Tracker{locator: locator, publisher: publisher, interval: interval}
}

// StartLiveTracking begins watching in the background.
func (t *Tracker) StartLiveTracking(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return ErrAlreadyTracking
	}

	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.cancel = cancel
	t.done = make(chan struct{})
	t.err = nil

	go func(done chan struct{}) {
		defer close(done)
		err := t.watch(wctx)
		t.mu.Lock()
		if err != nil && !errors.Is(err, context.Canceled) {
			t.err = err
		}
		t.cancel = nil
		t.mu.Unlock()
		cancel()
	}(t.done)
	return nil
}

// StopLiveTracking stops the watch and waits for it to exit.
func (t *Tracker) StopLiveTracking() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether a watch is active.
func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// Err returns the error that terminated the last watch, if any.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Serve runs the watch under a supervisor. A source error is final, so
// it is returned with suture.ErrDoNotRestart.
func (t *Tracker) Serve(ctx context.Context) error {
	err := t.watch(ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		return ctx.Err()
	}
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
	return errors.Join(err, suture.ErrDoNotRestart)
}

// String implements fmt.Stringer for suture logs.
func (t *Tracker) String() string {
	return "live-tracker"
}

// watch polls until ctx ends or the source fails.
func (t *Tracker) watch(ctx context.Context) error {
	log := logging.Ctx(ctx)
	log.Info().Dur("interval", t.interval).Msg("Live tracking started")
	defer log.Info().Msg("Live tracking stopped")

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		if err := t.update(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Msg("Live tracking terminated")
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (t *Tracker) update(ctx context.Context) error {
	pos, err := t.locator.acquire(ctx)
	if err != nil {
		return err
	}
	loc := t.locator.label(ctx, pos)

	t.locator.mu.Lock()
	t.locator.last = pos
	t.locator.mu.Unlock()

	metrics.LocationUpdates.Inc()
	if err := t.publisher.Publish(ctx, events.TopicLocationUpdated, loc); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Msg("Failed to publish location update")
	}
	return nil
}
