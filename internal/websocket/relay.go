// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package websocket

import (
	"context"
	"fmt"

	"github.com/tomtom215/waymark/internal/events"
	"github.com/tomtom215/waymark/internal/logging"
)

// Subscriber is the consumer side of the event bus.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan events.Envelope, error)
}

// Relay forwards bus events to the hub. Each envelope becomes a message
// whose type is the event topic.
type Relay struct {
	bus    Subscriber
	hub    *Hub
	topics []string
}

// NewRelay relays topics (all known topics when empty) from bus to hub.
func NewRelay(bus Subscriber, hub *Hub, topics ...string) *Relay {
	if len(topics) == 0 {
		topics = []string{events.TopicLocationUpdated, events.TopicRoutesChanged, events.TopicSessionChanged}
	}
	return &Relay{bus: bus, hub: hub, topics: topics}
}

// Serve implements suture.Service.
func (r *Relay) Serve(ctx context.Context) error {
	merged := make(chan events.Envelope)
	for _, topic := range r.topics {
		ch, err := r.bus.Subscribe(ctx, topic)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		go func(ch <-chan events.Envelope) {
			for env := range ch {
				select {
				case merged <- env:
				case <-ctx.Done():
					return
				}
			}
		}(ch)
	}

	logging.Debug().Strs("topics", r.topics).Msg("Event relay started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-merged:
			r.hub.BroadcastJSON(env.Topic, env.Payload)
		}
	}
}

// String implements fmt.Stringer for suture logs.
func (r *Relay) String() string {
	return "event-relay"
}
