// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

// Package events is the in-process notification bus. Producers (the
// session manager, the route cache and the live tracker) publish JSON
// payloads on named topics; observers such as the live-map bridge
// subscribe to them.
//
// The bus is a Watermill GoChannel pub/sub. Delivery is fire-and-forget:
// a topic with no subscribers drops its messages.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/waymark/internal/logging"
)

// Topics.
const (
	TopicLocationUpdated = "location.updated"
	TopicRoutesChanged   = "routes.changed"
	TopicSessionChanged  = "session.changed"
)

// ErrClosed is returned when publishing on a closed bus.
var ErrClosed = errors.New("events: bus is closed")

// Publisher is the producer side of the bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Envelope is the JSON body of every message.
type Envelope struct {
	Topic     string          `json:"topic"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Bus wraps a GoChannel pub/sub.
type Bus struct {
	pubsub *gochannel.GoChannel
	closed atomic.Bool
}

// NewBus creates a bus whose subscriber channels buffer up to buffer
// messages each.
func NewBus(buffer int64) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	logger := watermill.NewSlogLogger(logging.NewComponentSlogLogger("events"))
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            buffer,
			BlockPublishUntilSubscriberAck: false,
		}, logger),
	}
}

// Publish marshals payload into an Envelope and publishes it on topic.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	if b.closed.Load() {
		return ErrClosed
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	body, err := json.Marshal(Envelope{Topic: topic, Timestamp: time.Now().UTC(), Payload: raw})
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", topic, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), body)
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		msg.Metadata.Set("correlation_id", id)
	}
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe returns decoded envelopes for topic until ctx is done.
// Messages are acked as soon as they are read.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan Envelope, error) {
	msgs, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	out := make(chan Envelope, 16)
	go func() {
		defer close(out)
		for msg := range msgs {
			var env Envelope
			if err := json.Unmarshal(msg.Payload, &env); err != nil {
				logging.Warn().Err(err).Str("topic", topic).Str("message_id", msg.UUID).Msg("Dropping malformed event")
				msg.Ack()
				continue
			}
			msg.Ack()
			select {
			case out <- env:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close shuts down the pub/sub. Subscriber channels are closed.
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.pubsub.Close()
}

// Discard is a Publisher that drops everything.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(context.Context, string, any) error { return nil }
