// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package websocket

import (
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tomtom215/waymark/internal/logging"
)

// Connection timing. Map viewers are expected to stay open for hours,
// so liveness is driven by protocol pings rather than payload traffic.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	// sendBuffer holds location updates queued for a slow viewer before
	// the hub drops it.
	sendBuffer = 256
)

var clientIDCounter atomic.Uint64

// Client is one connected map viewer.
type Client struct {
	id   uint64
	hub  *Hub
	conn *websocket.Conn
	send chan Message
	log  zerolog.Logger
}

// NewClient wraps an upgraded connection. Register it with the hub
// before calling Start.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	id := clientIDCounter.Add(1)
	return &Client{
		id:   id,
		hub:  hub,
		conn: conn,
		send: make(chan Message, sendBuffer),
		log: logging.WithComponent("map-viewer").With().
			Uint64("viewer", id).
			Str("remote", conn.RemoteAddr().String()).
			Logger(),
	}
}

// ID returns the client's id.
func (c *Client) ID() uint64 {
	return c.id
}

// Start runs the connection until either side closes it.
func (c *Client) Start() {
	c.log.Debug().Msg("Map viewer connected")
	go c.deliver()
	go c.listen()
}

// listen handles inbound frames. Viewers only send application-level
// pings; any other message is ignored.
func (c *Client) listen() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
		c.log.Debug().Msg("Map viewer disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	extend := func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
	if err := extend(""); err != nil {
		c.log.Warn().Err(err).Msg("Failed to arm read deadline")
		return
	}
	c.conn.SetPongHandler(extend)

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("Map viewer connection dropped")
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Debug().Err(err).Msg("Ignoring malformed viewer message")
			continue
		}
		if msg.Type == MessageTypePing {
			c.reply(Message{Type: MessageTypePong})
		}
	}
}

// reply queues msg without blocking the read side. A full queue means
// the hub is about to drop this viewer anyway.
func (c *Client) reply(msg Message) {
	select {
	case c.send <- msg:
	default:
	}
}

// deliver writes queued messages and keepalive pings. A closed send
// channel is the hub's signal to hang up.
func (c *Client) deliver() {
	keepalive := time.NewTicker(pingPeriod)
	defer func() {
		keepalive.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, open := <-c.send:
			if !open {
				c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				c.log.Warn().Err(err).Str("type", msg.Type).Msg("Failed to encode viewer message")
				continue
			}
			if err := c.write(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-keepalive.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(kind int, payload []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := c.conn.WriteMessage(kind, payload); err != nil {
		c.log.Debug().Err(err).Msg("Write to map viewer failed")
		return err
	}
	return nil
}
