// Package relay manages individual WebSocket connections, handling the
// read/write pumps, event dispatch, and lifecycle control for each client.
package relay

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Client is one live WebSocket connection. It owns the buffered outbound
// queue and feeds decoded events into the hub; the hub only ever sees the
// Sink side of it.
type Client struct {
	id   string
	conn *websocket.Conn
	hub  *Hub
	send chan []byte
	addr string
	log  zerolog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient wraps an upgraded connection with a transport-assigned
// identifier and a buffered send queue.
func NewClient(conn *websocket.Conn, hub *Hub, addr string, log zerolog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:   id,
		conn: conn,
		hub:  hub,
		send: make(chan []byte, 256),
		addr: addr,
		log:  log.With().Str("conn", id).Str("addr", addr).Logger(),
		done: make(chan struct{}),
	}
}

// ID returns the connection identifier assigned at accept time.
func (c *Client) ID() string {
	return c.id
}

// TrySend enqueues an outbound frame without blocking. A full queue or a
// closing connection drops the frame; broadcast delivery is at-most-once.
func (c *Client) TrySend(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close tears the connection down. Idempotent; both pumps observe the
// done channel and exit.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// readPump consumes inbound frames until the connection dies, then
// deregisters the connection. Duplicate disconnect signals are no-ops
// downstream.
func (c *Client) readPump() {
	defer func() {
		c.hub.Disconnect(c.id)
		c.Close()
	}()

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Error().Err(err).Msg("set read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		c.handleFrame(raw)
	}
}

// handleFrame decodes one envelope and runs the matching hub transition.
// All failure replies are scoped to this connection; nothing here touches
// the broadcast path.
func (c *Client) handleFrame(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.log.Debug().Err(err).Msg("malformed frame")
		c.sendEvent(EventError, ErrorEvent{Message: "invalid event payload"})
		return
	}

	switch env.Event {
	case EventJoin:
		var req JoinRequest
		if len(env.Data) > 0 {
			_ = json.Unmarshal(env.Data, &req)
		}
		joined, err := c.hub.Join(c.id, c, req)
		if err != nil {
			c.sendEvent(EventError, ErrorEvent{Message: err.Error()})
			return
		}
		c.sendEvent(EventJoined, joined)

	case EventSend:
		var req SendRequest
		if len(env.Data) > 0 {
			_ = json.Unmarshal(env.Data, &req)
		}
		_, err := c.hub.Send(c.id, req)
		switch {
		case errors.Is(err, ErrNotJoined):
			c.sendEvent(EventError, ErrorEvent{Message: err.Error()})
		case err != nil:
			if env.AckID != 0 {
				c.sendAck(env.AckID, AckResult{Error: err.Error()})
			}
		default:
			if env.AckID != 0 {
				c.sendAck(env.AckID, AckResult{Success: true})
			}
		}

	default:
		c.log.Debug().Str("event", env.Event).Msg("ignoring unknown event")
	}
}

func (c *Client) sendEvent(event string, data any) {
	payload, err := marshalEnvelope(event, data, 0)
	if err != nil {
		c.log.Error().Err(err).Str("event", event).Msg("encode event")
		return
	}
	if !c.TrySend(payload) {
		c.log.Warn().Str("event", event).Msg("dropped event for slow connection")
	}
}

func (c *Client) sendAck(ackID int64, res AckResult) {
	payload, err := marshalEnvelope(EventAck, res, ackID)
	if err != nil {
		c.log.Error().Err(err).Msg("encode ack")
		return
	}
	if !c.TrySend(payload) {
		c.log.Warn().Msg("dropped ack for slow connection")
	}
}

// writePump drains the send queue and keeps the connection alive with
// periodic pings. Exits when the connection closes or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait))
			return

		case payload := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				if !isExpectedCloseError(err) {
					c.log.Debug().Err(err).Msg("write failed")
				}
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn().Msg("frame exceeded maximum message size")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Debug().Err(err).Msg("client disconnected")
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		c.log.Debug().Err(err).Msg("connection closed")
	default:
		c.log.Warn().Err(err).Msg("websocket read error")
	}
}

// isExpectedCloseError checks for the error strings a normal teardown
// produces, which are not worth surfacing at warn level.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "websocket: close sent") ||
		strings.Contains(msg, "broken pipe")
}
