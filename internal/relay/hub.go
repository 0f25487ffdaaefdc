// Package relay coordinates joins, message broadcast, persistence dispatch,
// and connection cleanup for the order chat relay via the Hub type.
package relay

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ordersync/relay/internal/store"
)

// Hub runs the per-connection session state machine and the broadcast
// engine on top of the Registry. Persistence is dispatched fire-and-forget
// and never holds a registry lock or delays an acknowledgment.
type Hub struct {
	log        zerolog.Logger
	registry   *Registry
	store      store.Store
	bus        *Bus
	instanceID string

	saveTimeout time.Duration
	saves       sync.WaitGroup
}

// NewHub wires a hub with its store and optional cross-instance bus.
// Passing a nil bus runs the hub in single-process mode.
func NewHub(log zerolog.Logger, cfg Config, st store.Store, bus *Bus) *Hub {
	saveTimeout := cfg.SaveTimeout
	if saveTimeout <= 0 {
		saveTimeout = 5 * time.Second
	}
	return &Hub{
		log:         log.With().Str("component", "hub").Logger(),
		registry:    NewRegistry(),
		store:       st,
		bus:         bus,
		instanceID:  uuid.NewString(),
		saveTimeout: saveTimeout,
	}
}

// Registry exposes the membership table for handlers and tests.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Join validates the join request and registers the connection in its
// order room. A repeated join re-runs the transition and may move the
// connection to a different room; the stored tuple is overwritten either
// way. The reply is scoped to the joining connection only.
func (h *Hub) Join(connID string, sink Sink, req JoinRequest) (JoinedEvent, error) {
	if req.OrderID == "" || req.UserID == "" {
		return JoinedEvent{}, ErrMissingJoinFields
	}

	platform := req.Platform
	if platform == "" {
		platform = DefaultPlatform
	}
	msgType := req.Type
	if msgType == "" {
		msgType = DefaultMessageType
	}

	roomID := RoomID(req.OrderID)
	h.registry.Register(connID, sink, Session{
		ConnID:      connID,
		OrderID:     req.OrderID,
		RoomID:      roomID,
		UserID:      req.UserID,
		Platform:    platform,
		MessageType: msgType,
	})

	h.log.Info().
		Str("conn", connID).
		Str("room", roomID).
		Str("user", req.UserID).
		Msg("user joined order room")

	return JoinedEvent{Room: roomID, UserID: req.UserID}, nil
}

// Send relays a message from a joined connection to its whole room,
// including the sender. The broadcast completes before Send returns, so
// the caller's acknowledgment never waits on persistence; the save runs
// detached afterwards and is skipped for server-originated platforms.
func (h *Hub) Send(connID string, req SendRequest) (Message, error) {
	sess, ok := h.registry.Lookup(connID)
	if !ok {
		return Message{}, ErrNotJoined
	}
	if req.Message == "" {
		return Message{}, ErrEmptyMessage
	}

	msg := Message{
		ID:        "0",
		SenderID:  sess.UserID,
		Type:      sess.MessageType,
		Payload:   MessagePayload{Message: req.Message, SenderID: sess.UserID},
		Timestamp: time.Now().UnixMilli(),
		Platform:  sess.Platform,
	}

	h.broadcast(sess.RoomID, msg)
	h.persist(sess.OrderID, msg)
	return msg, nil
}

// Disconnect removes the connection's registration, if any. Safe to call
// multiple times; duplicate disconnects are no-ops.
func (h *Hub) Disconnect(connID string) {
	if sess, ok := h.registry.Deregister(connID); ok {
		h.log.Info().
			Str("conn", connID).
			Str("room", sess.RoomID).
			Str("user", sess.UserID).
			Msg("user disconnected from order room")
	}
}

// Inject performs the HTTP one-shot: validate, build the message with a
// timestamp-derived id, broadcast to the order room, and optionally
// persist. The default platform is "server", which is never persisted.
func (h *Hub) Inject(req InjectRequest) (Message, error) {
	if req.OrderID == "" || req.UserID == "" || req.Message == "" {
		return Message{}, ErrMissingInjectFields
	}

	platform := req.Platform
	if platform == "" {
		platform = PlatformServer
	}
	msgType := req.Type
	if msgType == "" {
		msgType = DefaultMessageType
	}

	now := time.Now().UnixMilli()
	msg := Message{
		ID:        strconv.FormatInt(now, 10),
		SenderID:  req.UserID,
		Type:      msgType,
		Payload:   MessagePayload{Message: req.Message, SenderID: req.UserID},
		Timestamp: now,
		Platform:  platform,
	}

	h.broadcast(RoomID(req.OrderID), msg)
	h.persist(req.OrderID, msg)
	return msg, nil
}

// Run forwards cross-instance bus traffic into local rooms. It returns
// immediately when no bus is configured, and otherwise blocks until ctx
// is cancelled.
func (h *Hub) Run(ctx context.Context) {
	if h.bus == nil {
		return
	}
	h.bus.Subscribe(ctx, func(m BusMessage) {
		if m.Origin == h.instanceID {
			return
		}
		h.registry.Broadcast(m.Room, m.Payload)
	})
}

// Shutdown closes every live connection and waits for in-flight
// persistence calls to drain, up to timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	n := h.registry.CloseAll()
	h.log.Info().Int("connections", n).Msg("closed client connections")

	done := make(chan struct{})
	go func() {
		h.saves.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		h.log.Warn().Msg("shutdown timeout reached with persistence calls in flight")
		return context.DeadlineExceeded
	}
}

// broadcast fans the event out to the local room and, when a bus is
// configured, replicates it to the other relay instances.
func (h *Hub) broadcast(roomID string, msg Message) {
	payload, err := marshalEnvelope(EventNewMessage, msg, 0)
	if err != nil {
		h.log.Error().Err(err).Msg("encode broadcast event")
		return
	}

	delivered := h.registry.Broadcast(roomID, payload)
	h.log.Debug().
		Str("room", roomID).
		Int("delivered", delivered).
		Msg("order message broadcast")

	if h.bus != nil {
		bm := BusMessage{Origin: h.instanceID, Room: roomID, Payload: payload}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := h.bus.Publish(ctx, bm); err != nil {
				h.log.Error().Err(err).Str("room", roomID).Msg("bus publish failed")
			}
		}()
	}
}

// persist dispatches the best-effort save on its own goroutine. Failures
// are logged and swallowed; the broadcast and ack have already happened.
func (h *Hub) persist(orderID string, msg Message) {
	if msg.Platform == PlatformServer {
		return
	}

	rec := store.Record{
		OrderID:   orderID,
		SenderID:  msg.SenderID,
		Type:      msg.Type,
		JSON:      encodePayload(msg.Payload),
		Timestamp: msg.Timestamp,
		Platform:  msg.Platform,
	}

	h.saves.Add(1)
	go func() {
		defer h.saves.Done()
		ctx, cancel := context.WithTimeout(context.Background(), h.saveTimeout)
		defer cancel()
		if err := h.store.Save(ctx, rec); err != nil {
			h.log.Error().Err(err).
				Str("order", orderID).
				Str("sender", msg.SenderID).
				Msg("failed to save message")
		}
	}()
}
