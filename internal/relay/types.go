// Package relay defines the wire-level event types exchanged between
// clients and the relay, shared across the client and hub logic.
package relay

import (
	"encoding/json"
	"errors"
)

// Event names carried in the envelope's "event" field.
const (
	EventJoin       = "join"
	EventSend       = "send"
	EventJoined     = "joined"
	EventError      = "error"
	EventNewMessage = "new_message"
	EventAck        = "ack"
)

// Defaults applied when a join or inject request omits the optional fields.
const (
	DefaultPlatform    = "web"
	DefaultMessageType = "chat-message"

	// PlatformServer marks messages originating from the trusted backend.
	// Such messages are never persisted by the relay.
	PlatformServer = "server"
)

var (
	// ErrMissingJoinFields is returned when a join request omits the order
	// or user identifier.
	ErrMissingJoinFields = errors.New("order ID and user ID are required")

	// ErrNotJoined is returned when a connection sends before joining a room.
	ErrNotJoined = errors.New("join a room before sending messages")

	// ErrEmptyMessage is returned when a send request carries no content.
	ErrEmptyMessage = errors.New("message content is required")

	// ErrMissingInjectFields is returned when the HTTP inject path omits a
	// required field.
	ErrMissingInjectFields = errors.New("order ID, user ID, and message are required")
)

// Envelope is the framing for every WebSocket frame in both directions.
// AckID, when non-zero on a send, requests a one-shot ack reply scoped to
// the calling connection.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID int64           `json:"ackId,omitempty"`
}

// JoinRequest is the payload of an inbound join event.
type JoinRequest struct {
	OrderID  string `json:"orderId"`
	UserID   string `json:"userId"`
	Platform string `json:"platform"`
	Type     string `json:"type"`
}

// SendRequest is the payload of an inbound send event.
type SendRequest struct {
	Message string `json:"message"`
}

// InjectRequest is the body of the HTTP POST /api/send-message path.
type InjectRequest struct {
	OrderID  string `json:"orderId"`
	UserID   string `json:"userId"`
	Message  string `json:"message"`
	Platform string `json:"platform"`
	Type     string `json:"type"`
}

// JoinedEvent acknowledges a successful join to the joining connection only.
type JoinedEvent struct {
	Room   string `json:"room"`
	UserID string `json:"userId"`
}

// ErrorEvent reports a validation or state error to a single connection.
type ErrorEvent struct {
	Message string `json:"message"`
}

// AckResult is the one-shot reply to a send that requested an ack.
type AckResult struct {
	Success bool   `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

// MessagePayload carries the human-readable content of a relayed message.
type MessagePayload struct {
	Message  string `json:"message"`
	SenderID string `json:"senderId"`
}

// Message is the broadcast event delivered to every member of a room.
// The id is advisory and not unique: "0" for socket-originated messages,
// an epoch-millis string for HTTP-injected ones. Timestamp is milliseconds
// since epoch, assigned by the relay at broadcast time.
type Message struct {
	ID        string         `json:"id"`
	SenderID  string         `json:"senderId"`
	Type      string         `json:"type"`
	Payload   MessagePayload `json:"payload"`
	Timestamp int64          `json:"timestamp"`
	Platform  string         `json:"platform"`
}

// RoomID derives the room identifier for an order conversation.
func RoomID(orderID string) string {
	return "order_" + orderID
}

// encodePayload renders the payload the way it is persisted: the raw
// serialized message text.
func encodePayload(p MessagePayload) string {
	raw, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(raw)
}

// marshalEnvelope encodes an outbound event into a single wire frame.
func marshalEnvelope(event string, data any, ackID int64) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw, AckID: ackID})
}
