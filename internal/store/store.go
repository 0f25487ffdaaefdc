// Package store persists relayed messages to the external message store.
// Saves are best-effort: the relay dispatches them fire-and-forget and a
// failed save never reaches a connected client.
package store

import "context"

// Record is the persisted shape of one relayed message. JSON holds the
// raw serialized message text as it went over the wire.
type Record struct {
	OrderID   string `json:"order_id"`
	SenderID  string `json:"sender_id"`
	Type      string `json:"type"`
	JSON      string `json:"json"`
	Timestamp int64  `json:"timestamp"`
	Platform  string `json:"platform"`
}

// Store saves message records. Implementations must be safe for
// concurrent use.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Close()
}
