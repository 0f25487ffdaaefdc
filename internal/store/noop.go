package store

import (
	"context"

	"github.com/rs/zerolog"
)

// Noop discards every record. Used when no database is configured so the
// relay keeps its broadcast semantics without a store behind it.
type Noop struct {
	log zerolog.Logger
}

// NewNoop returns a store that logs and drops every save.
func NewNoop(log zerolog.Logger) *Noop {
	return &Noop{log: log.With().Str("component", "store").Logger()}
}

// Save drops the record.
func (n *Noop) Save(_ context.Context, rec Record) error {
	n.log.Debug().Str("order", rec.OrderID).Msg("persistence disabled, dropping message record")
	return nil
}

// Close is a no-op.
func (n *Noop) Close() {}
