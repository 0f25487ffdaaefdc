package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Postgres stores message records in a Postgres table via a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewPostgres connects to Postgres and verifies connectivity.
func NewPostgres(ctx context.Context, url string, log zerolog.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{pool: pool, log: log.With().Str("component", "store").Logger()}, nil
}

// EnsureSchema creates the message table when it does not exist yet.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS order_messages (
			id         BIGSERIAL PRIMARY KEY,
			order_id   TEXT   NOT NULL,
			sender_id  TEXT   NOT NULL,
			type       TEXT   NOT NULL,
			json       TEXT   NOT NULL,
			timestamp  BIGINT NOT NULL,
			platform   TEXT   NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Save inserts one message record.
func (p *Postgres) Save(ctx context.Context, rec Record) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO order_messages (order_id, sender_id, type, json, timestamp, platform)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.OrderID, rec.SenderID, rec.Type, rec.JSON, rec.Timestamp, rec.Platform)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}
