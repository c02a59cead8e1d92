package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/windowlimit/internal/analytics"
)

const createEventsTable = `
	CREATE TABLE IF NOT EXISTS rate_limit_events (
		id          UUID PRIMARY KEY,
		identifier  TEXT NOT NULL,
		scope       TEXT,
		count       BIGINT NOT NULL,
		max         BIGINT NOT NULL,
		window_ms   BIGINT NOT NULL,
		retry_ms    BIGINT NOT NULL,
		path        TEXT,
		method      TEXT,
		client_ip   TEXT,
		user_agent  TEXT,
		request_id  TEXT,
		occurred_at TIMESTAMPTZ NOT NULL
	)
`

// Postgres persists analytics events to PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a new PostgreSQL analytics store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the events table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, createEventsTable)

	return err
}

// SaveLimitExceeded inserts the event; redelivered events are ignored by id.
func (p *Postgres) SaveLimitExceeded(ctx context.Context, event *analytics.LimitExceededEvent) error {
	query := `
		INSERT INTO rate_limit_events (
			id, identifier, scope, count, max, window_ms, retry_ms,
			path, method, client_ip, user_agent, request_id, occurred_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := p.pool.Exec(ctx, query,
		event.ID,
		event.Identifier,
		nullableString(event.Scope),
		event.Count,
		event.Limit,
		event.Window.Milliseconds(),
		event.RetryAfter.Milliseconds(),
		nullableString(event.Path),
		nullableString(event.Method),
		nullableString(event.ClientIP),
		nullableString(event.UserAgent),
		nullableString(event.RequestID),
		event.OccurredAt,
	)

	return err
}

// Shutdown closes the pool.
func (p *Postgres) Shutdown() error {
	p.pool.Close()

	return nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

// Compile-time check.
var _ analytics.Store = (*Postgres)(nil)
