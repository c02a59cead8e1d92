package store

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/windowlimit/internal/ratelimit"
)

//go:embed schema.sql
var schemaSQL string

// PostgresCounterStore is a PostgreSQL implementation of ratelimit.Store.
//
// IncrementWindow is a single upsert; the row lock taken by ON CONFLICT
// serializes concurrent increments of the same key. Expired rows are treated
// as absent and removed by Sweep.
type PostgresCounterStore struct {
	pool *pgxpool.Pool
}

// NewPostgresCounterStore creates a new PostgreSQL-backed counter store.
func NewPostgresCounterStore(pool *pgxpool.Pool) *PostgresCounterStore {
	return &PostgresCounterStore{pool: pool}
}

// EnsureSchema creates the counters table if it does not exist.
func (p *PostgresCounterStore) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schemaSQL)

	return classify("postgres", err)
}

func (p *PostgresCounterStore) IncrementWindow(
	ctx context.Context, key string, window time.Duration,
) (ratelimit.Counter, error) {
	query := `
		INSERT INTO rate_limit_counters AS c (key, count, expires_at)
		VALUES ($1, 1, now() + $2::int * interval '1 second')
		ON CONFLICT (key) DO UPDATE SET
			count = CASE WHEN c.expires_at <= now() THEN 1 ELSE c.count + 1 END,
			expires_at = CASE WHEN c.expires_at <= now() THEN EXCLUDED.expires_at ELSE c.expires_at END
		RETURNING count, EXTRACT(EPOCH FROM (expires_at - now()))::float8
	`

	var (
		counter ratelimit.Counter
		seconds float64
	)

	err := p.pool.QueryRow(ctx, query, key, ratelimit.WindowSeconds(window)).Scan(&counter.Count, &seconds)
	if err != nil {
		return ratelimit.Counter{}, classify("postgres", err)
	}

	counter.TTL = time.Duration(seconds * float64(time.Second))

	return counter, nil
}

func (p *PostgresCounterStore) Get(ctx context.Context, key string) (int64, error) {
	query := `
		SELECT count
		FROM rate_limit_counters
		WHERE key = $1 AND expires_at > now()
	`

	var count int64

	err := p.pool.QueryRow(ctx, query, key).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}

		return 0, classify("postgres", err)
	}

	return count, nil
}

func (p *PostgresCounterStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	query := `
		SELECT EXTRACT(EPOCH FROM (expires_at - now()))::float8
		FROM rate_limit_counters
		WHERE key = $1 AND expires_at > now()
	`

	var seconds float64

	err := p.pool.QueryRow(ctx, query, key).Scan(&seconds)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ratelimit.TTLNoKey, nil
		}

		return 0, classify("postgres", err)
	}

	return time.Duration(seconds * float64(time.Second)), nil
}

// Sweep deletes expired counters and returns how many were removed.
func (p *PostgresCounterStore) Sweep(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM rate_limit_counters WHERE expires_at <= now()`)
	if err != nil {
		return 0, classify("postgres", err)
	}

	return tag.RowsAffected(), nil
}

// Ping checks PostgreSQL connectivity.
func (p *PostgresCounterStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close closes the pool.
func (p *PostgresCounterStore) Close() error {
	p.pool.Close()

	return nil
}

// Compile-time checks.
var (
	_ CounterStore = (*PostgresCounterStore)(nil)
	_ Sweeper      = (*PostgresCounterStore)(nil)
)
