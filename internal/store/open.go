package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/serroba/windowlimit/internal/ratelimit"
)

// ErrUnsupportedScheme is returned by Open for targets it cannot map to a store.
var ErrUnsupportedScheme = errors.New("unsupported store scheme")

// CounterStore is a ratelimit.Store with a connection lifecycle.
type CounterStore interface {
	ratelimit.Store
	Ping(ctx context.Context) error
	Close() error
}

// Sweeper is implemented by stores whose expired counters need explicit removal.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// Open parses target and returns a store handle without touching the network.
// Supported schemes: redis, rediss, postgres, postgresql, memory.
// Failures are returned as *ratelimit.ConnectionError.
func Open(target string) (CounterStore, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, &ratelimit.ConnectionError{Target: target, Err: err}
	}

	switch u.Scheme {
	case "redis", "rediss":
		opts, err := redis.ParseURL(target)
		if err != nil {
			return nil, &ratelimit.ConnectionError{Target: u.Redacted(), Err: err}
		}

		return &RedisCounterStore{client: redis.NewClient(opts), target: u.Redacted()}, nil
	case "postgres", "postgresql":
		cfg, err := pgxpool.ParseConfig(target)
		if err != nil {
			return nil, &ratelimit.ConnectionError{Target: u.Redacted(), Err: err}
		}

		pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
		if err != nil {
			return nil, &ratelimit.ConnectionError{Target: u.Redacted(), Err: err}
		}

		return NewPostgresCounterStore(pool), nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, &ratelimit.ConnectionError{
			Target: u.Redacted(),
			Err:    fmt.Errorf("%w %q", ErrUnsupportedScheme, u.Scheme),
		}
	}
}

// OpenLimiter opens target and builds a WindowedLimiter on it.
// The caller owns the returned store and must close it.
func OpenLimiter(
	target, prefix string, limit int64, window time.Duration, opts ...ratelimit.Option,
) (*ratelimit.WindowedLimiter, CounterStore, error) {
	s, err := Open(target)
	if err != nil {
		return nil, nil, err
	}

	limiter, err := ratelimit.New(s, prefix, limit, window, opts...)
	if err != nil {
		_ = s.Close()

		return nil, nil, err
	}

	return limiter, s, nil
}

// classify turns connection-level failures into *ratelimit.ConnectionError.
// Everything else is returned as is for the limiter to wrap.
func classify(target string, err error) error {
	if err == nil {
		return nil
	}

	var connectErr *pgconn.ConnectError

	if errors.Is(err, redis.ErrClosed) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.As(err, &connectErr) ||
		isDialError(err) {
		return &ratelimit.ConnectionError{Target: target, Err: err}
	}

	return err
}

// isDialError matches failures to establish a connection; read and write
// timeouts on an open connection stay store errors.
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}

	return false
}
