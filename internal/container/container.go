package container

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR format support for huma
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/windowlimit/internal/analytics"
	analyticsstore "github.com/serroba/windowlimit/internal/analytics/store"
	"github.com/serroba/windowlimit/internal/handlers"
	"github.com/serroba/windowlimit/internal/health"
	"github.com/serroba/windowlimit/internal/messaging"
	"github.com/serroba/windowlimit/internal/metrics"
	"github.com/serroba/windowlimit/internal/middleware"
	"github.com/serroba/windowlimit/internal/ratelimit"
	"github.com/serroba/windowlimit/internal/store"
	"go.uber.org/zap"
)

const setupTimeout = 10 * time.Second

// Options configures both commands. humacli maps every field to a flag and a
// SERVICE_* environment variable.
type Options struct {
	Port          int    `default:"8888"                      help:"Port to listen on"                                      short:"p"`
	StoreURL      string `default:"redis://localhost:6379/0"  help:"Counter store URL (redis://, postgres://, memory://)"  short:"s"`
	Prefix        string `default:"ratelimit"                 help:"Key prefix for all counters"`
	Limit         int64  `default:"100"                       help:"Calls per window for the /limits API and the HTTP limiter without a policy" short:"l"`
	Window        string `default:"1m"                        help:"Window length for the /limits API and the HTTP limiter without a policy" short:"w"`
	Policy        string `default:"global=600/1m,write=60/1m" help:"HTTP rate limit policy, empty for a single window"`
	SweepSchedule string `default:"@every 5m"                 help:"Cron schedule purging expired counters"`
	RedisAddr     string `default:"localhost:6379"            help:"Redis address for the event stream"                     short:"r"`
	DatabaseURL   string `default:""                          help:"PostgreSQL URL for rejection events, empty to log them"`
	EventsEnabled bool   `default:"true"                      help:"Publish rejection events"`
	ConsumerGroup string `default:"windowlimit-analytics"     help:"Redis stream consumer group"`
	LogFormat     string `default:"console"                   help:"Log format: json or console"`
}

// WindowDuration parses the configured window.
func (o *Options) WindowDuration() (time.Duration, error) {
	window, err := time.ParseDuration(o.Window)
	if err != nil {
		return 0, fmt.Errorf("%w: window %q: %w", ratelimit.ErrInvalidConfig, o.Window, err)
	}

	return window, nil
}

// Store owns the counter store and its sweep schedule.
type Store struct {
	store.CounterStore
	sweeper *store.SweepScheduler
}

// Shutdown stops sweeping and closes the store.
func (s *Store) Shutdown() error {
	if s.sweeper != nil {
		_ = s.sweeper.Shutdown()
	}

	return s.Close()
}

// Redis is the client backing the event stream.
type Redis struct {
	redis.UniversalClient
}

// Shutdown closes the client.
func (r *Redis) Shutdown() error {
	return r.Close()
}

// HTTPLimiter marks the limiter used by the HTTP middleware when no policy is set.
type HTTPLimiter struct {
	*ratelimit.WindowedLimiter
}

// LoggerPackage provides the service logger.
func LoggerPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*zap.Logger, error) {
		opts := do.MustInvoke[*Options](i)

		if opts.LogFormat == "json" {
			return zap.NewProduction()
		}

		return zap.NewDevelopment()
	})
}

// StorePackage opens the counter store, creates its schema and schedules sweeps.
func StorePackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*Store, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		counters, err := store.Open(opts.StoreURL)
		if err != nil {
			return nil, err
		}

		ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
		defer cancel()

		if pg, ok := counters.(*store.PostgresCounterStore); ok {
			if err := pg.EnsureSchema(ctx); err != nil {
				_ = counters.Close()

				return nil, fmt.Errorf("failed to create counter schema: %w", err)
			}
		}

		s := &Store{CounterStore: counters}

		if sweeper, ok := counters.(store.Sweeper); ok {
			s.sweeper = store.NewSweepScheduler(sweeper, opts.SweepSchedule, logger)
			if err := s.sweeper.Start(context.Background()); err != nil {
				_ = counters.Close()

				return nil, err
			}
		}

		logger.Info("counter store ready", zap.String("scheme", schemeOf(opts.StoreURL)))

		return s, nil
	})
}

// MetricsPackage provides the Prometheus collector.
func MetricsPackage(i *do.Injector) {
	do.Provide(i, func(_ *do.Injector) (*metrics.Collector, error) {
		return metrics.NewCollector(nil), nil
	})
}

// RateLimitPackage provides the limiter behind the /limits API, the HTTP
// policy limiter and the single-window HTTP limiter.
func RateLimitPackage(i *do.Injector) {
	limiterOptions := func(i *do.Injector) []ratelimit.Option {
		return []ratelimit.Option{
			ratelimit.WithLogger(do.MustInvoke[*zap.Logger](i)),
			ratelimit.WithRecorder(do.MustInvoke[*metrics.Collector](i)),
		}
	}

	do.Provide(i, func(i *do.Injector) (*ratelimit.WindowedLimiter, error) {
		opts := do.MustInvoke[*Options](i)
		counters := do.MustInvoke[*Store](i)

		window, err := opts.WindowDuration()
		if err != nil {
			return nil, err
		}

		return ratelimit.New(counters, opts.Prefix+":api", opts.Limit, window, limiterOptions(i)...)
	})

	do.Provide(i, func(i *do.Injector) (*HTTPLimiter, error) {
		opts := do.MustInvoke[*Options](i)
		counters := do.MustInvoke[*Store](i)

		window, err := opts.WindowDuration()
		if err != nil {
			return nil, err
		}

		limiter, err := ratelimit.New(counters, opts.Prefix+":http", opts.Limit, window, limiterOptions(i)...)
		if err != nil {
			return nil, err
		}

		return &HTTPLimiter{WindowedLimiter: limiter}, nil
	})

	do.Provide(i, func(i *do.Injector) (*ratelimit.PolicyLimiter, error) {
		opts := do.MustInvoke[*Options](i)
		counters := do.MustInvoke[*Store](i)

		policy, err := ratelimit.ParsePolicy(opts.Policy)
		if err != nil {
			return nil, err
		}

		return ratelimit.NewPolicyLimiter(counters, opts.Prefix+":http", policy, limiterOptions(i)...)
	})
}

// RedisPackage provides the Redis client used by the event stream.
func RedisPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*Redis, error) {
		opts := do.MustInvoke[*Options](i)

		return &Redis{UniversalClient: redis.NewClient(&redis.Options{Addr: opts.RedisAddr})}, nil
	})
}

// PublisherGroupPackage provides the stream publisher and the typed publish
// function for rejection events. With events disabled the function discards.
func PublisherGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*messaging.PublisherGroup, error) {
		client := do.MustInvoke[*Redis](i)
		logger := do.MustInvoke[*zap.Logger](i)

		publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
			Client: client.UniversalClient,
		}, messaging.NewZapLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create publisher: %w", err)
		}

		return messaging.NewPublisherGroup(publisher), nil
	})

	do.Provide(i, func(i *do.Injector) (messaging.Publish[analytics.LimitExceededEvent], error) {
		opts := do.MustInvoke[*Options](i)
		if !opts.EventsEnabled {
			return messaging.Discard[analytics.LimitExceededEvent](), nil
		}

		group := do.MustInvoke[*messaging.PublisherGroup](i)

		return messaging.NewPublishFunc[analytics.LimitExceededEvent](group.Publisher(), analytics.TopicLimitExceeded), nil
	})
}

// AnalyticsPackage provides the store rejection events are written to:
// PostgreSQL when a database URL is configured, the log otherwise.
func AnalyticsPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (analytics.Store, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		if opts.DatabaseURL == "" {
			return analyticsstore.NewNoop(logger), nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
		defer cancel()

		pool, err := pgxpool.New(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}

		events := analyticsstore.NewPostgres(pool)
		if err := events.EnsureSchema(ctx); err != nil {
			pool.Close()

			return nil, fmt.Errorf("failed to create events schema: %w", err)
		}

		return events, nil
	})
}

// ConsumerGroupPackage provides the consumers of rejection events.
func ConsumerGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*messaging.ConsumerGroup, error) {
		opts := do.MustInvoke[*Options](i)
		client := do.MustInvoke[*Redis](i)
		logger := do.MustInvoke[*zap.Logger](i)
		events := do.MustInvoke[analytics.Store](i)

		subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
			Client:        client.UniversalClient,
			ConsumerGroup: opts.ConsumerGroup,
		}, messaging.NewZapLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create subscriber: %w", err)
		}

		group := messaging.NewConsumerGroup(subscriber, logger)
		group.Add(messaging.NewConsumer(
			subscriber,
			analytics.TopicLimitExceeded,
			analytics.NewLimitExceededHandler(events),
			logger,
		))

		return group, nil
	})
}

// HTTPPackage provides the router and the API with middleware and routes registered.
func HTTPPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*chi.Mux, error) {
		collector := do.MustInvoke[*metrics.Collector](i)

		router := chi.NewMux()
		router.Handle("/metrics", collector.Handler())

		return router, nil
	})

	do.Provide(i, func(i *do.Injector) (huma.API, error) {
		opts := do.MustInvoke[*Options](i)
		router := do.MustInvoke[*chi.Mux](i)
		logger := do.MustInvoke[*zap.Logger](i)
		counters := do.MustInvoke[*Store](i)
		limiter := do.MustInvoke[*ratelimit.WindowedLimiter](i)
		publish := do.MustInvoke[messaging.Publish[analytics.LimitExceededEvent]](i)

		api := humachi.New(router, huma.DefaultConfig("Window Limit", "1.0.0"))
		api.UseMiddleware(middleware.RequestMeta(api))

		if opts.Policy != "" {
			policy := do.MustInvoke[*ratelimit.PolicyLimiter](i)
			api.UseMiddleware(middleware.PolicyRateLimiter(
				api, policy, ratelimit.NewOperationScopeResolver(), publish, logger,
			))
		} else {
			single := do.MustInvoke[*HTTPLimiter](i)
			api.UseMiddleware(middleware.RateLimiter(api, single.WindowedLimiter, publish, logger))
		}

		handlers.RegisterRoutes(api, handlers.NewLimitHandler(limiter, publish, logger))

		checks := health.NewHandler(counters)
		if opts.EventsEnabled {
			checks.Add("events", health.NewRedisChecker(do.MustInvoke[*Redis](i)))
		}

		health.RegisterRoutes(api, checks)

		return api, nil
	})
}

func schemeOf(target string) string {
	scheme, _, _ := strings.Cut(target, ":")

	return scheme
}
