package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/utafrali/storefront-ratings/internal/aggregation"
	"github.com/utafrali/storefront-ratings/internal/cache"
	"github.com/utafrali/storefront-ratings/internal/config"
	"github.com/utafrali/storefront-ratings/internal/event"
	handler "github.com/utafrali/storefront-ratings/internal/handler/http"
	"github.com/utafrali/storefront-ratings/internal/repository"
	"github.com/utafrali/storefront-ratings/internal/repository/memory"
	"github.com/utafrali/storefront-ratings/internal/repository/postgres"
	"github.com/utafrali/storefront-ratings/internal/service"
	"github.com/utafrali/storefront-ratings/internal/trigger"
	"github.com/utafrali/storefront-ratings/pkg/database"
	"github.com/utafrali/storefront-ratings/pkg/health"
	pkgkafka "github.com/utafrali/storefront-ratings/pkg/kafka"
	"github.com/utafrali/storefront-ratings/pkg/tracing"
)

const (
	serviceName        = "rating-service"
	idempotencyTTL     = 24 * time.Hour
	idempotencyLRUSize = 100_000
)

// App wires together all dependencies and runs the rating service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	consumer       *pkgkafka.Consumer
	events         *event.Consumer
	reconciler     *aggregation.Reconciler
	router         http.Handler
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// discardPublisher drops events when Kafka is disabled.
type discardPublisher struct{}

func (discardPublisher) Publish(context.Context, string, *pkgkafka.Event) error { return nil }

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:  serviceName,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.OTELEndpoint,
		SampleRate:   cfg.OTELSampleRate,
		Enabled:      cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	healthHandler := health.NewHandler()

	reviews, entities, err := a.initStorage(ctx, healthHandler)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	if cfg.RedisEnabled {
		rdb, err := database.NewRedisClient(ctx, cfg.Redis())
		if err != nil {
			a.closeResources()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.rdb = rdb
		logger.Info("connected to Redis", slog.String("addr", cfg.Redis().Addr()))
		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}

	var publisher pkgkafka.Publisher = discardPublisher{}
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
		publisher = a.producer
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Aggregation: lock, two-tier cache in front of the entity store, engine.
	var locker aggregation.Locker = aggregation.NewKeyedMutex()
	if cfg.LockBackend == config.BackendRedis {
		locker = aggregation.NewRedisLocker(a.rdb, cfg.LockTTL, logger)
	}

	var remote *cache.Redis
	if a.rdb != nil {
		remote = cache.NewRedis(a.rdb, cfg.CacheTTL, cache.DefaultBreakerConfig("rating-cache-redis"), logger)
	}
	var local *cache.Local
	if cfg.LockBackend != config.BackendRedis {
		local = cache.NewLocal(cfg.CacheSize, cfg.CacheTTL)
	}
	ratingCache := cache.NewRatingCache(local, remote, logger)

	eventProducer := event.NewProducer(publisher, logger)
	engine := aggregation.NewEngine(reviews, cache.NewCachingSink(entities, ratingCache), locker, logger,
		aggregation.WithObserver(eventProducer))

	reviewService := service.NewReviewService(reviews, trigger.New(engine, logger), eventProducer, logger)
	ratingService := service.NewRatingService(entities, engine, ratingCache, locker, logger)

	a.events = event.NewConsumer(ratingService, logger)
	if cfg.KafkaEnabled {
		var store pkgkafka.IdempotencyStore = pkgkafka.NewMemoryIdempotencyStore(idempotencyLRUSize, idempotencyTTL)
		if a.rdb != nil {
			store = pkgkafka.NewRedisIdempotencyStore(a.rdb, "rating:events:", idempotencyTTL)
		}
		a.consumer = pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  cfg.KafkaGroupID,
			Topics:   a.events.Topics(),
			MinBytes: 1,
			MaxBytes: 10e6,
		}, pkgkafka.IdempotentHandler(store, a.events.Handle, logger), logger, pkgkafka.WithDLQ(a.dlq))
	}

	a.reconciler = aggregation.NewReconciler(entities, engine, cfg.ReconcileInterval, cfg.ReconcileBatch, logger)

	a.router = handler.NewRouter(reviewService, ratingService, healthHandler,
		handler.NewRecomputeLimiter(cfg.RecomputeRPS, cfg.RecomputeBurst), logger)
	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      a.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a, nil
}

func (a *App) initStorage(ctx context.Context, healthHandler *health.Handler) (repository.ReviewRepository, repository.EntityRepository, error) {
	if a.cfg.StorageBackend == config.BackendMemory {
		a.logger.Warn("using in-memory storage; data is lost on restart")
		return memory.NewReviewRepository(), memory.NewEntityRepository(), nil
	}

	database.SetSlowQueryLogging(a.cfg.SlowQueryThreshold(), a.logger)

	pool, err := database.NewPostgresPool(ctx, a.cfg.Postgres(), a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	a.logger.Info("connected to PostgreSQL",
		slog.String("host", a.cfg.PostgresHost),
		slog.String("database", a.cfg.PostgresDB),
	)

	if err := database.RunMigrations(ctx, pool, postgres.Migrations(), a.logger); err != nil {
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
		a.logger.Warn("failed to register pool metrics", slog.String("error", err.Error()))
	}
	healthHandler.RegisterCritical("postgres", pool.Ping)

	return postgres.NewReviewRepository(pool), postgres.NewEntityRepository(pool), nil
}

// Handler returns the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.router
}

// Run starts the HTTP server, the Kafka consumer and the reconciler, and blocks
// until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if a.consumer != nil {
		g.Go(func() error {
			return a.consumer.Start(gctx)
		})
	}

	g.Go(func() error {
		return a.reconciler.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	err := g.Wait()
	a.Shutdown()
	return err
}

// Shutdown releases every external resource.
func (a *App) Shutdown() {
	a.logger.Info("shutting down application...")
	a.closeResources()
	a.logger.Info("application shutdown complete")
}

func (a *App) closeResources() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("kafka dlq producer close error", slog.String("error", err.Error()))
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		}
	}
}
