package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/leduxro-prog/erp-dashboard-sub000/internal/cache"
	"github.com/leduxro-prog/erp-dashboard-sub000/internal/client"
	"github.com/leduxro-prog/erp-dashboard-sub000/internal/config"
	"github.com/leduxro-prog/erp-dashboard-sub000/internal/domain"
	"github.com/leduxro-prog/erp-dashboard-sub000/internal/event"
	handler "github.com/leduxro-prog/erp-dashboard-sub000/internal/handler/http"
	"github.com/leduxro-prog/erp-dashboard-sub000/internal/repository"
	"github.com/leduxro-prog/erp-dashboard-sub000/internal/repository/memory"
	"github.com/leduxro-prog/erp-dashboard-sub000/internal/repository/postgres"
	"github.com/leduxro-prog/erp-dashboard-sub000/internal/service"
	"github.com/leduxro-prog/erp-dashboard-sub000/migrations"
	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/database"
	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/health"
	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/httpclient"
	pkgkafka "github.com/leduxro-prog/erp-dashboard-sub000/pkg/kafka"
	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/middleware"
	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/tracing"
)

// App wires together all dependencies and runs the order engine.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	retryConsumer  *pkgkafka.Consumer
	orderService   *service.OrderService
	breakers       []*httpclient.CircuitBreakerClient
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    handler.ServiceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	repo, err := a.openStore(ctx)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	a.redis = a.connectRedis(ctx)

	// Downstream ports, each behind its own breaker.
	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = time.Duration(cfg.DownstreamTimeoutSec) * time.Second
	baseClient := httpclient.New(httpCfg)
	var products service.ProductService = client.NewProductClient(a.breaker(baseClient, "product-service"), cfg.ProductServiceURL)
	if a.redis != nil {
		products = cache.NewProductCache(a.redis, products, cfg.ProductCacheTTL(), logger)
	}
	inventory := client.NewInventoryClient(a.breaker(baseClient, "inventory-service"), cfg.InventoryServiceURL)
	accounting := client.NewAccountingClient(a.breaker(baseClient, "accounting-service"), cfg.AccountingServiceURL)

	publisher := a.newPublisher(ctx)

	a.orderService = service.NewOrderService(service.Dependencies{
		Repo:      repo,
		Products:  products,
		Stock:     inventory,
		Proformas: accounting,
		Invoices:  accounting,
		Publisher: publisher,
	}, service.Settings{
		TaxRate:      cfg.TaxRate,
		Currency:     cfg.Currency,
		NumberPrefix: cfg.NumberPrefix,
		PaymentTerms: cfg.DefaultPaymentTerms,
		Tiers:        cfg.Tiers(),
	}, logger)

	if cfg.ReservationRetryEnabled && a.producer != nil {
		a.retryConsumer = a.newRetryConsumer()
	}

	router := handler.NewRouter(a.orderService, a.healthHandler(), logger, handler.RouterConfig{
		PprofCIDRs: cfg.PprofAllowedCIDRs,
		CORS:       middleware.CORSConfig{AllowedOrigins: cfg.CORSAllowedOrigins},
		RateLimit: middleware.RateLimitConfig{
			RPS:   cfg.RateLimitRPS,
			Burst: cfg.RateLimitBurst,
		},
		RequestTimeout: cfg.RequestTimeout(),
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout() + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// openStore returns the configured order repository. The postgres store runs
// migrations before it is handed out.
func (a *App) openStore(ctx context.Context) (repository.OrderRepository, error) {
	cfg := a.cfg
	if cfg.Store == config.StoreMemory {
		a.logger.Warn("using in-memory order store; orders are lost on restart")
		return memory.NewOrderRepository(), nil
	}

	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}

	pool, err := database.OpenPostgres(ctx, &pgCfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	a.logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	database.RegisterPoolMetrics(pool, handler.ServiceName)

	if err := database.RunMigrations(ctx, pool, migrations.FS, a.logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	a.logger.Info("database migrations completed")

	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, a.logger)
	}

	return postgres.NewOrderRepository(pool), nil
}

// connectRedis returns nil when Redis is unreachable; the engine then runs
// without the product cache and keeps consumer idempotency in memory.
func (a *App) connectRedis(ctx context.Context) *redis.Client {
	cfg := a.cfg
	client, err := database.NewRedisClient(ctx, database.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,

		ClientName:      handler.ServiceName,
		DialTimeout:     2 * time.Second,
		ConnectAttempts: 2,
	}, a.logger)
	if err != nil {
		a.logger.Warn("redis unavailable, continuing in degraded mode",
			slog.String("addr", fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort)),
			slog.String("error", err.Error()),
		)
		return nil
	}
	a.logger.Info("connected to Redis", slog.String("addr", client.Options().Addr))
	return client
}

func (a *App) breaker(next httpclient.Doer, name string) *httpclient.CircuitBreakerClient {
	cfg := a.cfg
	cbCfg := httpclient.DefaultCircuitBreakerConfig(name)
	cbCfg.MaxRequests = cfg.CBMaxRequests
	cbCfg.Interval = time.Duration(cfg.CBInterval) * time.Second
	cbCfg.Timeout = time.Duration(cfg.CBTimeout) * time.Second
	cbCfg.FailureRatio = cfg.CBFailureRatio
	cbCfg.MinRequests = cfg.CBMinRequests
	cb := httpclient.NewCircuitBreakerClient(next, cbCfg, a.logger)
	a.breakers = append(a.breakers, cb)
	return cb
}

// newPublisher returns a Kafka-backed publisher, or a no-op one when no
// brokers are configured.
func (a *App) newPublisher(ctx context.Context) service.EventPublisher {
	brokers := a.cfg.KafkaBrokers
	if len(brokers) == 0 {
		a.logger.Warn("no kafka brokers configured, order events are not published")
		return event.Nop{}
	}

	a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(brokers), a.logger)
	if err := pingKafkaWithRetry(ctx, a.producer, a.logger); err != nil {
		a.logger.Warn("kafka producer ping failed after retries, continuing in degraded mode",
			slog.String("error", err.Error()),
		)
	} else {
		a.logger.Info("kafka producer initialized", slog.Any("brokers", brokers))
	}
	return event.NewPublisher(a.producer, a.cfg.KafkaTopicPrefix, a.logger)
}

// newRetryConsumer subscribes to the engine's own stock reservation failures
// and retries the reservation once per event.
func (a *App) newRetryConsumer() *pkgkafka.Consumer {
	cfg := a.cfg
	var store pkgkafka.IdempotencyStore
	if a.redis != nil {
		store = pkgkafka.NewRedisIdempotencyStore(a.redis, handler.ServiceName+":consumed:", cfg.IdempotencyTTL())
	} else {
		store = pkgkafka.NewMemoryIdempotencyStore(cfg.IdempotencyTTL())
	}

	a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, a.logger)
	topic := pkgkafka.Topic(cfg.KafkaTopicPrefix, string(domain.EventStockReservationFailed))

	h := pkgkafka.IdempotentHandler(store, event.NewReservationRetryHandler(a.orderService, a.logger), a.logger)
	return pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  cfg.ReservationRetryGroup,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,

		MaxAttempts: cfg.ReservationRetryAttempts,
	}, h, a.dlq, a.logger)
}

func (a *App) healthHandler() *health.Handler {
	h := health.NewHandler()
	if a.pool != nil {
		h.RegisterCritical("postgres", func(ctx context.Context) error {
			return a.pool.Ping(ctx)
		})
	}
	if a.producer != nil {
		h.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return a.producer.Ping(ctx)
		})
	}
	for _, cb := range a.breakers {
		h.RegisterNonCritical(cb.Name(), cb.Check)
	}
	if a.redis != nil {
		h.RegisterNonCritical("redis", func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		})
	}
	return h
}

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server and the retry consumer, then blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if a.retryConsumer != nil {
		go func() {
			if err := a.retryConsumer.Start(ctx); err != nil {
				errCh <- fmt.Errorf("reservation retry consumer: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Retry consumer, DLQ and event producers
// 4. Redis client and PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.retryConsumer != nil {
		if err := a.retryConsumer.Close(); err != nil {
			a.logger.Error("retry consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	errs = append(errs, a.closeResources()...)

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeResources releases the connections opened by NewApp.
func (a *App) closeResources() []error {
	var errs []error
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("dlq producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errs
}
