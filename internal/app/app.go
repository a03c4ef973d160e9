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

	"github.com/srivardhan-kondu/EmpathyAI/internal/auth"
	"github.com/srivardhan-kondu/EmpathyAI/internal/config"
	"github.com/srivardhan-kondu/EmpathyAI/internal/event"
	handler "github.com/srivardhan-kondu/EmpathyAI/internal/handler/http"
	"github.com/srivardhan-kondu/EmpathyAI/internal/identity"
	"github.com/srivardhan-kondu/EmpathyAI/internal/notifier"
	"github.com/srivardhan-kondu/EmpathyAI/internal/repository"
	"github.com/srivardhan-kondu/EmpathyAI/internal/repository/memory"
	"github.com/srivardhan-kondu/EmpathyAI/internal/repository/postgres"
	"github.com/srivardhan-kondu/EmpathyAI/internal/service"
	"github.com/srivardhan-kondu/EmpathyAI/migrations"
	"github.com/srivardhan-kondu/EmpathyAI/pkg/database"
	"github.com/srivardhan-kondu/EmpathyAI/pkg/health"
	"github.com/srivardhan-kondu/EmpathyAI/pkg/httpclient"
	pkgkafka "github.com/srivardhan-kondu/EmpathyAI/pkg/kafka"
	"github.com/srivardhan-kondu/EmpathyAI/pkg/middleware"
	"github.com/srivardhan-kondu/EmpathyAI/pkg/tracing"
)

const serviceVersion = "0.1.0"

// initTracer is replaced in tests.
var initTracer = tracing.InitTracer

// App wires together all dependencies and runs the identity service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := initTracer(ctx, tracing.Config{
		ServiceName:    handler.ServiceName,
		ServiceVersion: serviceVersion,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	healthHandler := health.NewHandler()

	users, err := a.initStore(ctx, healthHandler)
	if err != nil {
		a.abortStartup()
		return nil, err
	}

	if err := a.initRedis(ctx, healthHandler); err != nil {
		a.abortStartup()
		return nil, err
	}

	// Kafka is optional; without brokers events are dropped.
	var events *event.Producer
	if len(cfg.KafkaBrokers) > 0 {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		events = event.NewProducer(a.producer, logger)
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		events = event.NewProducer(nil, logger)
		logger.Warn("no KAFKA_BROKERS configured, identity events are disabled")
	}

	hasher, err := auth.NewHasher(cfg.PasswordHasher, cfg.BcryptCost, auth.DefaultArgon2Params())
	if err != nil {
		a.abortStartup()
		return nil, err
	}
	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		a.abortStartup()
		return nil, err
	}

	verifier, err := a.newVerifier()
	if err != nil {
		a.abortStartup()
		return nil, err
	}

	mailer, err := a.newNotifier()
	if err != nil {
		a.abortStartup()
		return nil, err
	}
	logger.Info("recovery notifier initialized", slog.String("driver", mailer.Name()))

	svcCfg := service.Config{
		SessionTTL:          cfg.SessionTTL,
		RecoveryTTL:         cfg.RecoveryTTL,
		StoreTimeout:        cfg.StoreTimeout,
		ClientURL:           cfg.ClientURL,
		ConcealUnknownEmail: cfg.ConcealUnknownEmail,
	}
	accounts := service.NewAuthService(users, hasher, tokens, verifier, events, svcCfg, logger)
	recovery := service.NewRecoveryService(users, hasher, tokens, mailer, events, svcCfg, logger)

	router := handler.NewRouter(handler.RouterDeps{
		Accounts:      accounts,
		Recovery:      recovery,
		Authenticator: auth.NewSessionAuthenticator(tokens),
		Health:        healthHandler,
		Logger:        logger,
		CORS: handler.CORSConfig{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			Environment:    cfg.Environment,
		},
		RateLimit: middleware.RateLimitConfig{
			RPS:            cfg.RateLimitRPS,
			Burst:          cfg.RateLimitBurst,
			TrustedProxies: cfg.TrustedProxies,
		},
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// initStore opens the credential store selected by STORE_DRIVER.
func (a *App) initStore(ctx context.Context, healthHandler *health.Handler) (repository.UserRepository, error) {
	cfg := a.cfg
	if cfg.StoreDriver == config.StoreDriverMemory {
		a.logger.Warn("using in-memory credential store, accounts are lost on restart")
		return memory.NewUserRepository(), nil
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

	pool, err := database.NewPostgresPool(ctx, &pgCfg, a.logger)
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

	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	return postgres.NewUserRepository(pool), nil
}

// initRedis connects the optional key-set cache shared between replicas.
func (a *App) initRedis(ctx context.Context, healthHandler *health.Handler) error {
	if a.cfg.RedisHost == "" {
		return nil
	}
	client, err := database.NewRedisClient(ctx, database.RedisConfig{
		Host:     a.cfg.RedisHost,
		Port:     a.cfg.RedisPort,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	a.redis = client
	healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	a.logger.Info("connected to Redis", slog.String("addr", fmt.Sprintf("%s:%d", a.cfg.RedisHost, a.cfg.RedisPort)))
	return nil
}

func (a *App) newVerifier() (identity.Verifier, error) {
	if a.cfg.GoogleClientID == "" {
		a.logger.Warn("GOOGLE_CLIENT_ID is not set, google sign-in is disabled")
		return identity.DisabledVerifier{}, nil
	}

	client := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.DefaultConfig()),
		httpclient.DefaultCircuitBreakerConfig("google-jwks"),
		a.logger,
	)

	var opts []identity.JWKSOption
	if a.redis != nil {
		opts = append(opts, identity.WithDocumentCache(identity.NewRedisDocumentCache(a.redis)))
	}
	keys := identity.NewJWKSSource(identity.JWKSConfig{
		URL: a.cfg.GoogleJWKSURL,
		TTL: a.cfg.JWKSCacheTTL,
	}, client, a.logger, opts...)

	verifier, err := identity.NewGoogleVerifier(keys, a.cfg.GoogleClientID)
	if err != nil {
		return nil, fmt.Errorf("google verifier: %w", err)
	}
	return verifier, nil
}

func (a *App) newNotifier() (notifier.Notifier, error) {
	switch a.cfg.NotifierDriver {
	case notifier.DriverSMTP:
		n, err := notifier.NewSMTPNotifier(notifier.SMTPConfig{
			Host:       a.cfg.SMTPHost,
			Port:       a.cfg.SMTPPort,
			Username:   a.cfg.SMTPUser,
			Password:   a.cfg.SMTPPass,
			From:       a.cfg.SMTPFrom,
			Timeout:    a.cfg.SMTPTimeout,
			RequireTLS: a.cfg.SMTPRequireTLS,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("smtp notifier: %w", err)
		}
		return n, nil
	case notifier.DriverKafka:
		if a.producer == nil {
			return nil, errors.New("kafka notifier requires KAFKA_BROKERS")
		}
		return notifier.NewKafkaNotifier(a.producer, a.cfg.KafkaNotificationTopic), nil
	default:
		a.logger.Warn("recovery emails are written to the log, not delivered")
		return notifier.NewLogNotifier(a.logger), nil
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

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
// 3. Kafka producer, Redis and PostgreSQL
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	if a.httpServer != nil {
		httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer httpCancel()
		if err := a.httpServer.Shutdown(httpCtx); err != nil {
			a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 2. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Close outbound clients.
	errs = append(errs, a.closeResources()...)

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// abortStartup releases everything NewApp acquired before failing, the
// tracer included.
func (a *App) abortStartup() {
	a.closeResources()
	if a.tracerShutdown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := a.tracerShutdown(ctx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}
	a.tracerShutdown = nil
}

// closeResources releases the Kafka producer, Redis client and Postgres
// pool, whichever were opened.
func (a *App) closeResources() []error {
	var errs []error
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.producer = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.redis = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return errs
}
