package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	_ "github.com/lib/pq" // PostgreSQL driver

	"gavel/internal/admission"
	"gavel/internal/broker"
	"gavel/internal/config"
	"gavel/internal/constants"
	"gavel/internal/dedup"
	"gavel/internal/logger"
	"gavel/internal/quarantine"
	"gavel/internal/ratelimit"
	"gavel/internal/sanitize"
	"gavel/internal/webhook"
	"gavel/pkg/bootstrap"
	"gavel/pkg/health"
	"gavel/pkg/metrics"
	"gavel/pkg/middleware"
	"gavel/pkg/migrations"
	httpratelimit "gavel/pkg/ratelimit"
)

type App struct {
	config      *config.Config
	logger      logger.Logger
	dbConnector *bootstrap.DatabaseConnector
	db          *sql.DB
	redis       *redisclient.Client
	mongoClient *mongo.Client
	producer    broker.Producer
	server      *http.Server
	router      *gin.Engine
	janitorStop context.CancelFunc
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		config:      cfg,
		logger:      log,
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initStores(ctx); err != nil {
		return fmt.Errorf("failed to initialize stores: %w", err)
	}

	if err := a.initRouter(ctx); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	if err := a.initServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	return nil
}

// initStores connects the optional backing stores. Each one that is not
// configured (or not reachable) leaves the gateway in a degraded but
// functional mode, so failures here only warn.
func (a *App) initStores(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		a.logger.WarnwCtx(ctx, "PostgreSQL connection failed, rate limiting will be memory-only", "error", err)
	} else {
		a.db = db
	}

	if a.db != nil && a.config.Database.RunMigrations {
		path := os.Getenv("MIGRATIONS_PATH")
		if path == "" {
			path = "migrations/postgres"
		}
		if err := migrations.RunPostgres(a.db, path); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		a.logger.InfowCtx(ctx, "Database migrations applied", "path", path)
	}

	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		a.logger.WarnwCtx(ctx, "Redis connection failed, duplicate deliveries will not be suppressed", "error", err)
	} else {
		a.redis = rdb
	}

	mongoClient, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		a.logger.WarnwCtx(ctx, "MongoDB connection failed, rejected messages will not be quarantined", "error", err)
	} else {
		a.mongoClient = mongoClient
	}

	return nil
}

func (a *App) initRouter(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(a.logger))
	router.Use(middleware.LoggerMiddleware(a.logger))
	router.Use(middleware.RequestIDMiddleware())

	// Admission layers, outermost first: security headers and body cap,
	// then per-client rate limiting, then JSON well-formedness. A layer
	// that rejects stops the chain.
	router.Use(middleware.SecurityHeadersMiddleware())

	maxBody := a.config.Webhook.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = constants.DefaultMaxBodyBytes
	}
	router.Use(middleware.MaxBodyBytesMiddleware(maxBody))

	if a.config.HTTPRateLimit.Enabled {
		rateLimitConfig := httpratelimit.DefaultConfig()
		if a.config.HTTPRateLimit.RPS > 0 {
			rateLimitConfig.RPS = a.config.HTTPRateLimit.RPS
		}
		if a.config.HTTPRateLimit.Burst > 0 {
			rateLimitConfig.Burst = a.config.HTTPRateLimit.Burst
		}
		if a.config.HTTPRateLimit.CleanupInterval > 0 {
			rateLimitConfig.CleanupInterval = time.Duration(a.config.HTTPRateLimit.CleanupInterval) * time.Second
		}
		if a.config.HTTPRateLimit.MaxAge > 0 {
			rateLimitConfig.MaxAge = time.Duration(a.config.HTTPRateLimit.MaxAge) * time.Second
		}
		router.Use(httpratelimit.RateLimitMiddleware(rateLimitConfig))
		a.logger.InfowCtx(ctx, "HTTP rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	router.Use(middleware.JSONValidationMiddleware("/health", "/metrics"))

	var auditStore ratelimit.AuditStore
	if a.db != nil {
		auditStore = ratelimit.NewPostgresAuditStore(a.db)
		if a.config.CircuitBreaker.Enabled {
			auditStore = ratelimit.NewCircuitBreakerAuditStore(auditStore, a.config.CircuitBreaker)
		}
	}

	limiter := ratelimit.NewLimiter(a.config.RateLimit, auditStore, a.logger)
	janitorCtx, cancel := context.WithCancel(context.Background())
	a.janitorStop = cancel
	limiter.StartJanitor(janitorCtx, 5*time.Minute)

	var dedupSvc *dedup.Service
	if a.redis != nil {
		dedupSvc = dedup.NewService(dedup.NewRepository(a.redis), a.config.Dedup, a.logger)
	}

	var quarantineStore admission.QuarantineStore
	if a.mongoClient != nil && a.config.Quarantine.Enabled {
		mongoDB := a.mongoClient.Database(a.config.Database.MongoDB.Database)
		if err := migrations.EnsureQuarantineCollection(ctx, mongoDB, a.config.Quarantine.Collection); err != nil {
			a.logger.WarnwCtx(ctx, "Failed to ensure quarantine indexes", "error", err)
		}
		quarantineStore = quarantine.NewStore(mongoDB, a.config.Quarantine.Collection, a.logger)
	}

	if a.config.Broker.Type != "" {
		producer, err := broker.NewProducer(a.config.Broker, a.logger)
		if err != nil {
			a.logger.WarnwCtx(ctx, "Failed to create broker producer, admitted messages will not be published", "error", err)
		} else {
			a.producer = producer
		}
	}

	sanitizer := sanitize.NewSanitizer(a.config.Sanitizer, a.logger)
	verifier := webhook.NewVerifier(a.config.Webhook.Secret, a.logger)
	if a.config.Webhook.Secret == "" {
		a.logger.Warnw("Webhook secret not configured, running signature verification in open mode")
	}

	svc := admission.NewService(admission.Options{
		Verifier:   verifier,
		Sanitizer:  sanitizer,
		Limiter:    limiter,
		Dedup:      dedupSvc,
		Quarantine: quarantineStore,
		Producer:   a.producer,
		Webhook:    a.config.Webhook,
		Topic:      a.config.Broker.Kafka.AdmittedTopic,
		Logger:     a.logger,
	})

	handler := admission.NewHandler(svc, a.logger)
	handler.RegisterRoutes(router)

	metrics.RegisterGatewayMetrics()
	metrics.RegisterCircuitBreakerMetrics()

	healthRegistry := health.NewCheckerRegistry()
	if a.db != nil {
		healthRegistry.RegisterOptional(health.NewPostgreSQLChecker(a.db))
	}
	if a.redis != nil {
		healthRegistry.RegisterOptional(health.NewRedisChecker(a.redis))
	}
	if a.mongoClient != nil {
		healthRegistry.RegisterOptional(health.NewMongoDBChecker(a.mongoClient))
	}

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.router = router
	return nil
}

func (a *App) initServer() error {
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.config.Server.ReadTimeoutSeconds * time.Second,
		WriteTimeout: a.config.Server.WriteTimeoutSeconds * time.Second,
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.InfowCtx(ctx, "HTTP server starting", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		return a.Shutdown(gCtx)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.InfowCtx(ctx, "Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	if a.janitorStop != nil {
		a.janitorStop()
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close error: %w", err))
		}
	}

	dbErrs := a.dbConnector.ShutdownDatabases(ctx, a.redis, a.db, a.mongoClient)
	errs = append(errs, dbErrs...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	a.logger.InfowCtx(ctx, "Server exited successfully")
	return nil
}
