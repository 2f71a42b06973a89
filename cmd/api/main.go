package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/background"
	"github.com/BradenHooton/authgate/internal/config"
	"github.com/BradenHooton/authgate/internal/database"
	"github.com/BradenHooton/authgate/internal/handlers"
	"github.com/BradenHooton/authgate/internal/metrics"
	middlewareCustom "github.com/BradenHooton/authgate/internal/middleware"
	"github.com/BradenHooton/authgate/internal/policy"
	"github.com/BradenHooton/authgate/internal/repositories"
	"github.com/BradenHooton/authgate/internal/routes"
	"github.com/BradenHooton/authgate/internal/services"
	"github.com/BradenHooton/authgate/internal/traces"
	pkghttp "github.com/BradenHooton/authgate/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

var version = "dev"

// ledgerStore is satisfied by both the Postgres and in-memory attempt repositories
type ledgerStore interface {
	services.AttemptLedger
	services.RetentionLedger
	services.AttemptQueryLedger
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("ledger", cfg.Ledger.Backend),
		slog.String("policy_source", cfg.Policy.Source),
		slog.String("ip_lockout_store", cfg.Ledger.IPLockoutStore))

	ctx := context.Background()

	shutdownTracing, err := traces.Init(ctx, cfg.Tracing.OTLPEndpoint, version, logger)
	if err != nil {
		logger.Error("failed to initialize tracing", slog.Any("error", err))
		os.Exit(1)
	}

	checks := map[string]handlers.Pinger{}

	// Initialize database
	var db *database.DB
	if cfg.NeedsPostgres() {
		db, err = database.NewConnection(ctx, &cfg.Database, logger)
		if err != nil {
			logger.Error("failed to connect to database", slog.Any("error", err))
			os.Exit(1)
		}
		defer db.Close()
		checks["postgres"] = db
	}

	var redisClient *redis.Client
	if cfg.NeedsRedis() {
		redisClient, err = database.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer redisClient.Close()
		checks["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	m := metrics.New()
	if db != nil {
		m.RegisterPool("postgres", db.Stats)
	}

	// Initialize repositories
	var ledger ledgerStore
	var eventRepo services.SecurityEventRepository
	if cfg.Ledger.Backend == config.LedgerPostgres {
		ledger = repositories.NewAttemptRepository(db)
		eventRepo = repositories.NewSecurityEventRepository(db)
	} else {
		logger.Warn("using in-memory attempt ledger; state is lost on restart")
		ledger = repositories.NewMemoryAttemptRepository()
	}

	var pruners []background.Pruner
	var ipLockouts services.IPLockoutStore
	if cfg.Ledger.IPLockoutStore == config.IPLockoutStoreRedis {
		ipLockouts = repositories.NewRedisIPLockoutStore(redisClient, cfg.Redis.Namespace)
	} else {
		memStore := repositories.NewMemoryIPLockoutStore(time.Now)
		ipLockouts = memStore
		pruners = append(pruners, memStore)
	}

	resolver := policy.NewResolver(policySource(cfg, db, redisClient), cfg.Policy.Scope, logger,
		policy.WithCacheTTL(cfg.Policy.CacheTTL))

	// Initialize services
	auditService := services.NewAuditService(eventRepo, logger, m)
	defer auditService.Close()

	gateService := services.NewGateService(ledger, resolver, logger,
		services.WithIPLockoutStore(ipLockouts),
		services.WithAuditSink(auditService),
		services.WithMetrics(m))

	retentionService := services.NewRetentionService(ledger, logger,
		services.WithBatchSize(cfg.Retention.BatchSize),
		services.WithRetentionAudit(auditService),
		services.WithRetentionMetrics(m))

	queryService := services.NewAttemptQueryService(ledger)

	ipConfig, err := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Error("invalid TRUSTED_PROXIES", slog.Any("error", err))
		os.Exit(1)
	}

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	// Register routes
	routes.RegisterRoutes(router, routes.Deps{
		Gate:             handlers.NewGateHandler(gateService, logger),
		Admin:            handlers.NewAdminHandler(queryService, retentionService, logger),
		Health:           handlers.NewHealthHandler(logger, checks),
		Metrics:          m.Handler(),
		TokenManager:     auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		IPConfig:         ipConfig,
		ServiceRateLimit: middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Server.RateLimitPerMin},
		AdminRateLimit:   middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Server.AdminRateLimit},
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start retention sweeper
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()

	var sweeper *background.RetentionSweeper
	if cfg.Retention.Enabled {
		sweeper = background.NewRetentionSweeper(retentionService, logger, m,
			cfg.Retention.Interval, cfg.Retention.Timeout, pruners...)
		go sweeper.Start(sweepCtx)
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr), slog.String("version", version))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	sweepCancel()
	if sweeper != nil {
		sweeper.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownDeadline)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracer shutdown error", slog.Any("error", err))
	}

	logger.Info("server stopped gracefully")
}

// policySource picks where tunables are read from. The static source only
// carries POLICY_OVERRIDES; anything unset falls back to the built-in defaults.
func policySource(cfg *config.Config, db *database.DB, redisClient *redis.Client) policy.Source {
	switch cfg.Policy.Source {
	case config.PolicySourceRedis:
		return repositories.NewRedisPolicySource(redisClient, cfg.Redis.Namespace)
	case config.PolicySourcePostgres:
		return repositories.NewPolicyRepository(db)
	default:
		return policy.MapSource(cfg.Policy.Overrides)
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
