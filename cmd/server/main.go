package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/pass/deposit-services/internal/application/critical"
	"github.com/pass/deposit-services/internal/application/reconcile"
	"github.com/pass/deposit-services/internal/infrastructure/cache"
	"github.com/pass/deposit-services/internal/infrastructure/config"
	"github.com/pass/deposit-services/internal/infrastructure/logger"
	"github.com/pass/deposit-services/internal/infrastructure/persistence"
	"github.com/pass/deposit-services/internal/infrastructure/scheduler"
	"github.com/pass/deposit-services/internal/infrastructure/statusfeed"
	"github.com/pass/deposit-services/internal/infrastructure/telemetry"
	"github.com/pass/deposit-services/internal/infrastructure/transfer"
	"github.com/pass/deposit-services/internal/interfaces/http/handler"
	"github.com/pass/deposit-services/internal/interfaces/http/middleware"
	"github.com/pass/deposit-services/internal/interfaces/http/router"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	baseLog, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Service:    cfg.App.Name,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()

	// Telemetry
	providers, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		Insecure:          cfg.Telemetry.Insecure,
		ServiceName:       cfg.Telemetry.ServiceName,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
		LogsEnabled:       cfg.Telemetry.LogsEnabled,
	}, baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	log := telemetry.NewBridgedLogger(baseLog, telemetry.NewZapOTELCore(telemetry.ZapBridgeConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Providers:   providers,
		Level:       logger.ParseLevel(cfg.Log.Level),
	}))
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting deposit services",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	meter := providers.Meter(telemetry.TracerName)
	interactionMetrics, err := telemetry.NewInteractionMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create interaction metrics", zap.Error(err))
	}
	reconcileMetrics, err := telemetry.NewReconcileMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create reconcile metrics", zap.Error(err))
	}

	// Database
	db, err := persistence.NewDatabaseWithOptions(&cfg.Database, persistence.Options{
		Logger: logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Database.LogLevel),
			logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh)),
		Plugins: []persistence.Plugin{
			telemetry.NewStoreTracing(telemetry.StoreTracingConfig{
				Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
				LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
				SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
				DBName:          cfg.Database.DBName,
			}, log),
		},
	})
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if cfg.Database.Driver == "sqlite" {
		if err := db.AutoMigrate(); err != nil {
			log.Fatal("Failed to migrate sqlite schema", zap.Error(err))
		}
	}
	log.Info("Database connected successfully", zap.String("driver", cfg.Database.Driver))

	submissions := persistence.NewGormSubmissionRepository(db.DB)
	deposits := persistence.NewGormDepositRepository(db.DB)
	repositories := persistence.NewGormRepositoryRepository(db.DB)

	// Remote status resolution
	registry, err := statusfeed.LoadRegistry(cfg.StatusFeed.RepositoriesFile)
	if err != nil {
		log.Fatal("Failed to load repository status mappings", zap.Error(err))
	}
	fetcher := statusfeed.NewHTTPFetcher(statusfeed.FetcherConfig{
		DefaultTimeout: cfg.StatusFeed.DefaultTimeout,
		RetryMax:       cfg.StatusFeed.RetryMax,
		RetryWaitMin:   cfg.StatusFeed.RetryWaitMin,
		RetryWaitMax:   cfg.StatusFeed.RetryWaitMax,
		UserAgent:      cfg.StatusFeed.UserAgent,
	}, log)
	resolver := statusfeed.NewRegistryResolver(statusfeed.NewResolver(fetcher, log, reconcileMetrics), registry)
	log.Info("Repository status mappings loaded", zap.Strings("repositories", registry.Keys()))

	// Callback idempotency
	idempotency, err := cache.NewIdempotencyStoreFactory(cfg.Redis, cfg.Callback,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	).CreateStore(ctx)
	if err != nil {
		log.Fatal("Failed to create callback idempotency store", zap.Error(err))
	}
	defer func() {
		_ = idempotency.Close()
	}()

	// Transport for retried deposits
	transfers := transfer.NewRouter(nil)
	if cfg.Transfer.Enabled {
		s3, err := transfer.NewS3Transferer(ctx, cfg.Transfer, transfer.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to initialize S3 transfer", zap.Error(err))
		}
		transfers = transfer.NewRouter(s3)
		log.Info("S3 transfer enabled", zap.String("bucket", s3.Bucket()))
	}

	// Reconciliation
	deps := reconcile.Deps{
		Engine:       critical.NewEngine(critical.Config{Logger: log, Metrics: interactionMetrics}),
		Submissions:  submissions,
		Deposits:     deposits,
		Repositories: repositories,
		Logger:       log,
		Metrics:      reconcileMetrics,
	}
	runners := []struct {
		runner reconcile.Runner
		cfg    config.DriverConfig
	}{
		{
			reconcile.NewSubmissionStatusService(deps, driverOptions(cfg.Reconcile.SubmissionStatus)),
			cfg.Reconcile.SubmissionStatus,
		},
		{
			reconcile.NewDepositStatusService(deps, resolver, driverOptions(cfg.Reconcile.DepositStatus)),
			cfg.Reconcile.DepositStatus,
		},
		{
			reconcile.NewFailedDepositRetryService(deps, transfers, driverOptions(cfg.Reconcile.FailedRetry)),
			cfg.Reconcile.FailedRetry,
		},
	}
	drivers := make([]*scheduler.Driver, 0, len(runners))
	for _, r := range runners {
		d, err := scheduler.NewDriver(r.runner, r.cfg, log)
		if err != nil {
			log.Fatal("Invalid reconciliation driver", zap.String("driver", r.runner.Name()), zap.Error(err))
		}
		drivers = append(drivers, d)
	}
	manager, err := scheduler.NewManager(log, drivers...)
	if err != nil {
		log.Fatal("Failed to create reconciliation scheduler", zap.Error(err))
	}

	schedCtx, cancelSched := context.WithCancel(ctx)
	defer cancelSched()
	if err := manager.Start(schedCtx); err != nil {
		log.Fatal("Failed to start reconciliation scheduler", zap.Error(err))
	}

	callbacks := reconcile.NewCallbackService(deps, resolver, idempotency, cfg.Callback.IdempotencyTTL)

	// HTTP
	engine := router.NewEngine(router.EngineConfig{
		Logger:         log,
		Release:        cfg.App.Env == "production",
		TrustedProxies: cfg.HTTP.TrustedProxies,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		},
		Meter: meter,
	})

	var callbackGuard []gin.HandlerFunc
	if cfg.HTTP.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		defer limiter.Close()
		callbackGuard = append(callbackGuard, middleware.RateLimit(limiter))
		log.Info("Callback rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	checks := map[string]handler.HealthCheck{
		"database": func(context.Context) error { return db.Ping() },
	}
	if p, ok := idempotency.(interface{ Ping(context.Context) error }); ok {
		checks["redis"] = p.Ping
	}

	router.NewRouter(engine).
		RegisterRoot(handler.NewHealthHandler(telemetry.ServiceVersion, checks)).
		Register(handler.NewReconciliationHandler(manager)).
		Register(handler.NewDepositCallbackHandler(callbacks, callbackGuard...)).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := manager.Stop(shutdownCtx); err != nil {
		log.Error("Reconciliation drivers did not stop cleanly", zap.Error(err))
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Warn("Telemetry shutdown failed", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

func driverOptions(d config.DriverConfig) reconcile.Options {
	return reconcile.Options{BatchSize: d.BatchSize, Concurrency: d.Concurrency}
}
