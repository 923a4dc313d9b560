package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meterly/backend/internal/app"
	"github.com/meterly/backend/internal/domain/payment"
	"github.com/meterly/backend/internal/domain/settings"
	"github.com/meterly/backend/internal/infrastructure/auth"
	"github.com/meterly/backend/internal/infrastructure/cache"
	"github.com/meterly/backend/internal/infrastructure/config"
	"github.com/meterly/backend/internal/infrastructure/event"
	"github.com/meterly/backend/internal/infrastructure/logger"
	paymentinfra "github.com/meterly/backend/internal/infrastructure/payment"
	"github.com/meterly/backend/internal/infrastructure/persistence"
	"github.com/meterly/backend/internal/infrastructure/persistence/models"
	"github.com/meterly/backend/internal/infrastructure/scheduler"
	"github.com/meterly/backend/internal/infrastructure/telemetry"
	"github.com/meterly/backend/internal/interfaces/http/handler"
	"github.com/meterly/backend/internal/interfaces/http/middleware"
	"github.com/meterly/backend/internal/interfaces/http/router"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	_ "github.com/meterly/backend/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// version is stamped at build time with -ldflags "-X main.version=..."
var version = "dev"

//	@title			Meterly API
//	@version		1.0
//	@description	Credits ledger, gamification and coupons for metered actions.

//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Type "Bearer" followed by a space and the access token.

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
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// OTLP logs come first so every later component logs through the bridge
	logsLevel, err := zapcore.ParseLevel(cfg.Telemetry.LogsLevel)
	if err != nil {
		logsLevel = zapcore.InfoLevel
	}
	logProvider, err := telemetry.NewLoggerProvider(rootCtx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
		Level:             logsLevel,
	}, baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize OTLP logs", zap.Error(err))
	}
	log := logProvider.Bridge(baseLog)
	defer func() {
		_ = logProvider.Shutdown(context.Background())
		_ = logger.Sync(log)
	}()

	log.Info("Starting Meterly",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	tracerProvider, err := telemetry.NewTracerProvider(rootCtx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() { _ = tracerProvider.Shutdown(context.Background()) }()

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Telemetry.ProfilingEnabled,
		ServerAddress:     cfg.Telemetry.PyroscopeAddress,
		ApplicationName:   cfg.Telemetry.ServiceName,
		BasicAuthUser:     cfg.Telemetry.PyroscopeUser,
		BasicAuthPassword: cfg.Telemetry.PyroscopePassword,
		Tags:              map[string]string{"env": cfg.App.Env, "version": version},
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() { _ = profiler.Stop() }()
	if profiler.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}

	meterProvider, err := telemetry.NewMeterProvider(rootCtx, telemetry.MeterConfig{
		Enabled:           cfg.Telemetry.OTLPMetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
		ExportInterval:    cfg.Telemetry.MetricsExportInterval,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize OTLP metrics", zap.Error(err))
	}
	defer func() { _ = meterProvider.Shutdown(context.Background()) }()

	// Database
	var gormOpts []logger.GormLoggerOption
	if cfg.App.IsProduction() {
		gormOpts = append(gormOpts, logger.WithHiddenParams())
	}
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), gormOpts...)
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	// Postgres schemas come from cmd/migrate; a local SQLite file is created in place
	if cfg.Database.Driver == "sqlite" {
		if err := db.DB.AutoMigrate(models.All()...); err != nil {
			log.Fatal("Failed to migrate SQLite schema", zap.Error(err))
		}
	}

	if cfg.Telemetry.DBTraceEnabled {
		plugin := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:         true,
			SlowQueryThresh: 200 * time.Millisecond,
			DBSystem:        cfg.Database.Driver,
		}, log)
		if err := plugin.RegisterOtelGorm(db.DB); err != nil {
			log.Warn("Failed to register database tracing", zap.Error(err))
		}
	}
	if sqlDB, err := db.SQL(); err == nil {
		reg, err := telemetry.RegisterDBPoolMetrics(meterProvider.Meter("meterly/db"), sqlDB)
		if err != nil {
			log.Warn("Failed to register database pool metrics", zap.Error(err))
		} else {
			defer func() { _ = reg.Unregister() }()
		}
	}

	// Redis is optional; without it blacklists, webhook dedup and settings
	// invalidation stay local to this instance
	var (
		redisClient *redis.Client
		blacklist   auth.TokenBlacklist
		notifier    settings.ChangeNotifier = cache.NewLocalSettingsNotifier()
	)
	if cfg.Redis.Enabled {
		redisClient, err = auth.NewRedisClient(rootCtx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() { _ = redisClient.Close() }()
		blacklist = auth.NewRedisTokenBlacklist(redisClient)
		notifier = cache.NewRedisSettingsNotifier(redisClient, "meterly:settings", log)
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}
	idempotency, closeStore := cache.NewIdempotencyStore(redisClient, log)
	defer func() { _ = closeStore() }()

	metrics := telemetry.NewMetrics()

	bus := event.NewAsyncEventBus(log,
		event.WithWorkers(cfg.Webhook.Workers),
		event.WithQueueSize(cfg.Webhook.QueueSize),
		event.WithDropHook(metrics.RecordEventDropped),
	)

	var gateway payment.Gateway
	if cfg.Payment.Enabled() {
		stripeGateway, err := paymentinfra.NewStripeGateway(paymentinfra.StripeConfig{
			SecretKey:     cfg.Payment.StripeSecretKey,
			WebhookSecret: cfg.Payment.StripeWebhookSecret,
		}, log)
		if err != nil {
			log.Fatal("Failed to initialize Stripe", zap.Error(err))
		}
		gateway = stripeGateway
	} else {
		log.Info("Stripe not configured, purchases disabled")
	}

	application := app.New(app.Deps{
		DB:          db.DB,
		Config:      cfg,
		Logger:      log,
		Metrics:     metrics,
		Publisher:   bus,
		Blacklist:   blacklist,
		Gateway:     gateway,
		Idempotency: idempotency,
		Notifier:    notifier,
	})

	if err := application.Settings.Bootstrap(rootCtx, cfg.Credits); err != nil {
		log.Fatal("Failed to seed settings", zap.Error(err))
	}
	go func() {
		if err := application.SettingsCache.Watch(rootCtx, notifier); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Settings watcher stopped", zap.Error(err))
		}
	}()

	bus.Subscribe(application.Dispatcher, application.Dispatcher.EventTypes()...)
	if err := bus.Start(rootCtx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	var cron *scheduler.CronScheduler
	if cfg.Scheduler.Enabled {
		cron = scheduler.NewCronScheduler(scheduler.Config{
			JobTimeout: cfg.Scheduler.JobTimeout,
			Location:   time.UTC,
		}, log)
		for _, job := range application.Jobs(cfg.Scheduler) {
			if err := cron.Register(job); err != nil {
				log.Fatal("Failed to register job", zap.String("job", job.Name), zap.Error(err))
			}
		}
		if err := cron.Start(rootCtx); err != nil {
			log.Fatal("Failed to start scheduler", zap.Error(err))
		}
	}

	// HTTP
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.TracingAttributeInjector())
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(metrics.GinMiddleware())
	httpMetrics, err := middleware.HTTPMetrics(meterProvider.Meter("meterly/http"))
	if err != nil {
		log.Fatal("Failed to create HTTP metrics", zap.Error(err))
	}
	engine.Use(httpMetrics)
	engine.Use(middleware.Profiling(middleware.ProfilingConfig{
		Enabled:          profiler.IsEnabled(),
		SkipPaths:        middleware.DefaultProfilingConfig().SkipPaths,
		SkipPathPrefixes: middleware.DefaultProfilingConfig().SkipPathPrefixes,
	}))
	security := middleware.DefaultSecurityConfig()
	security.HSTSEnabled = cfg.App.IsProduction()
	engine.Use(middleware.SecureWithConfig(security))
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-Anonymous-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	guards := router.Guards{Resolver: application.Resolver, Logger: log}
	if cfg.HTTP.RateLimitEnabled {
		guards.Limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst)
		guards.IPLimiter = middleware.NewRateLimiter(cfg.HTTP.AuthRateLimitRPS, cfg.HTTP.RateLimitBurst)
		log.Info("Rate limiting enabled",
			zap.Float64("rps", cfg.HTTP.RateLimitRPS),
			zap.Int("burst", cfg.HTTP.RateLimitBurst),
			zap.Float64("auth_rps", cfg.HTTP.AuthRateLimitRPS),
		)
	}

	checks := map[string]handler.HealthCheck{
		"database": db.Ping,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	handlers := router.NewHandlers(application, version, checks)

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	router.RegisterAPI(r, handlers, guards)
	routes := r.Setup()
	for _, rt := range routes {
		log.Debug("Route mounted",
			zap.String("method", rt.Method),
			zap.String("path", rt.Path),
			zap.String("group", rt.Group))
	}
	log.Info("API routes mounted", zap.Int("count", len(routes)))
	router.RegisterSystem(engine, handlers)

	if cfg.Telemetry.MetricsEnabled {
		engine.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	engine.GET("/swagger/*any",
		middleware.DocsProtection(middleware.DocsConfig{
			Enabled:    cfg.HTTP.DocsEnabled,
			AllowedIPs: cfg.HTTP.DocsAllowedIPs,
		}),
		ginSwagger.WrapHandler(swaggerFiles.Handler))

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
			log.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if cron != nil {
		if err := cron.Stop(ctx); err != nil {
			log.Warn("Scheduler did not stop cleanly", zap.Error(err))
		}
	}
	// Drain queued webhook deliveries after the last request has committed
	if err := bus.Stop(ctx); err != nil {
		log.Warn("Event bus did not drain", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
