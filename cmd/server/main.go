package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/thebridge/bridge-checkout/internal/bridgeapi"
	"github.com/thebridge/bridge-checkout/internal/cache"
	"github.com/thebridge/bridge-checkout/internal/config"
	"github.com/thebridge/bridge-checkout/internal/database"
	"github.com/thebridge/bridge-checkout/internal/events"
	"github.com/thebridge/bridge-checkout/internal/handlers"
	"github.com/thebridge/bridge-checkout/internal/logging"
	"github.com/thebridge/bridge-checkout/internal/middleware"
	"github.com/thebridge/bridge-checkout/internal/poller"
	"github.com/thebridge/bridge-checkout/internal/routes"
	"github.com/thebridge/bridge-checkout/internal/services"
)

func main() {
	cfg := config.Load()

	// Structured logging (JSON to stdout)
	logging.Setup(cfg.DevelopmentMode)

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}
	if cfg.DevelopmentMode {
		slog.Warn("development mode: payment callbacks are replayed right after placement")
	}

	// Database
	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	logLevel := slog.LevelInfo
	if cfg.DevelopmentMode {
		logLevel = slog.LevelDebug
	}
	pgLogHandler := logging.NewPGHandler(database.DB)
	slog.SetDefault(slog.New(logging.NewMultiHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}),
		pgLogHandler,
	)))

	cleanupDone := make(chan struct{})
	logging.StartCleanup(database.DB, cfg.LogRetentionDays, cleanupDone)

	// Sentry error tracking
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.AppEnv,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Shared cache: Redis when configured, in-process otherwise
	var store cache.Store = cache.NewMemoryStore()
	if cfg.RedisURL != "" {
		redisStore, err := cache.NewRedisStore(cfg.RedisURL, "bridge")
		if err != nil {
			slog.Error("redis connection failed", "error", err)
			os.Exit(1)
		}
		defer redisStore.Close()
		store = redisStore
		slog.Info("redis cache enabled")
	}

	// Order events: RabbitMQ when configured
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.AMQPURL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.OrderEventsExchange)
		if err != nil {
			slog.Error("rabbitmq connection failed", "error", err)
			os.Exit(1)
		}
		publisher = amqpPublisher
		slog.Info("order events enabled", "exchange", cfg.OrderEventsExchange)
	}
	defer publisher.Close()

	// Member API client
	memberAPI := bridgeapi.NewClient(cfg.BridgeAPIURL, cfg.BridgeAPITimeout, bridgeapi.BreakerConfig{
		MaxRequests:      cfg.BreakerMaxRequests,
		Interval:         cfg.BreakerInterval,
		Timeout:          cfg.BreakerTimeout,
		FailureThreshold: cfg.BreakerFailureThreshold,
	})

	// Order tracking
	tracker := poller.NewTracker(poller.New(poller.Config{
		Interval:    cfg.PollInterval,
		Timeout:     cfg.PollTimeout,
		MaxAttempts: cfg.PollMaxAttempts,
	}), cfg.TrackingRetention)

	// Services
	catalogService := services.NewCatalogService(memberAPI, store, cfg.CatalogTTL)
	orderService := services.NewOrderService(
		memberAPI,
		cache.NewCoordinator(store),
		tracker,
		services.NewGormOrderLog(database.DB),
		publisher,
		cfg.DevelopmentMode,
	)
	callbackService := services.NewCallbackService(memberAPI)
	views := cache.NewViews(store, memberAPI, cfg.MemberViewTTL)

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: customErrorHandler,
	})

	// Sentry middleware
	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${locals:requestid}\n",
	}))
	app.Use(middleware.Metrics())
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		return c.Next()
	})

	// Routes
	routes.Setup(app, cfg, routes.Handlers{
		Health:   handlers.NewHealthHandler(store, tracker),
		Catalog:  handlers.NewCatalogHandler(catalogService),
		Checkout: handlers.NewCheckoutHandler(orderService, callbackService),
		Account:  handlers.NewAccountHandler(views),
		Admin:    handlers.NewAdminHandler(orderService),
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port, "member_api", cfg.BridgeAPIURL)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	if err := app.Shutdown(); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// Stop tracking before the stores and the order log go away
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := tracker.Shutdown(ctx); err != nil {
		slog.Error("order tracking shutdown timed out", "error", err)
	}
	cancel()

	close(cleanupDone)
	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	// Close database connections
	if sqlDB, err := database.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", "error", err)
		}
	}

	slog.Info("server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
