package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/thebridge/bridge-checkout/internal/config"
	"github.com/thebridge/bridge-checkout/internal/devbridge"
	"github.com/thebridge/bridge-checkout/internal/logging"
)

// mockbridge serves an in-memory Member API for local development.
func main() {
	cfg := config.Load()
	logging.Setup(true)

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}

	mock := devbridge.New(devbridge.Options{
		JWTSecret:    cfg.JWTSecret,
		RedirectBase: "http://localhost:" + cfg.MockPort + "/pay",
	})
	app := fiber.New(fiber.Config{AppName: "mockbridge"})
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${method} | ${path}\n",
	}))
	app.Mount("/", mock.App())

	if token, err := devbridge.SignToken(cfg.JWTSecret, "dev-member", 12*time.Hour); err == nil {
		slog.Info("development member token", "member_id", "dev-member", "token", token)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("mock member api starting", "port", cfg.MockPort)
		if err := app.Listen(":" + cfg.MockPort); err != nil {
			slog.Error("mock member api failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	if err := app.Shutdown(); err != nil {
		slog.Error("mock shutdown error", "error", err)
	}
}
