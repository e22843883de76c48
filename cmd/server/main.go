package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/atulm/billdrop/internal/config"
	"github.com/atulm/billdrop/internal/database"
	"github.com/atulm/billdrop/internal/healthcheck"
	"github.com/atulm/billdrop/internal/pdf"
	"github.com/atulm/billdrop/internal/provider"
	"github.com/atulm/billdrop/internal/sweep"
	"github.com/atulm/billdrop/internal/web"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting billdrop")

	// Connect to database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations completed")

	// Create components
	providers := provider.NewRegistry(cfg, db, logger)
	pinger := healthcheck.New(cfg.HealthcheckURL, logger)
	sweeper := sweep.New(sweep.Deps{
		Config:    cfg,
		DB:        db,
		Providers: providers,
		Decryptor: pdf.NewDecryptor(),
		Health:    pinger,
		Logger:    logger,
	})

	server, err := web.NewServer(web.Deps{
		Config:    cfg,
		DB:        db,
		Providers: providers,
		Sweeper:   sweeper,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to create web server", "error", err)
		os.Exit(1)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		logger.Info("received shutdown signal", "signal", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down http server", "error", err)
		}
		cancel()
	}()

	// Start sweep scheduler
	go sweeper.Run(ctx)

	// Start web server
	logger.Info("billdrop is running, press Ctrl+C to stop")
	if err := server.Start(); err != nil {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("billdrop stopped")
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
			NoColor:    false,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
