// Package main is the entry point for Autopilot, the autonomous trading
// orchestration service.
//
// The process owns one market clock, one scheduler, one broker bridge and one
// broadcast hub, all built by the DI container and served over HTTP, a
// websocket and a server-sent event stream.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/autopilot/internal/config"
	"github.com/aristath/autopilot/internal/di"
	"github.com/aristath/autopilot/internal/modules/logs"
	"github.com/aristath/autopilot/internal/server"
	"github.com/aristath/autopilot/pkg/logger"
)

const (
	connectTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second

	// System log entries older than this are pruned once a day
	logRetention     = 30 * 24 * time.Hour
	logPruneInterval = 24 * time.Hour
)

// main is the application entry point. Startup order:
// 1. Load configuration (environment, .env, optional YAML overlay)
// 2. Initialize logging
// 3. Wire dependencies (database, repositories, services, scheduler)
// 4. Connect the broker session; failure leaves it disconnected, not fatal
// 5. Start the scheduler and the HTTP server
// 6. Wait for SIGINT/SIGTERM and shut down gracefully
func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting Autopilot")

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Autopilot stopped with error")
	}
	log.Info().Msg("Autopilot stopped")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	// No decider is wired here: the loop holds until one is supplied
	container, err := di.Wire(cfg, nil, log)
	if err != nil {
		return fmt.Errorf("failed to wire dependencies: %w", err)
	}
	// Stops the scheduler, drains the bridge worker and closes the database
	defer func() {
		if err := container.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close container")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A broker that is down at startup is not fatal. Jobs that need it skip
	// until a later connect succeeds and prices fall back meanwhile.
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	if container.Bridge.Connect(connectCtx) {
		log.Info().Msg("Broker session connected")
	} else {
		log.Warn().Msg("Broker session unavailable, continuing disconnected")
	}
	cancel()

	if err := container.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Container: container,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
	})

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	group.Go(func() error {
		pruneLogs(ctx, container.LogService, log)
		return nil
	})

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")
	return group.Wait()
}

// pruneLogs drops expired system log entries at startup and then daily
func pruneLogs(ctx context.Context, service *logs.Service, log zerolog.Logger) {
	ticker := time.NewTicker(logPruneInterval)
	defer ticker.Stop()

	for {
		if _, err := service.Prune(logRetention); err != nil {
			log.Warn().Err(err).Msg("Failed to prune system logs")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
