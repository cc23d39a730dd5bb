package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/autopilot/internal/config"
	"github.com/aristath/autopilot/internal/modules/trading"
)

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations:
// 1. Initialize database
// 2. Initialize repositories
// 3. Initialize services and the scheduler
//
// Nothing is started: the caller connects the bridge and starts the scheduler.
func Wire(cfg *config.Config, decider trading.Decider, log zerolog.Logger) (*Container, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := InitializeRepositories(container, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	if err := InitializeServices(container, cfg, decider, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")
	return container, nil
}
