// Package di provides dependency injection wiring and initialization.
//
// The Container is the single source of truth for service instances. It is
// built by Wire and handed to the server and the process entry point.
package di

import (
	"github.com/aristath/autopilot/internal/broker"
	"github.com/aristath/autopilot/internal/clients/tradernet"
	"github.com/aristath/autopilot/internal/clients/yahoo"
	"github.com/aristath/autopilot/internal/config"
	"github.com/aristath/autopilot/internal/database"
	"github.com/aristath/autopilot/internal/events"
	"github.com/aristath/autopilot/internal/modules/logs"
	"github.com/aristath/autopilot/internal/modules/market_hours"
	"github.com/aristath/autopilot/internal/modules/reflections"
	"github.com/aristath/autopilot/internal/modules/settings"
	"github.com/aristath/autopilot/internal/modules/snapshots"
	"github.com/aristath/autopilot/internal/modules/trading"
	"github.com/aristath/autopilot/internal/scheduler"
)

// Container holds all dependencies for the application
type Container struct {
	Config *config.Config

	// Database
	DB *database.DB

	// Clients
	TradernetClient *tradernet.Client
	YahooClient     *yahoo.Client

	// Repositories
	SettingsRepo   *settings.Repository
	LogRepo        *logs.Repository
	TradeRepo      *trading.TradeRepository
	ReflectionRepo *reflections.Repository
	SnapshotRepo   *snapshots.Repository

	// Services
	Hub               *events.Hub
	Clock             *market_hours.Clock
	Bridge            *broker.Bridge
	LogService        *logs.Service
	TradingLoop       *trading.Loop
	ReflectionService *reflections.Service
	SnapshotService   *snapshots.Service
	Scheduler         *scheduler.Scheduler
}

// Close releases the bridge worker and the database
func (c *Container) Close() error {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.Bridge != nil {
		c.Bridge.Close()
	}
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
