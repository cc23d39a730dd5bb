package di

import (
	"github.com/rs/zerolog"

	"github.com/aristath/autopilot/internal/modules/logs"
	"github.com/aristath/autopilot/internal/modules/reflections"
	"github.com/aristath/autopilot/internal/modules/settings"
	"github.com/aristath/autopilot/internal/modules/snapshots"
	"github.com/aristath/autopilot/internal/modules/trading"
)

// InitializeRepositories creates all repositories over the container database
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	conn := container.DB.Conn()

	container.SettingsRepo = settings.NewRepository(conn, log)
	container.LogRepo = logs.NewRepository(conn, log)
	container.TradeRepo = trading.NewTradeRepository(conn, log)
	container.ReflectionRepo = reflections.NewRepository(conn, log)
	container.SnapshotRepo = snapshots.NewRepository(conn, log)

	log.Debug().Msg("Repositories initialized")
	return nil
}
