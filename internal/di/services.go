package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/autopilot/internal/broker"
	"github.com/aristath/autopilot/internal/clients/tradernet"
	"github.com/aristath/autopilot/internal/clients/yahoo"
	"github.com/aristath/autopilot/internal/config"
	"github.com/aristath/autopilot/internal/events"
	"github.com/aristath/autopilot/internal/modules/logs"
	"github.com/aristath/autopilot/internal/modules/market_hours"
	"github.com/aristath/autopilot/internal/modules/reflections"
	"github.com/aristath/autopilot/internal/modules/snapshots"
	"github.com/aristath/autopilot/internal/modules/trading"
	"github.com/aristath/autopilot/internal/scheduler"
)

// InitializeServices creates clients, the broker bridge, domain services and
// the scheduler. decider may be nil, in which case the loop never trades.
func InitializeServices(container *Container, cfg *config.Config, decider trading.Decider, log zerolog.Logger) error {
	// Broadcast hub first: every service publishes through it
	container.Hub = events.NewHub(log)

	var clockOpts []market_hours.Option
	if cfg.Market.Holidays {
		clockOpts = append(clockOpts, market_hours.WithHolidays(market_hours.NewHolidayCalendar()))
	}
	clock, err := market_hours.NewClock(cfg.Market.Timezone, clockOpts...)
	if err != nil {
		return fmt.Errorf("failed to create market clock: %w", err)
	}
	container.Clock = clock

	// Clients
	container.TradernetClient = tradernet.NewClient(cfg.BrokerURL, cfg.BrokerAPIKey, cfg.Currency, log)
	container.YahooClient = yahoo.NewClient(yahoo.Config{
		BaseURL:           cfg.Yahoo.BaseURL,
		RequestsPerMinute: cfg.Yahoo.RequestsPerMinute,
	}, log)

	// Single serialized worker in front of the broker session
	container.Bridge = broker.NewBridge(container.TradernetClient, container.YahooClient, broker.Config{
		OrderTimeout:  cfg.Execution.OrderTimeout,
		PollInterval:  cfg.Execution.OrderPollInterval,
		PriceCooldown: cfg.Execution.PriceCooldown,
	}, log)

	container.LogService = logs.NewService(container.LogRepo, container.Hub, log)

	container.TradingLoop = trading.NewLoop(
		container.Bridge,
		decider,
		container.TradeRepo,
		container.Hub,
		container.LogService,
		log,
	)

	container.ReflectionService = reflections.NewService(
		container.ReflectionRepo,
		container.TradeRepo,
		container.Hub,
		container.LogService,
		log,
	)

	container.SnapshotService = snapshots.NewService(
		container.SnapshotRepo,
		container.Bridge,
		container.SettingsRepo,
		container.Clock,
		container.Hub,
		cfg.Scheduler.InitialPortfolioValue,
		log,
	)

	container.Scheduler = scheduler.New(scheduler.Config{
		TradingInterval:     cfg.TradingInterval(),
		SnapshotInterval:    cfg.SnapshotInterval(),
		ReflectionThreshold: cfg.Scheduler.ReflectionTradesThreshold,
		Location:            container.Clock.Location(),
		DailyReflection:     cfg.Scheduler.DailyReflection,
		WeeklyReflection:    cfg.Scheduler.WeeklyReflection,
	}, container.Clock, newSchedulerStore(container), scheduler.Callbacks{
		Trading:    container.TradingLoop.Run,
		Snapshot:   container.SnapshotService.Run,
		Reflection: container.ReflectionService.Run,
		OnModeChange: func(previous, current scheduler.RunMode) {
			publishModeChange(container, previous, current)
		},
	}, log)

	// The scheduler owns the trade counter
	container.TradingLoop.SetRecorder(container.Scheduler)

	log.Debug().Msg("Services initialized")
	return nil
}

func publishModeChange(container *Container, previous, current scheduler.RunMode) {
	ctx := context.Background()
	container.Hub.Publish(ctx, &events.ModeChangeData{
		Mode:     string(current),
		Previous: string(previous),
	})
	container.Hub.Publish(ctx, &events.SchedulerStatusData{Status: container.Scheduler.Status()})
}
