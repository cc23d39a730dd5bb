package snapshots

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/autopilot/internal/broker"
	"github.com/aristath/autopilot/internal/events"
	"github.com/aristath/autopilot/internal/modules/market_hours"
	"github.com/aristath/autopilot/internal/modules/settings"
)

// AccountSource reads the live account
type AccountSource interface {
	IsConnected() bool
	Account(ctx context.Context) (broker.Account, error)
}

// SettingsStore persists the initial portfolio value
type SettingsStore interface {
	GetFloat(key string, defaultValue float64) (float64, error)
	SetFloat(key string, value float64) error
}

// SessionSource reports the current market session
type SessionSource interface {
	Session() market_hours.Session
}

// Publisher fans events out to live observers
type Publisher interface {
	Publish(ctx context.Context, data events.EventData) int
}

// Service takes portfolio snapshots
type Service struct {
	repo      *Repository
	account   AccountSource
	settings  SettingsStore
	clock     SessionSource
	publisher Publisher
	log       zerolog.Logger
	now       func() time.Time

	// configuredInitial seeds the initial value when none is stored yet
	configuredInitial float64

	mu          sync.Mutex
	lastSession market_hours.Session
}

// NewService creates a snapshot service. initialValue of zero means the
// first observed total value becomes the P&L baseline.
func NewService(repo *Repository, account AccountSource, store SettingsStore, clock SessionSource, publisher Publisher, initialValue float64, log zerolog.Logger) *Service {
	return &Service{
		repo:              repo,
		account:           account,
		settings:          store,
		clock:             clock,
		publisher:         publisher,
		configuredInitial: initialValue,
		log:               log.With().Str("service", "snapshots").Logger(),
		now:               time.Now,
	}
}

// Run is the scheduler callback: announce a session change, then snapshot
func (s *Service) Run(ctx context.Context) error {
	s.CheckMarketStatus(ctx)

	if !s.account.IsConnected() {
		s.log.Debug().Msg("Broker not connected, skipping snapshot")
		return nil
	}
	_, err := s.Take(ctx)
	return err
}

// CheckMarketStatus broadcasts market_status when the session differs from
// the one seen on the previous call. The first call only records the session.
func (s *Service) CheckMarketStatus(ctx context.Context) bool {
	if s.clock == nil {
		return false
	}
	current := s.clock.Session()

	s.mu.Lock()
	previous := s.lastSession
	s.lastSession = current
	s.mu.Unlock()

	if previous == "" || previous == current {
		return false
	}

	s.log.Info().
		Str("previous", string(previous)).
		Str("session", string(current)).
		Msg("Market session changed")

	s.publish(ctx, &events.MarketStatusData{
		Session:  string(current),
		Previous: string(previous),
		IsOpen:   current.IsOpen(),
	})
	return true
}

// Take reads the account, values it against the initial value, persists the
// snapshot and broadcasts a portfolio update
func (s *Service) Take(ctx context.Context) (*Snapshot, error) {
	account, err := s.account.Account(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read account: %w", err)
	}

	initial, err := s.InitialValue(account.TotalValue)
	if err != nil {
		return nil, err
	}

	snap := Value(account, initial)
	snap.Timestamp = s.now().UTC()

	id, err := s.repo.Create(snap)
	if err != nil {
		return nil, err
	}
	snap.ID = id

	s.log.Debug().
		Float64("total_value", snap.TotalValue).
		Float64("pnl", snap.PnL).
		Msg("Portfolio snapshot saved")

	positions := make([]events.PositionData, 0, len(snap.Positions))
	for _, p := range snap.Positions {
		positions = append(positions, events.PositionData{
			Symbol:        p.Symbol,
			Quantity:      p.Quantity,
			AvgPrice:      p.AvgPrice,
			CurrentPrice:  p.CurrentPrice,
			MarketValue:   p.MarketValue(),
			UnrealizedPnL: p.UnrealizedPnL(),
		})
	}
	s.publish(ctx, &events.PortfolioUpdateData{
		Cash:          snap.Cash,
		TotalValue:    snap.TotalValue,
		HoldingsValue: snap.HoldingsValue,
		PnL:           snap.PnL,
		PnLPercent:    snap.PnLPercent,
		Positions:     positions,
	})

	return &snap, nil
}

// InitialValue returns the stored P&L baseline, storing one on first use
func (s *Service) InitialValue(current float64) (float64, error) {
	stored, err := s.settings.GetFloat(settings.KeyInitialPortfolioValue, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to read initial portfolio value: %w", err)
	}
	if stored > 0 {
		return stored, nil
	}

	initial := s.configuredInitial
	if initial <= 0 {
		initial = current
	}
	if initial <= 0 {
		return 0, nil
	}

	if err := s.settings.SetFloat(settings.KeyInitialPortfolioValue, initial); err != nil {
		return 0, fmt.Errorf("failed to store initial portfolio value: %w", err)
	}
	s.log.Info().Float64("initial_value", initial).Msg("Initial portfolio value recorded")
	return initial, nil
}

// History returns snapshots from the last window, oldest first
func (s *Service) History(window time.Duration) ([]Snapshot, error) {
	return s.repo.History(s.now().Add(-window), 0)
}

// Value computes holdings value and P&L for an account. A zero initial value
// yields zero P&L.
func Value(account broker.Account, initial float64) Snapshot {
	holdings := decimal.Zero
	for _, p := range account.Positions {
		holdings = holdings.Add(decimal.NewFromFloat(p.Quantity).Mul(decimal.NewFromFloat(p.CurrentPrice)))
	}

	snap := Snapshot{
		TotalValue: account.TotalValue,
		Cash:       account.Cash,
		Positions:  account.Positions,
	}
	snap.HoldingsValue, _ = holdings.Round(2).Float64()

	if initial > 0 {
		pnl := decimal.NewFromFloat(account.TotalValue).Sub(decimal.NewFromFloat(initial))
		snap.PnL, _ = pnl.Round(2).Float64()
		snap.PnLPercent, _ = pnl.Div(decimal.NewFromFloat(initial)).Mul(decimal.NewFromInt(100)).Round(4).Float64()
	}
	return snap
}

func (s *Service) publish(ctx context.Context, data events.EventData) {
	if s.publisher != nil {
		s.publisher.Publish(ctx, data)
	}
}
