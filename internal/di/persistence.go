package di

import (
	"fmt"
	"time"

	"github.com/aristath/autopilot/internal/modules/logs"
	"github.com/aristath/autopilot/internal/modules/reflections"
	"github.com/aristath/autopilot/internal/modules/settings"
	"github.com/aristath/autopilot/internal/modules/trading"
	"github.com/aristath/autopilot/internal/scheduler"
)

// schedulerStore adapts the repositories to scheduler.Persistence
type schedulerStore struct {
	logs        *logs.Service
	settings    *settings.Repository
	trades      *trading.TradeRepository
	reflections *reflections.Repository
}

// newSchedulerStore creates the scheduler persistence adapter
func newSchedulerStore(container *Container) *schedulerStore {
	return &schedulerStore{
		logs:        container.LogService,
		settings:    container.SettingsRepo,
		trades:      container.TradeRepo,
		reflections: container.ReflectionRepo,
	}
}

func (s *schedulerStore) AppendLog(level, component, message string, details map[string]interface{}) {
	s.logs.AppendLog(level, component, message, details)
}

// GetRunMode returns "" when no mode has been stored
func (s *schedulerStore) GetRunMode() (scheduler.RunMode, error) {
	value, err := s.settings.Get(settings.KeySchedulerMode)
	if err != nil {
		return "", err
	}
	if value == nil {
		return "", nil
	}
	mode, err := scheduler.ParseRunMode(*value)
	if err != nil {
		return "", fmt.Errorf("stored scheduler mode %q: %w", *value, err)
	}
	return mode, nil
}

func (s *schedulerStore) SetRunMode(mode scheduler.RunMode) error {
	return s.settings.Set(settings.KeySchedulerMode, string(mode))
}

func (s *schedulerStore) TradesSince(since time.Time) (int, error) {
	return s.trades.CountSince(since)
}

func (s *schedulerStore) LastReflectionEnd() (*time.Time, error) {
	return s.reflections.LastPeriodEnd()
}
