package logs

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/autopilot/internal/events"
)

// Publisher fans events out to live observers
type Publisher interface {
	Publish(ctx context.Context, data events.EventData) int
}

// Service writes the system log. Every entry is mirrored to zerolog and
// persisted; WARNING and ERROR entries are also broadcast as log events.
type Service struct {
	repo      *Repository
	publisher Publisher
	log       zerolog.Logger
	now       func() time.Time
}

// NewService creates a log service. publisher may be nil.
func NewService(repo *Repository, publisher Publisher, log zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		log:       log.With().Str("service", "logs").Logger(),
		now:       time.Now,
	}
}

// AppendLog records one entry. Persistence failures are logged, never returned.
func (s *Service) AppendLog(level, component, message string, details map[string]interface{}) {
	level = normalizeLevel(level)

	s.mirror(level, component, message, details)

	if _, err := s.repo.Append(Entry{
		Timestamp: s.now(),
		Level:     level,
		Component: component,
		Message:   message,
		Details:   details,
	}); err != nil {
		s.log.Error().Err(err).Str("component", component).Msg("Failed to persist log entry")
	}

	if s.publisher != nil && (level == "WARNING" || level == "ERROR") {
		s.publisher.Publish(context.Background(), &events.LogData{
			Level:     level,
			Component: component,
			Message:   message,
			Details:   details,
		})
	}
}

// List returns persisted entries
func (s *Service) List(f Filter) ([]Entry, error) {
	return s.repo.List(f)
}

// Prune drops entries older than the retention window
func (s *Service) Prune(retention time.Duration) (int64, error) {
	n, err := s.repo.DeleteOlderThan(s.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info().Int64("deleted", n).Dur("retention", retention).Msg("Pruned system logs")
	}
	return n, nil
}

func (s *Service) mirror(level, component, message string, details map[string]interface{}) {
	var ev *zerolog.Event
	switch level {
	case "DEBUG":
		ev = s.log.Debug()
	case "WARNING":
		ev = s.log.Warn()
	case "ERROR":
		ev = s.log.Error()
	default:
		ev = s.log.Info()
	}
	if len(details) > 0 {
		ev = ev.Fields(details)
	}
	ev.Str("source", component).Msg(message)
}

func normalizeLevel(level string) string {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return "DEBUG"
	case "WARN", "WARNING":
		return "WARNING"
	case "ERROR", "CRITICAL":
		return "ERROR"
	default:
		return "INFO"
	}
}
