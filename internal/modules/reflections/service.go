package reflections

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/autopilot/internal/events"
	"github.com/aristath/autopilot/internal/modules/trading"
	"github.com/aristath/autopilot/internal/scheduler"
)

const component = "reflections"

// TradeSource reads executed trades for a period
type TradeSource interface {
	GetInRange(start, end time.Time) ([]trading.Trade, error)
}

// Publisher fans events out to live observers
type Publisher interface {
	Publish(ctx context.Context, data events.EventData) int
}

// SystemLog receives user-visible log lines
type SystemLog interface {
	AppendLog(level, component, message string, details map[string]interface{})
}

// Service generates and stores reflections
type Service struct {
	repo      *Repository
	trades    TradeSource
	publisher Publisher
	syslog    SystemLog
	log       zerolog.Logger
	now       func() time.Time
}

// NewService creates a reflection service
func NewService(repo *Repository, trades TradeSource, publisher Publisher, syslog SystemLog, log zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		trades:    trades,
		publisher: publisher,
		syslog:    syslog,
		log:       log.With().Str("service", component).Logger(),
		now:       time.Now,
	}
}

// lookback is the period covered by a reflection of the given kind.
// Trade-count and manual reflections cover everything since the previous
// reflection and fall back to the daily window when there is none.
func lookback(kind Kind) time.Duration {
	if kind == KindWeekly {
		return 7 * 24 * time.Hour
	}
	return 24 * time.Hour
}

// KindForJob maps a scheduler job id to the reflection it produces
func KindForJob(jobID string) Kind {
	switch jobID {
	case scheduler.JobDailyReflection:
		return KindDaily
	case scheduler.JobWeeklyReflection:
		return KindWeekly
	case scheduler.JobTradeReflection:
		return KindTradeCount
	default:
		return KindManual
	}
}

// Generate summarizes the period ending now, persists the reflection and
// broadcasts it
func (s *Service) Generate(ctx context.Context, kind Kind) (*Reflection, error) {
	end := s.now().UTC()
	start, err := s.periodStart(kind, end)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, &events.AgentStatusData{Status: events.StatusReflect, Message: fmt.Sprintf("Generating %s reflection", kind)})
	defer s.publish(ctx, &events.AgentStatusData{Status: events.StatusIdle})

	trades, err := s.trades.GetInRange(start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load trades for reflection: %w", err)
	}
	stats := trading.CalculateStats(trades)

	ref := Reflection{
		CreatedAt:      end,
		Kind:           kind,
		PeriodStart:    start,
		PeriodEnd:      end,
		TradesAnalyzed: len(trades),
		TotalFees:      stats.TotalFees,
		Content:        summarize(kind, stats),
		LessonsLearned: lessons(stats),
	}
	if len(trades) > 0 {
		pnl, winRate := stats.RealizedPnL, stats.WinRate
		ref.TotalPnL = &pnl
		ref.WinRate = &winRate
	}

	id, err := s.repo.Create(ref)
	if err != nil {
		return nil, err
	}
	ref.ID = id

	s.log.Info().
		Str("kind", string(kind)).
		Int("trades", len(trades)).
		Msg("Reflection generated")
	if s.syslog != nil {
		s.syslog.AppendLog("INFO", component,
			fmt.Sprintf("Generated %s reflection: %d trades analyzed", kind, len(trades)),
			map[string]interface{}{"reflection_id": id})
	}

	s.publish(ctx, &events.ReflectionData{
		ID:             id,
		PeriodStart:    start.Format(time.RFC3339),
		PeriodEnd:      end.Format(time.RFC3339),
		TradesAnalyzed: len(trades),
		TotalFees:      stats.TotalFees,
		Content:        ref.Content,
	})

	return &ref, nil
}

// Run is the scheduler callback. The reflection kind follows the job that fired.
func (s *Service) Run(ctx context.Context) error {
	_, err := s.Generate(ctx, KindForJob(scheduler.JobID(ctx)))
	return err
}

// List returns the most recent reflections
func (s *Service) List(limit int) ([]Reflection, error) {
	return s.repo.List(limit)
}

// LastPeriodEnd returns the end of the most recent reflection period
func (s *Service) LastPeriodEnd() (*time.Time, error) {
	return s.repo.LastPeriodEnd()
}

func (s *Service) periodStart(kind Kind, end time.Time) (time.Time, error) {
	start := end.Add(-lookback(kind))
	if kind == KindDaily || kind == KindWeekly {
		return start, nil
	}

	last, err := s.repo.LastPeriodEnd()
	if err != nil {
		return time.Time{}, err
	}
	if last != nil && last.Before(end) {
		return *last, nil
	}
	return start, nil
}

func (s *Service) publish(ctx context.Context, data events.EventData) {
	if s.publisher != nil {
		s.publisher.Publish(ctx, data)
	}
}

func summarize(kind Kind, st trading.Stats) string {
	if st.TotalTrades == 0 {
		return fmt.Sprintf("No trades were executed during this %s period.", periodName(kind))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s reflection: %d trades (%d buys, %d sells/closes).",
		strings.ToUpper(periodName(kind)[:1])+periodName(kind)[1:],
		st.TotalTrades, st.BuyTrades, st.SellTrades+st.CloseTrades)
	fmt.Fprintf(&b, " Traded value $%.2f, fees $%.2f.", st.TotalVolume, st.TotalFees)
	if st.SellTrades+st.CloseTrades > 0 {
		fmt.Fprintf(&b, " Realized P&L $%.2f with a %.1f%% win rate (largest win $%.2f, largest loss $%.2f).",
			st.RealizedPnL, st.WinRate, st.LargestWin, st.LargestLoss)
	}
	return b.String()
}

func lessons(st trading.Stats) string {
	var out []string
	if st.TotalTrades == 0 {
		return ""
	}
	if st.TotalFees > 0 && st.RealizedPnL != 0 && st.TotalFees >= abs(st.RealizedPnL) {
		out = append(out, "Fees consumed the realized result; trade less often or in larger size.")
	}
	exits := st.SellTrades + st.CloseTrades
	if exits > 0 && st.WinRate < 50 {
		out = append(out, "Fewer than half of the exits were profitable.")
	}
	if st.LargestLoss < 0 && st.LargestWin > 0 && -st.LargestLoss > st.LargestWin {
		out = append(out, "The largest loss outweighed the largest win; cut losers sooner.")
	}
	if exits == 0 {
		out = append(out, "No positions were exited; realized performance is not yet measurable.")
	}
	return strings.Join(out, " ")
}

func periodName(kind Kind) string {
	switch kind {
	case KindDaily:
		return "daily"
	case KindWeekly:
		return "weekly"
	default:
		return "review"
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
