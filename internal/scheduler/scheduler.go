// Package scheduler drives the trading loop, portfolio snapshots and
// reflections on cron schedules in the market timezone.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job ids
const (
	JobTradingLoop       = "trading_loop"
	JobPortfolioSnapshot = "portfolio_snapshot"
	JobDailyReflection   = "daily_reflection"
	JobWeeklyReflection  = "weekly_reflection"
	JobTradeReflection   = "trade_count_reflection"
)

const component = "scheduler"

// Config holds job timing
type Config struct {
	TradingInterval     time.Duration
	SnapshotInterval    time.Duration
	ReflectionThreshold int
	Location            *time.Location
	// Cron specs (5 fields) evaluated in Location
	DailyReflection  string
	WeeklyReflection string
}

func (c Config) withDefaults() Config {
	if c.TradingInterval <= 0 {
		c.TradingInterval = 30 * time.Minute
	}
	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = time.Minute
	}
	if c.ReflectionThreshold <= 0 {
		c.ReflectionThreshold = 5
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.DailyReflection == "" {
		c.DailyReflection = "5 16 * * *"
	}
	if c.WeeklyReflection == "" {
		c.WeeklyReflection = "30 16 * * FRI"
	}
	return c
}

// job is a registered unit of work with its own re-entrancy flag
type job struct {
	id       string
	name     string
	schedule string // empty for jobs that only run on demand
	run      func(ctx context.Context, manual bool) error

	running atomic.Bool
	pending atomic.Int32 // queued on-demand runs not yet started
	entryID cron.EntryID

	mu      sync.Mutex
	lastRun time.Time
	lastErr string
}

// Scheduler owns the job registry, the run mode and the trade counter
type Scheduler struct {
	cfg       Config
	clock     SessionSource
	store     Persistence
	callbacks Callbacks
	log       zerolog.Logger

	jobs  map[string]*job
	order []string

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
	mode    RunMode

	countMu    sync.Mutex
	tradeCount int
}

// New creates a stopped scheduler. The run mode and the trade count since
// the last reflection are restored from the store.
func New(cfg Config, clock SessionSource, store Persistence, callbacks Callbacks, log zerolog.Logger) *Scheduler {
	s := &Scheduler{
		cfg:       cfg.withDefaults(),
		clock:     clock,
		store:     store,
		callbacks: callbacks,
		log:       log.With().Str("component", component).Logger(),
		jobs:      make(map[string]*job),
		mode:      DefaultMode,
	}

	s.register(JobTradingLoop, "Trading Analysis Loop", "@every "+s.cfg.TradingInterval.String(), s.tradingTick)
	s.register(JobPortfolioSnapshot, "Portfolio Snapshot", "@every "+s.cfg.SnapshotInterval.String(), s.snapshotTick)
	s.register(JobDailyReflection, "Daily Trading Reflection", s.cfg.DailyReflection, s.reflectionTick)
	s.register(JobWeeklyReflection, "Weekly Trading Reflection", s.cfg.WeeklyReflection, s.reflectionTick)
	s.register(JobTradeReflection, "Trade Count Reflection", "", s.reflectionTick)

	if mode, err := store.GetRunMode(); err != nil {
		s.log.Warn().Err(err).Str("mode", string(DefaultMode)).Msg("Could not load run mode, using default")
	} else if mode != "" {
		s.mode = mode
	}
	s.log.Info().Str("mode", string(s.mode)).Msg("Scheduler mode loaded")

	s.SyncTradeCount()
	return s
}

func (s *Scheduler) register(id, name, schedule string, run func(ctx context.Context, manual bool) error) {
	s.jobs[id] = &job{id: id, name: name, schedule: schedule, run: run}
	s.order = append(s.order, id)
}

// SyncTradeCount re-derives the trade counter from trades persisted after
// the last reflection's period end. Failures reset the counter to zero.
func (s *Scheduler) SyncTradeCount() {
	count, err := s.countTradesSinceReflection()
	if err != nil {
		s.log.Warn().Err(err).Msg("Could not sync trade count")
		count = 0
	}

	s.countMu.Lock()
	s.tradeCount = count
	s.countMu.Unlock()

	s.log.Info().Int("trades", count).Msg("Trade count synced")
}

func (s *Scheduler) countTradesSinceReflection() (int, error) {
	var since time.Time
	end, err := s.store.LastReflectionEnd()
	if err != nil {
		return 0, fmt.Errorf("last reflection: %w", err)
	}
	if end != nil {
		since = *end
	}
	return s.store.TradesSince(since)
}

// Start registers the scheduled jobs with cron and starts firing them.
// Starting a running scheduler is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.log.Warn().Msg("Scheduler already running")
		return nil
	}

	c := cron.New(cron.WithLocation(s.cfg.Location))
	for _, id := range s.order {
		j := s.jobs[id]
		if j.schedule == "" {
			continue
		}
		entryID, err := c.AddFunc(j.schedule, func() { s.execute(j, false) })
		if err != nil {
			return fmt.Errorf("failed to schedule %s (%q): %w", j.id, j.schedule, err)
		}
		j.entryID = entryID
		s.log.Info().
			Str("schedule", j.schedule).
			Str("job", j.id).
			Msg("Job registered")
	}

	c.Start()
	s.cron = c
	s.running = true

	minutes := int(s.cfg.TradingInterval / time.Minute)
	s.store.AppendLog(LevelInfo, component,
		fmt.Sprintf("Scheduler started - trading interval: %d minutes", minutes), nil)
	s.log.Info().Int("interval_minutes", minutes).Msg("Scheduler started")
	return nil
}

// Stop halts future firings. Job bodies already running are left to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cron.Stop()
	s.running = false

	s.store.AppendLog(LevelInfo, component, "Scheduler stopped", nil)
	s.log.Info().Msg("Scheduler stopped")
}

// IsRunning reports whether the scheduler is started
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Mode returns the current run mode
func (s *Scheduler) Mode() RunMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode persists and applies a run mode
func (s *Scheduler) SetMode(mode RunMode) error {
	mode, err := ParseRunMode(string(mode))
	if err != nil {
		return err
	}

	s.mu.Lock()
	previous := s.mode
	if err := s.store.SetRunMode(mode); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to persist run mode: %w", err)
	}
	s.mode = mode
	s.mu.Unlock()

	s.store.AppendLog(LevelInfo, component, fmt.Sprintf("Trading mode set to %s", mode), map[string]interface{}{
		"previous": string(previous),
	})
	s.log.Info().Str("previous", string(previous)).Str("mode", string(mode)).Msg("Trading mode changed")

	if s.callbacks.OnModeChange != nil {
		s.callbacks.OnModeChange(previous, mode)
	}
	return nil
}

// TriggerNow runs a job immediately in the background, bypassing the mode
// and market gates. It returns ErrJobRunning when a run of the same job is
// already in progress.
func (s *Scheduler) TriggerNow(jobID string) error {
	j, ok := s.jobs[jobID]
	if !ok {
		s.log.Warn().Str("job", jobID).Msg("Job not found")
		return fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	if j.running.Load() {
		s.log.Info().Str("job", jobID).Msg("Manual trigger refused, job already running")
		return fmt.Errorf("%w: %s", ErrJobRunning, jobID)
	}

	s.log.Info().Str("job", jobID).Msg("Manually triggering job")
	go s.execute(j, true)
	return nil
}

// RecordTradeExecuted counts one executed trade. Reaching the threshold
// resets the counter and queues exactly one reflection. A reflection still
// running when the threshold is reached again delays the new one, it never
// drops it.
func (s *Scheduler) RecordTradeExecuted() {
	threshold := s.cfg.ReflectionThreshold

	s.countMu.Lock()
	s.tradeCount++
	count := s.tradeCount
	fire := count >= threshold
	if fire {
		s.tradeCount = 0
	}
	s.countMu.Unlock()

	s.log.Info().Int("count", count).Int("threshold", threshold).Msg("Trade recorded")
	if !fire {
		return
	}

	s.store.AppendLog(LevelInfo, component,
		fmt.Sprintf("Trade threshold reached (%d trades) - triggering reflection", count), nil)

	j := s.jobs[JobTradeReflection]
	j.pending.Add(1)
	if j.running.Load() {
		s.store.AppendLog(LevelInfo, component, "Reflection in progress - next reflection queued", nil)
	}
	go s.drainQueued(j)
}

// TradeCount returns trades recorded since the last threshold reflection
func (s *Scheduler) TradeCount() int {
	s.countMu.Lock()
	defer s.countMu.Unlock()
	return s.tradeCount
}

// execute is the job boundary. Overlapping runs of the same job are skipped,
// and neither errors nor panics escape.
func (s *Scheduler) execute(j *job, manual bool) {
	if !j.running.CompareAndSwap(false, true) {
		s.log.Debug().Str("job", j.id).Msg("Previous run still in progress, skipping")
		return
	}
	s.runBody(j, manual)
	j.running.Store(false)

	s.drainQueued(j)
}

// drainQueued runs queued requests of j one after another. Whoever holds the
// running flag drains, and the flag holder re-checks after releasing it, so
// a request queued during a run is picked up by that run's owner.
func (s *Scheduler) drainQueued(j *job) {
	for j.pending.Load() > 0 {
		if !j.running.CompareAndSwap(false, true) {
			return
		}
		for j.pending.Load() > 0 {
			j.pending.Add(-1)
			s.runBody(j, true)
		}
		j.running.Store(false)
	}
}

// runBody invokes the job and records the outcome. The caller holds the
// running flag.
func (s *Scheduler) runBody(j *job, manual bool) {
	start := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}

		j.mu.Lock()
		j.lastRun = start
		j.lastErr = ""
		if err != nil {
			j.lastErr = err.Error()
		}
		j.mu.Unlock()

		if err != nil {
			s.log.Error().Err(err).Str("job", j.id).Msg("Job failed")
			s.store.AppendLog(LevelError, component, fmt.Sprintf("%s error: %s", j.id, err), map[string]interface{}{
				"job": j.id,
			})
			return
		}
		s.log.Debug().Str("job", j.id).Dur("duration", time.Since(start)).Msg("Job completed")
	}()

	s.log.Debug().Str("job", j.id).Bool("manual", manual).Msg("Running job")
	err = j.run(context.WithValue(context.Background(), jobKey{}, j.id), manual)
}

type jobKey struct{}

// JobID returns the id of the job whose run produced ctx, or "" outside a job
func JobID(ctx context.Context) string {
	id, _ := ctx.Value(jobKey{}).(string)
	return id
}

// tradingTick runs the trading callback only in AUTO mode during regular
// hours, unless triggered manually
func (s *Scheduler) tradingTick(ctx context.Context, manual bool) error {
	session := s.clock.Session()
	mode := s.Mode()

	s.store.AppendLog(LevelDebug, component,
		fmt.Sprintf("Trading check - Market: %s, Mode: %s", session, mode), nil)

	if !manual {
		if mode != ModeAuto {
			s.log.Debug().Str("mode", string(mode)).Msg("Skipping trade - not in AUTO mode")
			return nil
		}
		if !session.IsOpen() {
			s.log.Debug().Str("market", string(session)).Msg("Skipping trade - market not open")
			return nil
		}
	}

	if s.callbacks.Trading == nil {
		s.log.Warn().Msg("No trading callback set")
		return nil
	}

	s.log.Info().Bool("manual", manual).Msg("Executing trading loop")
	s.store.AppendLog(LevelInfo, component, "Starting scheduled analysis and trade", nil)
	return s.callbacks.Trading(ctx)
}

func (s *Scheduler) snapshotTick(ctx context.Context, _ bool) error {
	if s.callbacks.Snapshot == nil {
		return nil
	}
	return s.callbacks.Snapshot(ctx)
}

func (s *Scheduler) reflectionTick(ctx context.Context, _ bool) error {
	if s.callbacks.Reflection == nil {
		s.log.Warn().Msg("No reflection callback set")
		return nil
	}
	s.log.Info().Msg("Generating trading reflection")
	return s.callbacks.Reflection(ctx)
}
