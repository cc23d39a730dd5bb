package scheduler

import "time"

// JobStatus describes one registered job
type JobStatus struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule,omitempty"`
	NextRun   *time.Time `json:"next_run"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	Running   bool       `json:"running"`
}

// Status is the scheduler snapshot served to the UI
type Status struct {
	IsRunning                 bool        `json:"is_running"`
	Mode                      RunMode     `json:"mode"`
	MarketStatus              string      `json:"market_status"`
	IsMarketOpen              bool        `json:"is_market_open"`
	NextJobs                  []JobStatus `json:"next_jobs"`
	TradingIntervalMinutes    int         `json:"trading_interval_minutes"`
	TradeCountSinceReflection int         `json:"trade_count_since_reflection"`
	ReflectionTradesThreshold int         `json:"reflection_trades_threshold"`
}

// Status returns the current scheduler snapshot. Next runs are only known
// while the scheduler is started.
func (s *Scheduler) Status() Status {
	session := s.clock.Session()

	s.mu.Lock()
	running := s.running
	mode := s.mode
	c := s.cron
	s.mu.Unlock()

	jobs := make([]JobStatus, 0, len(s.order))
	for _, id := range s.order {
		j := s.jobs[id]
		js := JobStatus{
			ID:       j.id,
			Name:     j.name,
			Schedule: j.schedule,
			Running:  j.running.Load(),
		}

		if running && c != nil && j.schedule != "" {
			if next := c.Entry(j.entryID).Next; !next.IsZero() {
				js.NextRun = &next
			}
		}

		j.mu.Lock()
		if !j.lastRun.IsZero() {
			last := j.lastRun
			js.LastRun = &last
		}
		js.LastError = j.lastErr
		j.mu.Unlock()

		jobs = append(jobs, js)
	}

	return Status{
		IsRunning:                 running,
		Mode:                      mode,
		MarketStatus:              string(session),
		IsMarketOpen:              session.IsOpen(),
		NextJobs:                  jobs,
		TradingIntervalMinutes:    int(s.cfg.TradingInterval / time.Minute),
		TradeCountSinceReflection: s.TradeCount(),
		ReflectionTradesThreshold: s.cfg.ReflectionThreshold,
	}
}
