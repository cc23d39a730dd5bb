// Package reflections summarizes trading activity over a period and keeps
// the resulting reflections for the UI.
package reflections

import "time"

// Kind says what triggered a reflection
type Kind string

const (
	KindDaily      Kind = "daily"
	KindWeekly     Kind = "weekly"
	KindTradeCount Kind = "trade_count"
	KindManual     Kind = "manual"
)

// Reflection is a persisted period summary
type Reflection struct {
	ID             int64     `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	Kind           Kind      `json:"kind"`
	PeriodStart    time.Time `json:"period_start"`
	PeriodEnd      time.Time `json:"period_end"`
	TradesAnalyzed int       `json:"trades_analyzed"`
	TotalPnL       *float64  `json:"total_pnl,omitempty"`
	WinRate        *float64  `json:"win_rate,omitempty"`
	TotalFees      float64   `json:"total_fees"`
	Content        string    `json:"content"`
	LessonsLearned string    `json:"lessons_learned,omitempty"`
}
