// Package snapshots records periodic portfolio valuations and announces
// market session transitions.
package snapshots

import (
	"time"

	"github.com/aristath/autopilot/internal/broker"
)

// Snapshot is a point-in-time portfolio valuation
type Snapshot struct {
	ID            int64             `json:"id"`
	Timestamp     time.Time         `json:"timestamp"`
	TotalValue    float64           `json:"total_value"`
	Cash          float64           `json:"cash"`
	HoldingsValue float64           `json:"holdings_value"`
	PnL           float64           `json:"pnl"`
	PnLPercent    float64           `json:"pnl_percent"`
	Positions     []broker.Position `json:"positions"`
}
