// Package trading records executed trades and runs the decision loop that
// turns decisions into orders.
package trading

import (
	"fmt"
	"strings"
	"time"

	"github.com/aristath/autopilot/internal/broker"
)

// Trade is an executed order as persisted in the trades table
type Trade struct {
	ID         int64         `json:"id"`
	OrderID    string        `json:"order_id,omitempty"`
	ExecutedAt time.Time     `json:"executed_at"`
	Action     broker.Action `json:"action"`
	Symbol     string        `json:"symbol"`
	Quantity   float64       `json:"quantity"`
	Price      float64       `json:"price"`
	TotalValue float64       `json:"total_value"`
	Fee        float64       `json:"fee"`
	Reasoning  string        `json:"reasoning,omitempty"`
	// PnL is realized profit for SELL/CLOSE trades, nil for buys
	PnL *float64 `json:"pnl,omitempty"`
}

// Validate checks required fields before insertion
func (t Trade) Validate() error {
	if strings.TrimSpace(t.Symbol) == "" {
		return fmt.Errorf("symbol is required")
	}
	switch t.Action {
	case broker.ActionBuy, broker.ActionSell, broker.ActionClose:
	default:
		return fmt.Errorf("invalid action %q", t.Action)
	}
	if t.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %v", t.Quantity)
	}
	if t.Price <= 0 {
		return fmt.Errorf("price must be positive, got %v", t.Price)
	}
	if t.ExecutedAt.IsZero() {
		return fmt.Errorf("executed_at is required")
	}
	return nil
}

// IsExit reports whether the trade reduces a position
func (t Trade) IsExit() bool {
	return t.Action == broker.ActionSell || t.Action == broker.ActionClose
}

// TradeFromResult builds the record for a successful order result
func TradeFromResult(result broker.Result, reasoning string, executedAt time.Time) Trade {
	return Trade{
		OrderID:    result.OrderID,
		ExecutedAt: executedAt,
		Action:     result.Action,
		Symbol:     result.Symbol,
		Quantity:   result.Quantity,
		Price:      result.ExecutedPrice,
		TotalValue: result.TotalValue,
		Fee:        result.Fee,
		Reasoning:  reasoning,
	}
}

// Stats summarizes a set of trades
type Stats struct {
	TotalTrades   int     `json:"total_trades"`
	BuyTrades     int     `json:"buy_trades"`
	SellTrades    int     `json:"sell_trades"`
	CloseTrades   int     `json:"close_trades"`
	TotalVolume   float64 `json:"total_volume"`
	TotalFees     float64 `json:"total_fees"`
	RealizedPnL   float64 `json:"realized_pnl"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	AvgTradeSize  float64 `json:"avg_trade_size"`
	LargestWin    float64 `json:"largest_win"`
	LargestLoss   float64 `json:"largest_loss"`
}
