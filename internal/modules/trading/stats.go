package trading

import (
	"github.com/shopspring/decimal"

	"github.com/aristath/autopilot/internal/broker"
)

// CalculateStats aggregates trades. Money totals are summed as decimals and
// rounded to cents. Win rate is winning exits over all exits, in percent.
func CalculateStats(trades []Trade) Stats {
	var s Stats
	if len(trades) == 0 {
		return s
	}

	volume := decimal.Zero
	fees := decimal.Zero
	realized := decimal.Zero
	exits := 0
	var largestWin, largestLoss float64

	for _, t := range trades {
		switch t.Action {
		case broker.ActionBuy:
			s.BuyTrades++
		case broker.ActionSell:
			s.SellTrades++
		case broker.ActionClose:
			s.CloseTrades++
		}

		volume = volume.Add(decimal.NewFromFloat(t.TotalValue))
		fees = fees.Add(decimal.NewFromFloat(t.Fee))

		if !t.IsExit() {
			continue
		}
		exits++

		var pnl float64
		if t.PnL != nil {
			pnl = *t.PnL
		}
		realized = realized.Add(decimal.NewFromFloat(pnl))
		switch {
		case pnl > 0:
			s.WinningTrades++
		case pnl < 0:
			s.LosingTrades++
		}
		if exits == 1 || pnl > largestWin {
			largestWin = pnl
		}
		if exits == 1 || pnl < largestLoss {
			largestLoss = pnl
		}
	}

	s.TotalTrades = len(trades)
	s.TotalVolume, _ = volume.Round(2).Float64()
	s.TotalFees, _ = fees.Round(2).Float64()
	s.RealizedPnL, _ = realized.Round(2).Float64()
	s.AvgTradeSize, _ = volume.Div(decimal.NewFromInt(int64(len(trades)))).Round(2).Float64()

	if exits > 0 {
		s.WinRate, _ = decimal.NewFromInt(int64(s.WinningTrades)).
			Div(decimal.NewFromInt(int64(exits))).
			Mul(decimal.NewFromInt(100)).
			Round(2).Float64()
		s.LargestWin, _ = decimal.NewFromFloat(largestWin).Round(2).Float64()
		s.LargestLoss, _ = decimal.NewFromFloat(largestLoss).Round(2).Float64()
	}

	return s
}
