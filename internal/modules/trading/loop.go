package trading

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/autopilot/internal/broker"
	"github.com/aristath/autopilot/internal/events"
)

// Decision is what the decider wants done this cycle. No orders means hold.
type Decision struct {
	Orders  []broker.Order
	Summary string
}

// Decider chooses orders from the current account state
type Decider interface {
	Decide(ctx context.Context, account broker.Account) (Decision, error)
}

// NoopDecider never trades
type NoopDecider struct{}

// Decide always holds
func (NoopDecider) Decide(context.Context, broker.Account) (Decision, error) {
	return Decision{Summary: "No trade decided"}, nil
}

// Executor is the broker surface the loop needs
type Executor interface {
	IsConnected() bool
	Account(ctx context.Context) (broker.Account, error)
	ExecuteOrder(ctx context.Context, order broker.Order) broker.Result
}

// TradeRecorder is told about every executed trade
type TradeRecorder interface {
	RecordTradeExecuted()
}

// SystemLog receives user-visible log lines
type SystemLog interface {
	AppendLog(level, component, message string, details map[string]interface{})
}

// Publisher fans events out to live observers
type Publisher interface {
	Publish(ctx context.Context, data events.EventData) int
}

// ErrBrokerUnavailable is returned when a cycle starts without a broker connection
var ErrBrokerUnavailable = errors.New("broker not connected")

const component = "trading"

// Loop runs one decide-and-execute cycle per invocation
type Loop struct {
	executor  Executor
	decider   Decider
	trades    *TradeRepository
	publisher Publisher
	syslog    SystemLog
	log       zerolog.Logger

	mu       sync.Mutex
	recorder TradeRecorder
	status   events.AgentStatusData
	now      func() time.Time
}

// NewLoop creates a trading loop. A nil decider never trades.
func NewLoop(executor Executor, decider Decider, trades *TradeRepository, publisher Publisher, syslog SystemLog, log zerolog.Logger) *Loop {
	if decider == nil {
		decider = NoopDecider{}
	}
	return &Loop{
		executor:  executor,
		decider:   decider,
		trades:    trades,
		publisher: publisher,
		syslog:    syslog,
		log:       log.With().Str("component", component).Logger(),
		status:    events.AgentStatusData{Status: events.StatusIdle},
		now:       time.Now,
	}
}

// SetRecorder wires the trade counter. The scheduler owns the counter and is
// built after the loop, so it is attached late.
func (l *Loop) SetRecorder(r TradeRecorder) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recorder = r
}

// Status returns the last agent status published
func (l *Loop) Status() events.AgentStatusData {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Run executes one cycle: announce, decide, execute, record, announce.
// A failed cycle is reported through the status and the returned error;
// the caller's job boundary writes the system log entry.
func (l *Loop) Run(ctx context.Context) error {
	l.setStatus(ctx, events.StatusAnalyzing, "")

	err := l.cycle(ctx)
	if err != nil {
		l.setStatus(ctx, events.StatusError, err.Error())
		return err
	}
	return nil
}

func (l *Loop) cycle(ctx context.Context) error {
	if !l.executor.IsConnected() {
		return ErrBrokerUnavailable
	}

	account, err := l.executor.Account(ctx)
	if err != nil {
		return fmt.Errorf("failed to read account: %w", err)
	}

	decision, err := l.decider.Decide(ctx, account)
	if err != nil {
		return fmt.Errorf("decision failed: %w", err)
	}

	if len(decision.Orders) == 0 {
		l.log.Info().Str("summary", decision.Summary).Msg("Analysis complete, no trade executed")
		l.setStatus(ctx, events.StatusIdle, decision.Summary)
		return nil
	}

	l.setStatus(ctx, events.StatusTrading, decision.Summary)

	executed := 0
	for _, order := range decision.Orders {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if result := l.execute(ctx, order, account.Positions); result.Success {
			executed++
		}
	}

	l.setStatus(ctx, events.StatusIdle, fmt.Sprintf("Executed %d of %d orders", executed, len(decision.Orders)))
	return nil
}

// Execute places a single order outside the scheduled cycle
func (l *Loop) Execute(ctx context.Context, order broker.Order) broker.Result {
	var positions []broker.Position
	if order.Normalize().Action != broker.ActionBuy && l.executor.IsConnected() {
		if account, err := l.executor.Account(ctx); err == nil {
			positions = account.Positions
		}
	}
	return l.execute(ctx, order, positions)
}

func (l *Loop) execute(ctx context.Context, order broker.Order, positions []broker.Position) broker.Result {
	result := l.executor.ExecuteOrder(ctx, order)

	l.publisher.Publish(ctx, &events.TradeData{
		Success:       result.Success,
		OrderID:       result.OrderID,
		Symbol:        result.Symbol,
		Action:        string(result.Action),
		Quantity:      result.Quantity,
		ExecutedPrice: result.ExecutedPrice,
		TotalValue:    result.TotalValue,
		Fee:           result.Fee,
		CashAfter:     result.CashAfter,
		Reasoning:     order.Reasoning,
		Error:         result.Error,
	})

	if !result.Success {
		l.syslog.AppendLog("WARNING", component,
			fmt.Sprintf("Order %s %s failed: %s", result.Action, result.Symbol, result.Error),
			map[string]interface{}{"failure": string(result.Failure)})
		return result
	}

	trade := TradeFromResult(result, order.Reasoning, l.now())
	trade.PnL = realizedPnL(result, positions)

	if _, err := l.trades.Create(trade); err != nil {
		// The order did execute; keep counting it
		l.log.Error().Err(err).Str("order_id", result.OrderID).Msg("Failed to record trade")
	}

	l.syslog.AppendLog("INFO", component,
		fmt.Sprintf("Executed %s %.4g %s @ %.2f", result.Action, result.Quantity, result.Symbol, result.ExecutedPrice),
		map[string]interface{}{"order_id": result.OrderID, "fee": result.Fee})

	l.mu.Lock()
	recorder := l.recorder
	l.mu.Unlock()
	if recorder != nil {
		recorder.RecordTradeExecuted()
	}

	return result
}

// realizedPnL prices an exit against the position's average cost, net of fees
func realizedPnL(result broker.Result, positions []broker.Position) *float64 {
	if result.Action != broker.ActionSell && result.Action != broker.ActionClose {
		return nil
	}
	for _, p := range positions {
		if p.Symbol != result.Symbol {
			continue
		}
		perShare := decimal.NewFromFloat(result.ExecutedPrice).Sub(decimal.NewFromFloat(p.AvgPrice))
		if p.Quantity < 0 {
			perShare = perShare.Neg()
		}
		pnl, _ := perShare.
			Mul(decimal.NewFromFloat(result.Quantity)).
			Sub(decimal.NewFromFloat(result.Fee)).
			Round(2).
			Float64()
		return &pnl
	}
	return nil
}

func (l *Loop) setStatus(ctx context.Context, status, message string) {
	data := events.AgentStatusData{Status: status, Message: message}

	l.mu.Lock()
	l.status = data
	l.mu.Unlock()

	l.publisher.Publish(ctx, &data)
}
