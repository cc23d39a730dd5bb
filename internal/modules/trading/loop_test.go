package trading

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aristath/autopilot/internal/broker"
	"github.com/aristath/autopilot/internal/events"
)

// MockExecutor is a mock implementation of Executor
type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockExecutor) Account(ctx context.Context) (broker.Account, error) {
	args := m.Called(ctx)
	return args.Get(0).(broker.Account), args.Error(1)
}

func (m *MockExecutor) ExecuteOrder(ctx context.Context, order broker.Order) broker.Result {
	args := m.Called(ctx, order)
	return args.Get(0).(broker.Result)
}

type deciderFunc func(ctx context.Context, account broker.Account) (Decision, error)

func (f deciderFunc) Decide(ctx context.Context, account broker.Account) (Decision, error) {
	return f(ctx, account)
}

type countingRecorder struct{ n int }

func (c *countingRecorder) RecordTradeExecuted() { c.n++ }

type memoryLog struct {
	mu      sync.Mutex
	entries []string
}

func (m *memoryLog) AppendLog(level, _ string, message string, _ map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, level+" "+message)
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.EventData
}

func (c *capturePublisher) Publish(_ context.Context, data events.EventData) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, data)
	return 1
}

func (c *capturePublisher) statuses() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, e := range c.events {
		if s, ok := e.(*events.AgentStatusData); ok {
			out = append(out, s.Status)
		}
	}
	return out
}

func (c *capturePublisher) trades() []*events.TradeData {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*events.TradeData
	for _, e := range c.events {
		if td, ok := e.(*events.TradeData); ok {
			out = append(out, td)
		}
	}
	return out
}

type loopFixture struct {
	loop     *Loop
	exec     *MockExecutor
	repo     *TradeRepository
	pub      *capturePublisher
	syslog   *memoryLog
	recorder *countingRecorder
}

func newLoopFixture(t *testing.T, decider Decider) *loopFixture {
	t.Helper()
	f := &loopFixture{
		exec:     new(MockExecutor),
		repo:     newTestRepo(t),
		pub:      &capturePublisher{},
		syslog:   &memoryLog{},
		recorder: &countingRecorder{},
	}
	f.loop = NewLoop(f.exec, decider, f.repo, f.pub, f.syslog, zerolog.Nop())
	f.loop.SetRecorder(f.recorder)
	return f
}

func TestLoop_NoopDecisionHolds(t *testing.T) {
	f := newLoopFixture(t, nil)
	f.exec.On("IsConnected").Return(true)
	f.exec.On("Account", mock.Anything).Return(broker.Account{Cash: 1000}, nil)

	require.NoError(t, f.loop.Run(context.Background()))

	assert.Equal(t, []string{events.StatusAnalyzing, events.StatusIdle}, f.pub.statuses())
	f.exec.AssertNotCalled(t, "ExecuteOrder", mock.Anything, mock.Anything)
	assert.Equal(t, 0, f.recorder.n)
	assert.Equal(t, events.StatusIdle, f.loop.Status().Status)
}

func TestLoop_ExecutesRecordsAndCounts(t *testing.T) {
	order := broker.Order{Symbol: "AAPL", Action: broker.ActionSell, Quantity: 5, Reasoning: "take profit"}
	f := newLoopFixture(t, deciderFunc(func(ctx context.Context, account broker.Account) (Decision, error) {
		return Decision{Orders: []broker.Order{order}, Summary: "trim"}, nil
	}))

	f.exec.On("IsConnected").Return(true)
	f.exec.On("Account", mock.Anything).Return(broker.Account{
		Cash:      1000,
		Positions: []broker.Position{{Symbol: "AAPL", Quantity: 10, AvgPrice: 150}},
	}, nil)
	f.exec.On("ExecuteOrder", mock.Anything, order).Return(broker.Result{
		Success:       true,
		OrderID:       "99",
		Symbol:        "AAPL",
		Action:        broker.ActionSell,
		Quantity:      5,
		ExecutedPrice: 160,
		TotalValue:    800,
		Fee:           1,
		CashAfter:     1799,
	})

	require.NoError(t, f.loop.Run(context.Background()))

	assert.Equal(t, []string{events.StatusAnalyzing, events.StatusTrading, events.StatusIdle}, f.pub.statuses())
	require.Len(t, f.pub.trades(), 1)
	assert.Equal(t, "take profit", f.pub.trades()[0].Reasoning)
	assert.Equal(t, 1, f.recorder.n)

	trade, err := f.repo.GetByOrderID("99")
	require.NoError(t, err)
	require.NotNil(t, trade)
	require.NotNil(t, trade.PnL)
	assert.Equal(t, 49.0, *trade.PnL)
}

func TestLoop_FailedOrderIsNotCounted(t *testing.T) {
	order := broker.Order{Symbol: "MSFT", Action: broker.ActionBuy, Quantity: 1}
	f := newLoopFixture(t, deciderFunc(func(ctx context.Context, account broker.Account) (Decision, error) {
		return Decision{Orders: []broker.Order{order}}, nil
	}))

	f.exec.On("IsConnected").Return(true)
	f.exec.On("Account", mock.Anything).Return(broker.Account{}, nil)
	f.exec.On("ExecuteOrder", mock.Anything, order).Return(broker.Result{
		Success: false,
		Failure: broker.FailureTimeout,
		Symbol:  "MSFT",
		Action:  broker.ActionBuy,
		Error:   "order timed out",
	})

	require.NoError(t, f.loop.Run(context.Background()))

	assert.Equal(t, 0, f.recorder.n)
	count, err := f.repo.CountSince(time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	require.Len(t, f.pub.trades(), 1)
	assert.False(t, f.pub.trades()[0].Success)
	assert.Contains(t, f.syslog.entries, "WARNING Order BUY MSFT failed: order timed out")
}

func TestLoop_NotConnected(t *testing.T) {
	f := newLoopFixture(t, nil)
	f.exec.On("IsConnected").Return(false)

	err := f.loop.Run(context.Background())
	assert.ErrorIs(t, err, ErrBrokerUnavailable)
	assert.Equal(t, []string{events.StatusAnalyzing, events.StatusError}, f.pub.statuses())
	for _, entry := range f.syslog.entries {
		assert.NotContains(t, entry, "ERROR", "failure is logged once, by the scheduler")
	}
}

func TestLoop_DeciderError(t *testing.T) {
	f := newLoopFixture(t, deciderFunc(func(ctx context.Context, account broker.Account) (Decision, error) {
		return Decision{}, errors.New("model unavailable")
	}))
	f.exec.On("IsConnected").Return(true)
	f.exec.On("Account", mock.Anything).Return(broker.Account{}, nil)

	err := f.loop.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
	assert.Equal(t, events.StatusError, f.loop.Status().Status)
}

func TestRealizedPnL(t *testing.T) {
	positions := []broker.Position{
		{Symbol: "AAPL", Quantity: 10, AvgPrice: 100},
		{Symbol: "TSLA", Quantity: -4, AvgPrice: 200},
	}

	buy := realizedPnL(broker.Result{Action: broker.ActionBuy, Symbol: "AAPL"}, positions)
	assert.Nil(t, buy)

	long := realizedPnL(broker.Result{Action: broker.ActionSell, Symbol: "AAPL", Quantity: 10, ExecutedPrice: 110, Fee: 2}, positions)
	require.NotNil(t, long)
	assert.Equal(t, 98.0, *long)

	short := realizedPnL(broker.Result{Action: broker.ActionClose, Symbol: "TSLA", Quantity: 4, ExecutedPrice: 180}, positions)
	require.NotNil(t, short)
	assert.Equal(t, 80.0, *short)

	unknown := realizedPnL(broker.Result{Action: broker.ActionSell, Symbol: "NVDA", Quantity: 1}, positions)
	assert.Nil(t, unknown)
}
