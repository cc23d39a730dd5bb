package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteOrder_Filled(t *testing.T) {
	session := &fakeSession{
		cash: 8_990.25,
		statusFn: filledAfter(3,
			Fill{Price: 100.10, Quantity: 4, Commission: 0.35},
			Fill{Price: 100.25, Quantity: 6, Commission: 0.40},
		),
	}
	b := newTestBridge(t, session, nil, Config{PollInterval: time.Millisecond})
	ctx := context.Background()
	require.True(t, b.Connect(ctx))

	res := b.ExecuteOrder(ctx, Order{Symbol: "aapl", Action: "buy", Quantity: 10})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, FailureNone, res.Failure)
	assert.Equal(t, "ord-1", res.OrderID)
	assert.Equal(t, "AAPL", res.Symbol)
	assert.Equal(t, ActionBuy, res.Action)
	assert.Equal(t, 10.0, res.Quantity)
	assert.Equal(t, 100.25, res.ExecutedPrice)
	assert.Equal(t, 1002.5, res.TotalValue)
	assert.Equal(t, 0.75, res.Fee)
	assert.Equal(t, 8_990.25, res.CashAfter)

	_, cancels, statusCalls := session.counts()
	assert.Equal(t, 0, cancels)
	assert.Equal(t, 3, statusCalls)
}

func TestExecuteOrder_TimeoutCancelsExactlyOnce(t *testing.T) {
	session := &fakeSession{
		statusFn: func(int) OrderStatus { return OrderStatus{State: OrderPending} },
	}
	b := newTestBridge(t, session, nil, Config{
		OrderTimeout: 80 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	})
	ctx := context.Background()
	require.True(t, b.Connect(ctx))

	start := time.Now()
	res := b.ExecuteOrder(ctx, Order{Symbol: "NVDA", Action: ActionSell, Quantity: 3})
	elapsed := time.Since(start)

	assert.False(t, res.Success)
	assert.Equal(t, FailureTimeout, res.Failure)
	assert.Equal(t, "ord-1", res.OrderID)
	assert.Contains(t, res.Error, "timeout")
	assert.Less(t, elapsed, 2*time.Second)

	_, cancels, statusCalls := session.counts()
	assert.Equal(t, 1, cancels)
	assert.Greater(t, statusCalls, 1)
}

func TestExecuteOrder_QueueWaitCountsTowardTimeout(t *testing.T) {
	session := &fakeSession{
		callLatency: 150 * time.Millisecond,
		statusFn:    filledAfter(1, Fill{Price: 1, Quantity: 1}),
	}
	b := newTestBridge(t, session, nil, Config{OrderTimeout: 50 * time.Millisecond})
	ctx := context.Background()
	require.True(t, b.Connect(ctx))

	// Occupy the worker so the order waits in the queue past its deadline
	blocker := make(chan struct{})
	go func() {
		_, _ = b.CashBalance(ctx)
		close(blocker)
	}()
	time.Sleep(10 * time.Millisecond)

	res := b.ExecuteOrder(ctx, Order{Symbol: "IBM", Action: ActionBuy, Quantity: 1})
	<-blocker

	assert.Equal(t, FailureTimeout, res.Failure)
	assert.Empty(t, session.submitted, "order must not be submitted after its deadline")
	_, cancels, _ := session.counts()
	assert.Equal(t, 0, cancels)
}

func TestExecuteOrder_Rejected(t *testing.T) {
	session := &fakeSession{
		statusFn: func(int) OrderStatus {
			return OrderStatus{State: OrderRejected, Message: "insufficient buying power"}
		},
	}
	b := newTestBridge(t, session, nil, Config{PollInterval: time.Millisecond})
	ctx := context.Background()
	require.True(t, b.Connect(ctx))

	res := b.ExecuteOrder(ctx, Order{Symbol: "GME", Action: ActionBuy, Quantity: 1000})

	assert.False(t, res.Success)
	assert.Equal(t, FailureRejected, res.Failure)
	assert.Contains(t, res.Error, "insufficient buying power")
}

func TestExecuteOrder_CloseDerivesSideAndQuantity(t *testing.T) {
	tests := []struct {
		name         string
		held         float64
		expectedSide Action
		expectedQty  float64
	}{
		{"long position sells", 15, ActionSell, 15},
		{"short position buys", -4, ActionBuy, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := &fakeSession{
				positions: []Position{{Symbol: "AMZN", Quantity: tt.held}},
				statusFn:  filledAfter(1, Fill{Price: 150, Quantity: tt.expectedQty}),
			}
			b := newTestBridge(t, session, nil, Config{PollInterval: time.Millisecond})
			ctx := context.Background()
			require.True(t, b.Connect(ctx))

			res := b.ExecuteOrder(ctx, Order{Symbol: "AMZN", Action: ActionClose})

			require.True(t, res.Success, res.Error)
			require.Len(t, session.submitted, 1)
			assert.Equal(t, tt.expectedSide, session.submitted[0].Side)
			assert.Equal(t, tt.expectedQty, session.submitted[0].Quantity)
			assert.Equal(t, tt.expectedQty, res.Quantity)
		})
	}
}

func TestExecuteOrder_CloseWithoutPosition(t *testing.T) {
	session := &fakeSession{}
	b := newTestBridge(t, session, nil, Config{})
	ctx := context.Background()
	require.True(t, b.Connect(ctx))

	res := b.ExecuteOrder(ctx, Order{Symbol: "AMZN", Action: ActionClose})

	assert.False(t, res.Success)
	assert.Equal(t, FailureInvalid, res.Failure)
	assert.Empty(t, session.submitted)
}

func TestExecuteOrder_Validation(t *testing.T) {
	limit := 0.0
	tests := []struct {
		name  string
		order Order
	}{
		{"missing symbol", Order{Action: ActionBuy, Quantity: 1}},
		{"zero quantity", Order{Symbol: "AAPL", Action: ActionBuy}},
		{"unknown action", Order{Symbol: "AAPL", Action: "HOLD", Quantity: 1}},
		{"limit without price", Order{Symbol: "AAPL", Action: ActionBuy, Quantity: 1, OrderType: OrderTypeLimit}},
		{"limit with zero price", Order{Symbol: "AAPL", Action: ActionBuy, Quantity: 1, OrderType: OrderTypeLimit, LimitPrice: &limit}},
	}

	session := &fakeSession{}
	b := newTestBridge(t, session, nil, Config{})
	require.True(t, b.Connect(context.Background()))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := b.ExecuteOrder(context.Background(), tt.order)
			assert.False(t, res.Success)
			assert.Equal(t, FailureInvalid, res.Failure)
		})
	}
	assert.Empty(t, session.submitted)
}

func TestExecuteOrder_NotConnected(t *testing.T) {
	b := newTestBridge(t, &fakeSession{}, nil, Config{})

	res := b.ExecuteOrder(context.Background(), Order{Symbol: "AAPL", Action: ActionBuy, Quantity: 1})

	assert.False(t, res.Success)
	assert.Equal(t, FailureNotConnected, res.Failure)
}
