package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// fakeSession records calls and fails loudly if two calls overlap
type fakeSession struct {
	inFlight    int32
	overlaps    int32
	callLatency time.Duration

	mu          sync.Mutex
	connectErr  error
	connects    int
	disconnects int
	cash        float64
	value       float64
	positions   []Position
	priceErr    error
	price       float64
	priceCalls  int
	submitted   []OrderRequest
	statusFn    func(call int) OrderStatus
	statusCalls int
	cancels     int
	order       []string
}

func (f *fakeSession) enter(name string) func() {
	if atomic.AddInt32(&f.inFlight, 1) > 1 {
		atomic.AddInt32(&f.overlaps, 1)
	}
	f.mu.Lock()
	f.order = append(f.order, name)
	f.mu.Unlock()
	if f.callLatency > 0 {
		time.Sleep(f.callLatency)
	}
	return func() { atomic.AddInt32(&f.inFlight, -1) }
}

func (f *fakeSession) Connect(ctx context.Context) error {
	defer f.enter("connect")()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.connectErr
}

func (f *fakeSession) Disconnect(ctx context.Context) error {
	defer f.enter("disconnect")()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeSession) CashBalance(ctx context.Context) (float64, error) {
	defer f.enter("cash")()
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cash, nil
}

func (f *fakeSession) PortfolioValue(ctx context.Context) (float64, error) {
	defer f.enter("value")()
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, nil
}

func (f *fakeSession) Positions(ctx context.Context) ([]Position, error) {
	defer f.enter("positions")()
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Position(nil), f.positions...), nil
}

func (f *fakeSession) Price(ctx context.Context, symbol string) (float64, error) {
	defer f.enter("price")()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.priceCalls++
	return f.price, f.priceErr
}

func (f *fakeSession) SubmitOrder(ctx context.Context, req OrderRequest) (OrderHandle, error) {
	defer f.enter("submit")()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)
	return OrderHandle{OrderID: fmt.Sprintf("ord-%d", len(f.submitted)), ClientID: req.ClientID}, nil
}

func (f *fakeSession) OrderStatus(ctx context.Context, handle OrderHandle) (OrderStatus, error) {
	defer f.enter("status")()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusFn == nil {
		return OrderStatus{}, errors.New("no status configured")
	}
	return f.statusFn(f.statusCalls), nil
}

func (f *fakeSession) CancelOrder(ctx context.Context, handle OrderHandle) error {
	defer f.enter("cancel")()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return nil
}

func (f *fakeSession) counts() (priceCalls, cancels, statusCalls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.priceCalls, f.cancels, f.statusCalls
}
