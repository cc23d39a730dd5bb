package broker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExecuteOrder submits an order and waits for it to reach a terminal state.
//
// The timeout starts when ExecuteOrder is called, so time spent queued behind
// other broker calls counts against it. On timeout the order is cancelled
// exactly once and the result is tagged FailureTimeout. Every session call,
// including each status poll, is its own worker request.
func (b *Bridge) ExecuteOrder(ctx context.Context, order Order) Result {
	octx, cancel := context.WithTimeout(ctx, b.cfg.OrderTimeout)
	defer cancel()

	order = order.Normalize()

	if err := order.Validate(); err != nil {
		return failed(order, FailureInvalid, err)
	}
	if !b.IsConnected() {
		return failed(order, FailureNotConnected, ErrNotConnected)
	}

	log := b.log.With().
		Str("symbol", order.Symbol).
		Str("action", string(order.Action)).
		Logger()

	var (
		handle OrderHandle
		req    OrderRequest
	)
	err := b.connectedCall(octx, func(ctx context.Context) error {
		var err error
		req, err = b.resolve(ctx, order)
		if err != nil {
			return err
		}
		handle, err = b.session.SubmitOrder(ctx, req)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotConnected):
			return failed(order, FailureNotConnected, err)
		case errors.Is(err, ErrNoPosition):
			return failed(order, FailureInvalid, err)
		case octx.Err() != nil:
			return b.abandoned(order, ctx, octx, err)
		default:
			log.Error().Err(err).Msg("Order submission failed")
			return failed(order, FailureBroker, err)
		}
	}

	log = log.With().Str("order_id", handle.OrderID).Logger()
	log.Info().Float64("quantity", req.Quantity).Str("side", string(req.Side)).Msg("Order submitted")

	for {
		var (
			status    OrderStatus
			cashAfter float64
			cashErr   error
		)
		err := b.do(octx, func(ctx context.Context) error {
			var err error
			status, err = b.session.OrderStatus(ctx, handle)
			if err != nil {
				return err
			}
			if status.State == OrderFilled {
				cashAfter, cashErr = b.session.CashBalance(ctx)
			}
			return nil
		})

		switch {
		case err == nil && status.State == OrderFilled:
			if cashErr != nil {
				log.Warn().Err(cashErr).Msg("Failed to read cash after fill")
			}
			result := filledResult(order, req, handle, status.Fills, cashAfter)
			log.Info().
				Float64("price", result.ExecutedPrice).
				Float64("fee", result.Fee).
				Msg("Order filled")
			return result

		case err == nil && status.State.Done():
			log.Warn().Str("state", string(status.State)).Str("reason", status.Message).Msg("Order not filled")
			res := failed(order, FailureRejected, fmt.Errorf("order status: %s", status.State))
			res.OrderID = handle.OrderID
			if status.Message != "" {
				res.Error = fmt.Sprintf("order status: %s (%s)", status.State, status.Message)
			}
			return res

		case err != nil && octx.Err() == nil:
			log.Debug().Err(err).Msg("Order status poll failed, retrying")
		}

		if octx.Err() != nil {
			b.cancelOnce(ctx, handle)
			res := b.abandoned(order, ctx, octx, octx.Err())
			res.OrderID = handle.OrderID
			return res
		}

		timer := time.NewTimer(b.cfg.PollInterval)
		select {
		case <-octx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}

// resolve turns an order into a concrete request. Runs on the worker.
func (b *Bridge) resolve(ctx context.Context, order Order) (OrderRequest, error) {
	req := OrderRequest{
		ClientID:   uuid.NewString(),
		Symbol:     order.Symbol,
		Side:       order.Action,
		Quantity:   order.Quantity,
		OrderType:  order.OrderType,
		LimitPrice: order.LimitPrice,
	}
	if order.Action != ActionClose {
		return req, nil
	}

	positions, err := b.session.Positions(ctx)
	if err != nil {
		return req, fmt.Errorf("failed to load positions: %w", err)
	}
	for _, p := range positions {
		if p.Symbol != order.Symbol || p.Quantity == 0 {
			continue
		}
		req.Side = ActionSell
		if p.Quantity < 0 {
			req.Side = ActionBuy
		}
		req.Quantity = math.Abs(p.Quantity)
		return req, nil
	}
	return req, fmt.Errorf("%w for %s", ErrNoPosition, order.Symbol)
}

// cancelOnce issues the single cancel for a timed out order. It runs on a
// context detached from the expired deadline.
func (b *Bridge) cancelOnce(parent context.Context, handle OrderHandle) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), cancelTimeout)
	defer cancel()

	err := b.do(ctx, func(ctx context.Context) error {
		return b.session.CancelOrder(ctx, handle)
	})
	if err != nil {
		b.log.Error().Err(err).Str("order_id", handle.OrderID).Msg("Failed to cancel timed out order")
		return
	}
	b.log.Warn().Str("order_id", handle.OrderID).Msg("Order cancelled after timeout")
}

// abandoned builds the failure for an order whose context ended
func (b *Bridge) abandoned(order Order, parent, octx context.Context, err error) Result {
	if parent.Err() == nil && errors.Is(octx.Err(), context.DeadlineExceeded) {
		b.log.Warn().Str("symbol", order.Symbol).Dur("timeout", b.cfg.OrderTimeout).Msg("Order timed out")
		return failed(order, FailureTimeout, fmt.Errorf("order timeout after %s", b.cfg.OrderTimeout))
	}
	return failed(order, FailureAborted, fmt.Errorf("order aborted: %w", err))
}

func filledResult(order Order, req OrderRequest, handle OrderHandle, fills []Fill, cashAfter float64) Result {
	filledQty := decimal.Zero
	commission := decimal.Zero
	price := decimal.Zero
	for _, f := range fills {
		filledQty = filledQty.Add(decimal.NewFromFloat(f.Quantity))
		commission = commission.Add(decimal.NewFromFloat(f.Commission))
		price = decimal.NewFromFloat(f.Price)
	}
	if filledQty.IsZero() {
		filledQty = decimal.NewFromFloat(req.Quantity)
	}

	qty, _ := filledQty.Float64()
	executed, _ := price.Float64()
	total, _ := price.Mul(filledQty).Round(2).Float64()
	fee, _ := commission.Round(4).Float64()

	return Result{
		Success:       true,
		OrderID:       handle.OrderID,
		Symbol:        order.Symbol,
		Action:        order.Action,
		Quantity:      qty,
		ExecutedPrice: executed,
		TotalValue:    total,
		Fee:           fee,
		CashAfter:     cashAfter,
	}
}
