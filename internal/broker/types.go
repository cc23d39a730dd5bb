// Package broker serializes every call into a broker session through a single
// worker goroutine and layers order tracking and price fallback on top.
package broker

import (
	"context"
	"fmt"
	"strings"
)

// Action is what an order does to a position
type Action string

const (
	ActionBuy   Action = "BUY"
	ActionSell  Action = "SELL"
	ActionClose Action = "CLOSE"
)

// OrderType selects market or limit execution
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// Order is a trading instruction as produced by the decision loop.
// For CLOSE orders the side and quantity come from the open position.
type Order struct {
	Symbol     string    `json:"symbol"`
	Action     Action    `json:"action"`
	Quantity   float64   `json:"quantity"`
	OrderType  OrderType `json:"order_type"`
	LimitPrice *float64  `json:"limit_price,omitempty"`
	Reasoning  string    `json:"reasoning,omitempty"`
}

// Normalize upper-cases identifiers and defaults the order type
func (o Order) Normalize() Order {
	o.Symbol = strings.ToUpper(strings.TrimSpace(o.Symbol))
	o.Action = Action(strings.ToUpper(string(o.Action)))
	o.OrderType = OrderType(strings.ToUpper(string(o.OrderType)))
	if o.OrderType == "" {
		o.OrderType = OrderTypeMarket
	}
	return o
}

// Validate checks the order is well formed
func (o Order) Validate() error {
	if o.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	switch o.Action {
	case ActionBuy, ActionSell:
		if o.Quantity <= 0 {
			return fmt.Errorf("quantity must be positive, got %v", o.Quantity)
		}
	case ActionClose:
	default:
		return fmt.Errorf("unknown action %q", o.Action)
	}
	switch o.OrderType {
	case OrderTypeMarket:
	case OrderTypeLimit:
		if o.LimitPrice == nil || *o.LimitPrice <= 0 {
			return fmt.Errorf("limit orders require a positive limit price")
		}
	default:
		return fmt.Errorf("unknown order type %q", o.OrderType)
	}
	return nil
}

// Position is an open holding as reported by the broker
type Position struct {
	Symbol       string  `json:"symbol"`
	Quantity     float64 `json:"quantity"`
	AvgPrice     float64 `json:"avg_price"`
	CurrentPrice float64 `json:"current_price"`
}

// MarketValue is quantity times current price
func (p Position) MarketValue() float64 {
	return p.Quantity * p.CurrentPrice
}

// UnrealizedPnL is the mark-to-market gain against average cost
func (p Position) UnrealizedPnL() float64 {
	return (p.CurrentPrice - p.AvgPrice) * p.Quantity
}

// Account is a consistent read of cash, net liquidation and positions
type Account struct {
	Cash       float64    `json:"cash"`
	TotalValue float64    `json:"total_value"`
	Positions  []Position `json:"positions"`
}

// OrderRequest is what gets submitted to the session. Side is BUY or SELL.
type OrderRequest struct {
	ClientID   string
	Symbol     string
	Side       Action
	Quantity   float64
	OrderType  OrderType
	LimitPrice *float64
}

// OrderHandle identifies a submitted order
type OrderHandle struct {
	OrderID  string
	ClientID string
}

// OrderState is the broker-side lifecycle state of an order
type OrderState string

const (
	OrderPending   OrderState = "PENDING"
	OrderFilled    OrderState = "FILLED"
	OrderCancelled OrderState = "CANCELLED"
	OrderRejected  OrderState = "REJECTED"
)

// Done reports whether the order reached a terminal state
func (s OrderState) Done() bool {
	return s == OrderFilled || s == OrderCancelled || s == OrderRejected
}

// Fill is one execution against an order
type Fill struct {
	Price      float64
	Quantity   float64
	Commission float64
}

// OrderStatus is one poll of a submitted order
type OrderStatus struct {
	State   OrderState
	Fills   []Fill
	Message string
}

// FailureKind tags why an order did not execute
type FailureKind string

const (
	FailureNone         FailureKind = ""
	FailureNotConnected FailureKind = "not_connected"
	FailureInvalid      FailureKind = "invalid_order"
	FailureTimeout      FailureKind = "timeout"
	FailureRejected     FailureKind = "rejected"
	FailureAborted      FailureKind = "aborted"
	FailureBroker       FailureKind = "broker_error"
)

// Result is the single complete outcome of ExecuteOrder
type Result struct {
	Success       bool        `json:"success"`
	Failure       FailureKind `json:"failure,omitempty"`
	OrderID       string      `json:"order_id,omitempty"`
	Symbol        string      `json:"symbol"`
	Action        Action      `json:"action"`
	Quantity      float64     `json:"quantity"`
	ExecutedPrice float64     `json:"executed_price"`
	TotalValue    float64     `json:"total_value"`
	Fee           float64     `json:"fee"`
	CashAfter     float64     `json:"cash_after"`
	Error         string      `json:"error,omitempty"`
}

func failed(order Order, kind FailureKind, err error) Result {
	return Result{
		Success:  false,
		Failure:  kind,
		Symbol:   order.Symbol,
		Action:   order.Action,
		Quantity: order.Quantity,
		Error:    err.Error(),
	}
}

// Price sources reported on quotes
const (
	SourceBroker   = "broker"
	SourceFallback = "fallback"
)

// Quote is a resolved price and where it came from
type Quote struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Source string  `json:"source"`
}

// Session is a live broker connection. Implementations are not required to
// be safe for concurrent use; the Bridge never calls them concurrently.
type Session interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	CashBalance(ctx context.Context) (float64, error)
	PortfolioValue(ctx context.Context) (float64, error)
	Positions(ctx context.Context) ([]Position, error)
	Price(ctx context.Context, symbol string) (float64, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderHandle, error)
	OrderStatus(ctx context.Context, handle OrderHandle) (OrderStatus, error)
	CancelOrder(ctx context.Context, handle OrderHandle) error
}

// PriceSource is a secondary quote provider used when the session cannot price a symbol
type PriceSource interface {
	Price(ctx context.Context, symbol string) (float64, error)
}
