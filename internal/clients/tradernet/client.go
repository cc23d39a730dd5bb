// Package tradernet is an HTTP client for the broker gateway microservice.
// It implements broker.Session; the gateway owns the actual brokerage socket.
package tradernet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aristath/autopilot/internal/broker"
	"github.com/rs/zerolog"
)

// Client for the broker gateway microservice
type Client struct {
	baseURL  string
	apiKey   string
	currency string
	client   *http.Client
	log      zerolog.Logger
}

// ServiceResponse is the standard response format
type ServiceResponse struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *string         `json:"error"`
	ErrorCode *int            `json:"error_code"`
	Timestamp string          `json:"timestamp"`
}

// NewClient creates a new gateway client. currency selects which cash
// balance CashBalance reports (default USD).
func NewClient(baseURL, apiKey, currency string, log zerolog.Logger) *Client {
	if currency == "" {
		currency = "USD"
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		currency: strings.ToUpper(currency),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("client", "tradernet").Logger(),
	}
}

func (c *Client) do(ctx context.Context, method, endpoint string, request interface{}) (*ServiceResponse, error) {
	var body io.Reader
	if request != nil {
		payload, err := json.Marshal(request)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if request != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp)
}

// parseResponse parses the service response. Coded failures become *broker.BrokerError.
func (c *Client) parseResponse(resp *http.Response) (*ServiceResponse, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result ServiceResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}

	if !result.Success {
		errMsg := "unknown error"
		if result.Error != nil {
			errMsg = *result.Error
		}
		if result.ErrorCode != nil {
			return &result, &broker.BrokerError{Code: *result.ErrorCode, Message: errMsg}
		}
		return &result, fmt.Errorf("gateway error: %s", errMsg)
	}

	return &result, nil
}

func decode(resp *ServiceResponse, what string, into interface{}) error {
	if err := json.Unmarshal(resp.Data, into); err != nil {
		return fmt.Errorf("failed to parse %s: %w", what, err)
	}
	return nil
}

// Connect asks the gateway to open the brokerage session
func (c *Client) Connect(ctx context.Context) error {
	if _, err := c.do(ctx, http.MethodPost, "/api/session/connect", nil); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	c.log.Info().Str("url", c.baseURL).Msg("Broker session opened")
	return nil
}

// Disconnect asks the gateway to close the brokerage session
func (c *Client) Disconnect(ctx context.Context) error {
	if _, err := c.do(ctx, http.MethodPost, "/api/session/disconnect", nil); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}

// CashBalance represents cash balance in a currency
type CashBalance struct {
	Currency string  `json:"currency"`
	Amount   float64 `json:"amount"`
}

// CashBalancesResponse is the response for GetCashBalances
type CashBalancesResponse struct {
	Balances []CashBalance `json:"balances"`
}

// GetCashBalances gets cash balances in all currencies
func (c *Client) GetCashBalances(ctx context.Context) ([]CashBalance, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/portfolio/cash-balances", nil)
	if err != nil {
		return nil, err
	}

	var result CashBalancesResponse
	if err := decode(resp, "cash balances", &result); err != nil {
		return nil, err
	}
	return result.Balances, nil
}

// CashBalance returns the balance in the client's account currency
func (c *Client) CashBalance(ctx context.Context) (float64, error) {
	balances, err := c.GetCashBalances(ctx)
	if err != nil {
		return 0, err
	}
	for _, b := range balances {
		if strings.EqualFold(b.Currency, c.currency) {
			return b.Amount, nil
		}
	}
	return 0, nil
}

// SummaryResponse is the response for the account summary
type SummaryResponse struct {
	NetLiquidation float64 `json:"net_liquidation"`
	TotalCash      float64 `json:"total_cash"`
}

// PortfolioValue returns net liquidation value
func (c *Client) PortfolioValue(ctx context.Context) (float64, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/portfolio/summary", nil)
	if err != nil {
		return 0, err
	}

	var result SummaryResponse
	if err := decode(resp, "account summary", &result); err != nil {
		return 0, err
	}
	return result.NetLiquidation, nil
}

// Position represents a portfolio position
type Position struct {
	Symbol       string  `json:"symbol"`
	Quantity     float64 `json:"quantity"`
	AvgPrice     float64 `json:"avg_price"`
	CurrentPrice float64 `json:"current_price"`
	Currency     string  `json:"currency"`
}

// PositionsResponse is the response for Positions
type PositionsResponse struct {
	Positions []Position `json:"positions"`
}

// Positions returns open (non-zero) positions
func (c *Client) Positions(ctx context.Context) ([]broker.Position, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/portfolio/positions", nil)
	if err != nil {
		return nil, err
	}

	var result PositionsResponse
	if err := decode(resp, "positions", &result); err != nil {
		return nil, err
	}

	positions := make([]broker.Position, 0, len(result.Positions))
	for _, p := range result.Positions {
		if p.Quantity == 0 {
			continue
		}
		positions = append(positions, broker.Position{
			Symbol:       p.Symbol,
			Quantity:     p.Quantity,
			AvgPrice:     p.AvgPrice,
			CurrentPrice: p.CurrentPrice,
		})
	}
	return positions, nil
}

// QuoteResponse is the response for a single quote
type QuoteResponse struct {
	Symbol string  `json:"symbol"`
	Last   float64 `json:"last"`
	Close  float64 `json:"close"`
}

// Price returns the last trade, falling back to the previous close
func (c *Client) Price(ctx context.Context, symbol string) (float64, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/quotes/"+url.PathEscape(symbol), nil)
	if err != nil {
		return 0, err
	}

	var result QuoteResponse
	if err := decode(resp, "quote", &result); err != nil {
		return 0, err
	}
	if result.Last > 0 {
		return result.Last, nil
	}
	return result.Close, nil
}

// PlaceOrderRequest is the request for placing an order
type PlaceOrderRequest struct {
	ClientOrderID string   `json:"client_order_id"`
	Symbol        string   `json:"symbol"`
	Side          string   `json:"side"`
	Quantity      float64  `json:"quantity"`
	OrderType     string   `json:"order_type"`
	LimitPrice    *float64 `json:"limit_price,omitempty"`
}

// OrderResult is the result of placing an order
type OrderResult struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// SubmitOrder places an order and returns its handle without waiting for fills
func (c *Client) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderHandle, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/trading/place-order", PlaceOrderRequest{
		ClientOrderID: req.ClientID,
		Symbol:        req.Symbol,
		Side:          string(req.Side),
		Quantity:      req.Quantity,
		OrderType:     string(req.OrderType),
		LimitPrice:    req.LimitPrice,
	})
	if err != nil {
		return broker.OrderHandle{}, err
	}

	var result OrderResult
	if err := decode(resp, "order result", &result); err != nil {
		return broker.OrderHandle{}, err
	}
	if result.OrderID == "" {
		return broker.OrderHandle{}, fmt.Errorf("gateway returned no order id")
	}
	return broker.OrderHandle{OrderID: result.OrderID, ClientID: req.ClientID}, nil
}

// FillResponse is one execution
type FillResponse struct {
	Price      float64 `json:"price"`
	Quantity   float64 `json:"quantity"`
	Commission float64 `json:"commission"`
}

// OrderStatusResponse is the response for an order status poll
type OrderStatusResponse struct {
	OrderID string         `json:"order_id"`
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Fills   []FillResponse `json:"fills"`
}

// OrderStatus polls an order
func (c *Client) OrderStatus(ctx context.Context, handle broker.OrderHandle) (broker.OrderStatus, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/trading/orders/"+url.PathEscape(handle.OrderID), nil)
	if err != nil {
		return broker.OrderStatus{}, err
	}

	var result OrderStatusResponse
	if err := decode(resp, "order status", &result); err != nil {
		return broker.OrderStatus{}, err
	}

	status := broker.OrderStatus{
		State:   mapOrderState(result.Status),
		Message: result.Message,
		Fills:   make([]broker.Fill, 0, len(result.Fills)),
	}
	for _, f := range result.Fills {
		status.Fills = append(status.Fills, broker.Fill{
			Price:      f.Price,
			Quantity:   f.Quantity,
			Commission: f.Commission,
		})
	}
	return status, nil
}

// CancelOrder requests cancellation of an open order
func (c *Client) CancelOrder(ctx context.Context, handle broker.OrderHandle) error {
	endpoint := "/api/trading/orders/" + url.PathEscape(handle.OrderID) + "/cancel"
	if _, err := c.do(ctx, http.MethodPost, endpoint, nil); err != nil {
		return fmt.Errorf("cancel order %s: %w", handle.OrderID, err)
	}
	return nil
}

// mapOrderState folds gateway status strings onto the broker lifecycle
func mapOrderState(status string) broker.OrderState {
	switch strings.ToLower(status) {
	case "filled":
		return broker.OrderFilled
	case "cancelled", "canceled", "apicancelled", "inactive", "expired":
		return broker.OrderCancelled
	case "rejected", "error":
		return broker.OrderRejected
	default:
		return broker.OrderPending
	}
}
