package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/autopilot/internal/broker"
	"github.com/aristath/autopilot/internal/modules/trading"
	testingpkg "github.com/aristath/autopilot/internal/testing"
)

type stubExecutor struct {
	orders []broker.Order
}

func (s *stubExecutor) Execute(_ context.Context, order broker.Order) broker.Result {
	s.orders = append(s.orders, order)
	return broker.Result{Success: true, OrderID: "1", Symbol: order.Symbol, Action: order.Action, Quantity: order.Quantity, ExecutedPrice: 10}
}

type stubQuoter struct {
	connected bool
	quotes    map[string]broker.Quote
}

func (s *stubQuoter) IsConnected() bool { return s.connected }

func (s *stubQuoter) Price(_ context.Context, symbol string) (broker.Quote, bool) {
	q, ok := s.quotes[symbol]
	return q, ok
}

func setupRouter(t *testing.T, quoter *stubQuoter) (*chi.Mux, *stubExecutor, *trading.TradeRepository) {
	t.Helper()
	repo := trading.NewTradeRepository(testingpkg.NewMemoryDB(t), zerolog.Nop())
	exec := &stubExecutor{}
	h := NewTradingHandlers(exec, quoter, repo, zerolog.Nop())

	r := chi.NewRouter()
	r.Route("/api", h.RegisterRoutes)
	return r, exec, repo
}

func TestHandleExecuteTrade_NotConnected(t *testing.T) {
	r, exec, _ := setupRouter(t, &stubQuoter{connected: false})

	req := httptest.NewRequest(http.MethodPost, "/api/trade", strings.NewReader(`{"symbol":"aapl","action":"buy","quantity":1}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, exec.orders)
}

func TestHandleExecuteTrade_NormalizesAndExecutes(t *testing.T) {
	r, exec, _ := setupRouter(t, &stubQuoter{connected: true})

	req := httptest.NewRequest(http.MethodPost, "/api/trade", strings.NewReader(`{"symbol":" aapl ","action":"buy","quantity":2}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, exec.orders, 1)
	assert.Equal(t, "AAPL", exec.orders[0].Symbol)
	assert.Equal(t, broker.ActionBuy, exec.orders[0].Action)
	assert.Equal(t, broker.OrderTypeMarket, exec.orders[0].OrderType)

	var result broker.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
}

func TestHandleExecuteTrade_InvalidOrder(t *testing.T) {
	r, exec, _ := setupRouter(t, &stubQuoter{connected: true})

	for _, body := range []string{`not json`, `{"symbol":"AAPL","action":"HOLD","quantity":1}`, `{"symbol":"AAPL","action":"BUY","quantity":0}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/trade", strings.NewReader(body))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Empty(t, exec.orders)
}

func TestHandleGetPrice(t *testing.T) {
	r, _, _ := setupRouter(t, &stubQuoter{
		connected: true,
		quotes: map[string]broker.Quote{
			"AAPL": {Symbol: "AAPL", Price: 187.4567, Source: broker.SourceFallback},
		},
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/price/aapl", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "AAPL", body["symbol"])
	assert.Equal(t, 187.46, body["price"])
	assert.Equal(t, "fallback", body["source"])

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/price/nvda", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Could not get price for NVDA from any source")
}

func TestHandleGetTradesAndStats(t *testing.T) {
	r, _, repo := setupRouter(t, &stubQuoter{connected: true})

	pnl := 12.5
	_, err := repo.Create(trading.Trade{
		OrderID: "a1", ExecutedAt: time.Now().Add(-time.Hour), Action: broker.ActionBuy,
		Symbol: "AAPL", Quantity: 1, Price: 100, TotalValue: 100, Fee: 1,
	})
	require.NoError(t, err)
	_, err = repo.Create(trading.Trade{
		OrderID: "a2", ExecutedAt: time.Now().Add(-time.Minute), Action: broker.ActionSell,
		Symbol: "AAPL", Quantity: 1, Price: 113.5, TotalValue: 113.5, Fee: 1, PnL: &pnl,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/trades?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var trades struct {
		Trades []trading.Trade `json:"trades"`
		Count  int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trades))
	assert.Equal(t, 1, trades.Count)
	assert.Equal(t, "a2", trades.Trades[0].OrderID)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats?days=7", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats trading.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.TotalTrades)
	assert.Equal(t, 1, stats.BuyTrades)
	assert.Equal(t, 12.5, stats.RealizedPnL)
}
