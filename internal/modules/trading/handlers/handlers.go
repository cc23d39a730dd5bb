// Package handlers provides HTTP handlers for trade execution and quotes.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/autopilot/internal/broker"
	"github.com/aristath/autopilot/internal/modules/trading"
)

// OrderExecutor places orders and records them
type OrderExecutor interface {
	Execute(ctx context.Context, order broker.Order) broker.Result
}

// Quoter resolves prices with fallback
type Quoter interface {
	IsConnected() bool
	Price(ctx context.Context, symbol string) (broker.Quote, bool)
}

// TradingHandlers contains HTTP handlers for trading API
type TradingHandlers struct {
	executor  OrderExecutor
	quoter    Quoter
	tradeRepo *trading.TradeRepository
	log       zerolog.Logger
}

// NewTradingHandlers creates a new trading handlers instance
func NewTradingHandlers(executor OrderExecutor, quoter Quoter, tradeRepo *trading.TradeRepository, log zerolog.Logger) *TradingHandlers {
	return &TradingHandlers{
		executor:  executor,
		quoter:    quoter,
		tradeRepo: tradeRepo,
		log:       log.With().Str("handler", "trading").Logger(),
	}
}

// HandleExecuteTrade executes a trade through the execution bridge
// POST /api/trade
func (h *TradingHandlers) HandleExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var order broker.Order
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !h.quoter.IsConnected() {
		h.writeError(w, http.StatusServiceUnavailable, "Broker not connected")
		return
	}

	order = order.Normalize()
	if err := order.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid order: %v", err))
		return
	}

	h.log.Info().
		Str("symbol", order.Symbol).
		Str("action", string(order.Action)).
		Float64("quantity", order.Quantity).
		Msg("Manual trade requested")

	result := h.executor.Execute(r.Context(), order)
	h.writeJSON(w, http.StatusOK, result)
}

// HandleGetPrice returns the current price with broker primary, fallback secondary
// GET /api/price/{symbol}
func (h *TradingHandlers) HandleGetPrice(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))

	quote, ok := h.quoter.Price(r.Context(), symbol)
	if !ok {
		h.writeError(w, http.StatusNotFound, fmt.Sprintf("Could not get price for %s from any source", symbol))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": quote.Symbol,
		"price":  math.Round(quote.Price*100) / 100,
		"source": quote.Source,
	})
}

// HandleGetTrades returns trade history
// GET /api/trades
func (h *TradingHandlers) HandleGetTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	trades, err := h.tradeRepo.GetHistory(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get trade history")
		h.writeError(w, http.StatusInternalServerError, "Failed to get trade history")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"trades": trades,
		"count":  len(trades),
	})
}

// HandleGetStats returns trading statistics for the last N days
// GET /api/stats
func (h *TradingHandlers) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	days := 30
	if daysParam := r.URL.Query().Get("days"); daysParam != "" {
		if parsed, err := strconv.Atoi(daysParam); err == nil && parsed > 0 {
			days = parsed
		}
	}

	stats, err := h.tradeRepo.GetStats(time.Now().AddDate(0, 0, -days))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get trade stats")
		h.writeError(w, http.StatusInternalServerError, "Failed to get trade stats")
		return
	}

	h.writeJSON(w, http.StatusOK, stats)
}

func (h *TradingHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *TradingHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"detail": message})
}
