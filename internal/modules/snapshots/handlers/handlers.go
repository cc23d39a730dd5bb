// Package handlers provides HTTP handlers for portfolio state and history.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/autopilot/internal/modules/snapshots"
)

// Handler handles portfolio HTTP requests
type Handler struct {
	service *snapshots.Service
	account snapshots.AccountSource
	log     zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(service *snapshots.Service, account snapshots.AccountSource, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		account: account,
		log:     log.With().Str("handler", "portfolio").Logger(),
	}
}

// RegisterRoutes registers portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolio", func(r chi.Router) {
		r.Get("/", h.HandleGetPortfolio)
		r.Get("/history", h.HandleGetHistory)
	})
}

// HandleGetPortfolio returns the live portfolio valued against the initial value
// GET /api/portfolio
func (h *Handler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	if !h.account.IsConnected() {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "Broker not connected"})
		return
	}

	account, err := h.account.Account(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read account")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}

	initial, err := h.service.InitialValue(account.TotalValue)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to resolve initial value")
	}
	snap := snapshots.Value(account, initial)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"cash":           snap.Cash,
		"total_value":    snap.TotalValue,
		"holdings_value": snap.HoldingsValue,
		"initial_value":  initial,
		"pnl":            snap.PnL,
		"pnl_percent":    snap.PnLPercent,
		"positions":      snap.Positions,
	})
}

// HandleGetHistory returns snapshots for the last N hours
// GET /api/portfolio/history
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if hoursParam := r.URL.Query().Get("hours"); hoursParam != "" {
		if parsed, err := strconv.Atoi(hoursParam); err == nil && parsed > 0 {
			hours = parsed
		}
	}

	history, err := h.service.History(time.Duration(hours) * time.Hour)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get portfolio history")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "Failed to get portfolio history"})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"history": history,
		"count":   len(history),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
