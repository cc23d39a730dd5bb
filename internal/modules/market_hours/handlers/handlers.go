// Package handlers provides HTTP handlers for market session operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/autopilot/internal/modules/market_hours"
	"github.com/rs/zerolog"
)

// Handler handles market hours HTTP requests
type Handler struct {
	clock *market_hours.Clock
	log   zerolog.Logger
}

// NewHandler creates a new market hours handler
func NewHandler(clock *market_hours.Clock, log zerolog.Logger) *Handler {
	return &Handler{
		clock: clock,
		log:   log.With().Str("handler", "market_hours").Logger(),
	}
}

// HandleGetStatus handles GET /api/market-hours/status
// Returns the session in progress right now
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	now := h.clock.Now()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":     h.describe(now),
		"metadata": metadata(),
	})
}

// HandleGetSession handles GET /api/market-hours/session?at=<RFC3339>
// Classifies an arbitrary instant
func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("at")
	if raw == "" {
		http.Error(w, "missing 'at' query parameter", http.StatusBadRequest)
		return
	}

	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		h.log.Debug().Err(err).Str("at", raw).Msg("Invalid timestamp")
		http.Error(w, "invalid 'at' timestamp, expected RFC3339", http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":     h.describe(at),
		"metadata": metadata(),
	})
}

func (h *Handler) describe(t time.Time) map[string]interface{} {
	session := h.clock.SessionFor(t)
	local := t.In(h.clock.Location())
	return map[string]interface{}{
		"timestamp":   local.Format(time.RFC3339),
		"session":     session,
		"is_open":     session.IsOpen(),
		"is_tradable": session.IsTradable(),
		"timezone":    h.clock.Location().String(),
	}
}

func metadata() map[string]interface{} {
	return map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
