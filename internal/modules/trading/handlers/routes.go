package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all trading routes
func (h *TradingHandlers) RegisterRoutes(r chi.Router) {
	r.Post("/trade", h.HandleExecuteTrade)    // Execute an order through the bridge
	r.Get("/price/{symbol}", h.HandleGetPrice) // Broker price with fallback
	r.Get("/trades", h.HandleGetTrades)        // Trade history
	r.Get("/stats", h.HandleGetStats)          // Trade statistics
}
