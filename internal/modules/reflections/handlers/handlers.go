// Package handlers provides HTTP handlers for trading reflections.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/autopilot/internal/modules/reflections"
)

// Generator creates and lists reflections
type Generator interface {
	Generate(ctx context.Context, kind reflections.Kind) (*reflections.Reflection, error)
	List(limit int) ([]reflections.Reflection, error)
}

// Handler handles reflection HTTP requests
type Handler struct {
	service Generator
	log     zerolog.Logger
}

// NewHandler creates a new reflections handler
func NewHandler(service Generator, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "reflections").Logger(),
	}
}

// RegisterRoutes registers reflection routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/reflections", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/generate", h.HandleGenerate)
	})
}

// HandleList returns recent reflections
// GET /api/reflections
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	items, err := h.service.List(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list reflections")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "Failed to list reflections"})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"reflections": items})
}

// HandleGenerate generates a reflection on demand
// POST /api/reflections/generate
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	kind := reflections.KindManual
	switch reflections.Kind(r.URL.Query().Get("kind")) {
	case reflections.KindDaily:
		kind = reflections.KindDaily
	case reflections.KindWeekly:
		kind = reflections.KindWeekly
	}

	ref, err := h.service.Generate(r.Context(), kind)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to generate reflection")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, ref)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
