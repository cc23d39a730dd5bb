package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/autopilot/internal/events"
	"github.com/aristath/autopilot/internal/scheduler"
)

// SchedulerControl is the scheduler surface exposed over HTTP and websocket
type SchedulerControl interface {
	Status() scheduler.Status
	Mode() scheduler.RunMode
	SetMode(mode scheduler.RunMode) error
	TriggerNow(jobID string) error
}

// BrokerStatus reports the broker connection
type BrokerStatus interface {
	IsConnected() bool
}

// AgentStatus reports what the trading loop is doing
type AgentStatus interface {
	Status() events.AgentStatusData
}

// DatabaseHealth checks the database
type DatabaseHealth interface {
	HealthCheck(ctx context.Context) error
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":           "healthy",
		"service":          "autopilot",
		"broker_connected": s.broker.IsConnected(),
	}

	if s.db != nil {
		if err := s.db.HealthCheck(r.Context()); err != nil {
			s.log.Warn().Err(err).Msg("Database health check failed")
			response["status"] = "degraded"
			response["database"] = err.Error()
		} else {
			response["database"] = "ok"
		}
	}

	s.writeJSON(w, http.StatusOK, response)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(s.log, w, status, data)
}

func writeJSON(log zerolog.Logger, w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// SchedulerHandlers exposes scheduler status and control
type SchedulerHandlers struct {
	scheduler SchedulerControl
	log       zerolog.Logger
}

// NewSchedulerHandlers creates scheduler handlers
func NewSchedulerHandlers(sched SchedulerControl, log zerolog.Logger) *SchedulerHandlers {
	return &SchedulerHandlers{
		scheduler: sched,
		log:       log.With().Str("component", "scheduler_handlers").Logger(),
	}
}

// RegisterRoutes registers scheduler routes
func (h *SchedulerHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/scheduler", func(r chi.Router) {
		r.Get("/status", h.HandleStatus)
		r.Post("/mode/{mode}", h.HandleSetMode)
		r.Post("/trigger", h.HandleTrigger)
		r.Post("/trigger/{job}", h.HandleTrigger)
	})
}

// HandleStatus returns the scheduler status
// GET /api/scheduler/status
func (h *SchedulerHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(h.log, w, http.StatusOK, h.scheduler.Status())
}

// HandleSetMode switches between MANUAL and AUTO
// POST /api/scheduler/mode/{mode}
func (h *SchedulerHandlers) HandleSetMode(w http.ResponseWriter, r *http.Request) {
	mode, err := scheduler.ParseRunMode(chi.URLParam(r, "mode"))
	if err != nil {
		writeJSON(h.log, w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}

	if err := h.scheduler.SetMode(mode); err != nil {
		h.log.Error().Err(err).Str("mode", string(mode)).Msg("Failed to set mode")
		writeJSON(h.log, w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}

	writeJSON(h.log, w, http.StatusOK, map[string]string{"mode": string(h.scheduler.Mode())})
}

// HandleTrigger runs a job immediately, the trading loop when no job is named
// POST /api/scheduler/trigger/{job}
func (h *SchedulerHandlers) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job")
	if jobID == "" {
		jobID = scheduler.JobTradingLoop
	}

	if err := h.scheduler.TriggerNow(jobID); err != nil {
		switch {
		case errors.Is(err, scheduler.ErrUnknownJob):
			writeJSON(h.log, w, http.StatusNotFound, map[string]string{"detail": err.Error()})
			return
		case errors.Is(err, scheduler.ErrJobRunning):
			writeJSON(h.log, w, http.StatusConflict, map[string]string{"detail": err.Error()})
			return
		}
		writeJSON(h.log, w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}

	h.log.Info().Str("job", jobID).Msg("Job triggered via API")
	writeJSON(h.log, w, http.StatusOK, map[string]string{
		"job":     jobID,
		"message": "Job triggered",
	})
}
