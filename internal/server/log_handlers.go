package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/autopilot/internal/modules/logs"
)

// LogReader lists persisted system log entries
type LogReader interface {
	List(f logs.Filter) ([]logs.Entry, error)
}

// maxLogLines caps a single request
const maxLogLines = 10000

// LogHandlers serves the persisted system log
type LogHandlers struct {
	reader LogReader
	log    zerolog.Logger
}

// NewLogHandlers creates a new log handlers instance
func NewLogHandlers(reader LogReader, log zerolog.Logger) *LogHandlers {
	return &LogHandlers{
		reader: reader,
		log:    log.With().Str("component", "log_handlers").Logger(),
	}
}

// LogContentResponse represents log content
type LogContentResponse struct {
	Logs  []logs.Entry `json:"logs"`
	Total int          `json:"total"`
}

// RegisterRoutes registers log routes
func (h *LogHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/logs", func(r chi.Router) {
		r.Get("/", h.HandleGetLogs)
		r.Get("/errors", h.HandleGetErrors)
	})
}

// HandleGetLogs returns system log entries with optional filtering
// GET /api/logs?limit=100&level=ERROR&component=scheduler&search=text
func (h *LogHandlers) HandleGetLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.respond(w, logs.Filter{
		Limit:     parseLimit(q.Get("limit"), 100),
		Level:     q.Get("level"),
		Component: q.Get("component"),
		Search:    q.Get("search"),
	})
}

// HandleGetErrors returns only ERROR entries
// GET /api/logs/errors
func (h *LogHandlers) HandleGetErrors(w http.ResponseWriter, r *http.Request) {
	h.respond(w, logs.Filter{
		Limit: parseLimit(r.URL.Query().Get("limit"), 500),
		Level: "ERROR",
	})
}

func (h *LogHandlers) respond(w http.ResponseWriter, f logs.Filter) {
	h.log.Debug().
		Int("limit", f.Limit).
		Str("level", f.Level).
		Str("component", f.Component).
		Msg("Getting system logs")

	entries, err := h.reader.List(f)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read system logs")
		writeJSON(h.log, w, http.StatusInternalServerError, map[string]string{"detail": "Failed to read logs"})
		return
	}

	writeJSON(h.log, w, http.StatusOK, LogContentResponse{Logs: entries, Total: len(entries)})
}

func parseLimit(param string, def int) int {
	if param == "" {
		return def
	}
	parsed, err := strconv.Atoi(param)
	if err != nil || parsed <= 0 {
		return def
	}
	if parsed > maxLogLines {
		return maxLogLines
	}
	return parsed
}
