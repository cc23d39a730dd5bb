package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/autopilot/internal/events"
)

// EventsStreamHandler streams hub events as Server-Sent Events
type EventsStreamHandler struct {
	hub       *events.Hub
	buffer    int
	heartbeat time.Duration
	log       zerolog.Logger
}

// NewEventsStreamHandler creates a new SSE handler
func NewEventsStreamHandler(hub *events.Hub, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		hub:       hub,
		buffer:    100,
		heartbeat: 30 * time.Second,
		log:       log.With().Str("component", "events_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/events/stream requests (SSE).
// An optional types query parameter filters by comma-separated event type.
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	typesFilter := r.URL.Query().Get("types")
	var allowedTypes map[events.EventType]bool
	if typesFilter != "" {
		allowedTypes = make(map[events.EventType]bool)
		for _, t := range strings.Split(typesFilter, ",") {
			allowedTypes[events.EventType(strings.TrimSpace(t))] = true
		}
	}

	// A slow reader overflows the buffer, is evicted by the hub and the
	// stream ends; clients reconnect
	sub := events.NewChannelSubscriber(h.buffer)
	h.hub.Subscribe(sub)
	defer func() {
		h.hub.Unsubscribe(sub)
		sub.Close()
	}()

	h.log.Info().
		Str("subscriber", sub.ID()).
		Str("types_filter", typesFilter).
		Msg("Client connected to event stream")

	h.write(w, map[string]interface{}{
		"type":    "connected",
		"message": "Connected to event stream",
	})
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.log.Info().Str("subscriber", sub.ID()).Msg("Client disconnected from event stream")
			return

		case event, open := <-sub.Events():
			if !open {
				h.log.Warn().Str("subscriber", sub.ID()).Msg("Event stream evicted")
				return
			}
			if allowedTypes != nil && !allowedTypes[event.Type] {
				continue
			}
			h.write(w, event)
			flusher.Flush()

		case <-heartbeat.C:
			h.write(w, map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			flusher.Flush()
		}
	}
}

func (h *EventsStreamHandler) write(w http.ResponseWriter, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal event")
		data = []byte(`{"error":"failed to encode event"}`)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
