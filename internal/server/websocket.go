package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/autopilot/internal/events"
	"github.com/aristath/autopilot/internal/scheduler"
)

const (
	wsWriteTimeout = 10 * time.Second
	// Outbound events buffered per connection before the client is dropped
	wsQueueSize = 64
)

// Message types that only travel on the websocket
const (
	msgInit            events.EventType = "init"
	msgPong            events.EventType = "pong"
	msgAnalysisStarted events.EventType = "analysis_started"
	msgError           events.EventType = "error"
)

// clientMessage is a request sent by a websocket client
type clientMessage struct {
	Type string `json:"type"`
	Mode string `json:"mode,omitempty"`
}

// WebSocketHandler subscribes websocket clients to the hub and answers
// their control messages
type WebSocketHandler struct {
	hub            *events.Hub
	scheduler      SchedulerControl
	agent          AgentStatus
	broker         BrokerStatus
	originPatterns []string
	log            zerolog.Logger
}

// NewWebSocketHandler creates a websocket handler. agent may be nil.
func NewWebSocketHandler(hub *events.Hub, sched SchedulerControl, agent AgentStatus, broker BrokerStatus, originPatterns []string, log zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:            hub,
		scheduler:      sched,
		agent:          agent,
		broker:         broker,
		originPatterns: originPatterns,
		log:            log.With().Str("component", "websocket").Logger(),
	}
}

// ServeHTTP handles GET /ws
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{OriginPatterns: h.originPatterns}
	if len(h.originPatterns) == 0 {
		opts.InsecureSkipVerify = true
	}

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Hub deliveries and direct replies share one queue drained by a single
	// writer, so a stalled client never blocks a broadcast
	sub := events.NewChannelSubscriber(wsQueueSize)
	go h.writeLoop(ctx, conn, sub)

	if err := h.send(ctx, sub, msgInit, h.initData()); err != nil {
		h.log.Warn().Err(err).Msg("Failed to queue initial status")
		sub.Close()
		return
	}

	h.hub.Subscribe(sub)
	defer func() {
		h.hub.Unsubscribe(sub)
		sub.Close()
	}()

	h.log.Info().Str("subscriber", sub.ID()).Int("active", h.hub.Count()).Msg("WebSocket connected")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				h.log.Debug().Err(err).Msg("WebSocket read ended")
			}
			h.log.Info().Str("subscriber", sub.ID()).Msg("WebSocket disconnected")
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.log.Warn().Str("data", string(data)).Msg("Invalid JSON received")
			continue
		}

		if err := h.handleMessage(ctx, sub, msg); err != nil {
			h.log.Warn().Err(err).Str("type", msg.Type).Msg("Failed to answer client message")
			return
		}
	}
}

// writeLoop drains the connection's queue. The queue ending, either on
// disconnect or after overflowing, and a failed write both close the
// connection.
func (h *WebSocketHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sub *events.ChannelSubscriber) {
	defer conn.CloseNow()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(writeCtx, conn, event)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Str("subscriber", sub.ID()).Msg("WebSocket write failed")
				return
			}
		}
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, sub *events.ChannelSubscriber, msg clientMessage) error {
	switch msg.Type {
	case "ping":
		return h.send(ctx, sub, msgPong, nil)

	case "get_status":
		if h.agent == nil {
			return nil
		}
		status := h.agent.Status()
		return sub.Send(ctx, events.NewEvent(&status))

	case "set_mode":
		raw := msg.Mode
		if strings.TrimSpace(raw) == "" {
			raw = string(scheduler.ModeManual)
		}
		mode, err := scheduler.ParseRunMode(raw)
		if err == nil {
			// The scheduler broadcasts mode_change to every client
			err = h.scheduler.SetMode(mode)
		}
		if err != nil {
			return h.send(ctx, sub, msgError, map[string]string{"message": err.Error()})
		}
		return nil

	case "trigger_analysis":
		if err := h.scheduler.TriggerNow(scheduler.JobTradingLoop); err != nil {
			return h.send(ctx, sub, msgError, map[string]string{"message": err.Error()})
		}
		return h.send(ctx, sub, msgAnalysisStarted, nil)

	default:
		h.log.Warn().Str("type", msg.Type).Msg("Unknown message type")
		return nil
	}
}

func (h *WebSocketHandler) initData() map[string]interface{} {
	data := map[string]interface{}{
		"scheduler_status": h.scheduler.Status(),
		"broker_connected": h.broker.IsConnected(),
		"connected":        true,
	}
	if h.agent != nil {
		data["agent_status"] = h.agent.Status()
	}
	return data
}

func (h *WebSocketHandler) send(ctx context.Context, sub *events.ChannelSubscriber, t events.EventType, data interface{}) error {
	return sub.Send(ctx, events.Event{Type: t, Timestamp: time.Now().UTC(), Data: data})
}
