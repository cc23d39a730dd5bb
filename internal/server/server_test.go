package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/autopilot/internal/config"
	"github.com/aristath/autopilot/internal/di"
	"github.com/aristath/autopilot/internal/events"
	"github.com/aristath/autopilot/internal/scheduler"
)

func newTestServer(t *testing.T) (*httptest.Server, *di.Container) {
	t.Helper()
	t.Setenv("AUTOPILOT_DATA_DIR", t.TempDir())
	t.Setenv("AUTOPILOT_CONFIG", "")
	t.Setenv("MARKET_TIMEZONE", "UTC")

	cfg, err := config.Load()
	require.NoError(t, err)

	container, err := di.Wire(cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	s := New(Config{
		Log:       zerolog.Nop(),
		Config:    cfg,
		Container: container,
		Port:      cfg.Port,
		DevMode:   true,
	})

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, container
}

func doJSON(t *testing.T, method, url string, out interface{}) int {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]interface{}
	status := doJSON(t, http.MethodGet, srv.URL+"/health", &body)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "autopilot", body["service"])
	assert.Equal(t, false, body["broker_connected"])
	assert.Equal(t, "ok", body["database"])
}

func TestServer_SchedulerRoutes(t *testing.T) {
	srv, container := newTestServer(t)

	var status scheduler.Status
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/api/scheduler/status", &status))
	assert.Equal(t, scheduler.ModeAuto, status.Mode)
	assert.False(t, status.IsRunning)
	assert.Len(t, status.NextJobs, 5)

	var mode map[string]string
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, srv.URL+"/api/scheduler/mode/manual", &mode))
	assert.Equal(t, "MANUAL", mode["mode"])
	assert.Equal(t, scheduler.ModeManual, container.Scheduler.Mode())

	var detail map[string]string
	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPost, srv.URL+"/api/scheduler/mode/sometimes", &detail))
	assert.Contains(t, detail["detail"], "invalid run mode")

	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodPost, srv.URL+"/api/scheduler/trigger/nope", nil))
}

func TestServer_BrokerDependentRoutes(t *testing.T) {
	srv, _ := newTestServer(t)

	var detail map[string]string
	assert.Equal(t, http.StatusServiceUnavailable, doJSON(t, http.MethodGet, srv.URL+"/api/portfolio/", &detail))
	assert.Equal(t, "Broker not connected", detail["detail"])

	var trades map[string]interface{}
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/api/trades", &trades))
	assert.EqualValues(t, 0, trades["count"])

	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/api/market-hours/status", nil))
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/api/reflections/", nil))
}

func TestServer_Logs(t *testing.T) {
	srv, container := newTestServer(t)

	container.LogService.AppendLog("WARNING", "trading", "Order BUY AAPL failed: rejected", nil)
	container.LogService.AppendLog("INFO", "scheduler", "Scheduler started", nil)

	var resp LogContentResponse
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/api/logs/?level=WARNING", &resp))
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "Order BUY AAPL failed: rejected", resp.Logs[0].Message)

	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/api/logs/errors", &resp))
	assert.Equal(t, 0, resp.Total)
}

func TestServer_EventStream(t *testing.T) {
	srv, container := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events/stream?types=agent_status", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readData := func() map[string]interface{} {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "data: ") {
				var out map[string]interface{}
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &out))
				return out
			}
		}
	}

	assert.Equal(t, "connected", readData()["type"])

	// Filtered out
	container.Hub.Publish(context.Background(), &events.LogData{Level: "ERROR", Message: "boom"})
	container.Hub.Publish(context.Background(), &events.AgentStatusData{Status: events.StatusAnalyzing})

	got := readData()
	assert.Equal(t, "agent_status", got["type"])
	data, ok := got["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, events.StatusAnalyzing, data["status"])
}

func TestServer_WebSocket(t *testing.T) {
	srv, container := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var msg map[string]interface{}
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "init", msg["type"])
	initData, ok := msg["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, initData["connected"])
	assert.Equal(t, false, initData["broker_connected"])
	assert.Contains(t, initData, "scheduler_status")
	assert.Contains(t, initData, "agent_status")

	require.NoError(t, wsjson.Write(ctx, conn, map[string]string{"type": "ping"}))
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "pong", msg["type"])

	require.NoError(t, wsjson.Write(ctx, conn, map[string]string{"type": "set_mode", "mode": "bogus"}))
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "error", msg["type"])

	require.NoError(t, wsjson.Write(ctx, conn, map[string]string{"type": "set_mode", "mode": "manual"}))
	var seen []string
	for i := 0; i < 5; i++ {
		msg = nil
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		seen = append(seen, msg["type"].(string))
		if msg["type"] == string(events.ModeChange) {
			break
		}
	}
	assert.Contains(t, seen, string(events.ModeChange))
	assert.Equal(t, scheduler.ModeManual, container.Scheduler.Mode())

	require.NoError(t, wsjson.Write(ctx, conn, map[string]string{"type": "get_status"}))
	for i := 0; i < 5; i++ {
		msg = nil
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		if msg["type"] == string(events.AgentStatus) {
			break
		}
	}
	assert.Equal(t, string(events.AgentStatus), msg["type"])
}

func TestServer_WebSocketIdleClientDoesNotBlockPublish(t *testing.T) {
	srv, container := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var msg map[string]interface{}
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	require.Equal(t, "init", msg["type"])
	require.Eventually(t, func() bool { return container.Hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	// The client stops reading; publishing past its queue must stay fast
	start := time.Now()
	for i := 0; i < wsQueueSize*4; i++ {
		container.Hub.Publish(ctx, &events.AgentStatusData{Status: events.StatusIdle})
	}
	assert.Less(t, time.Since(start), 2*time.Second)
}
