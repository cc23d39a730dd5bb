package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/autopilot/internal/modules/market_hours"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T, now time.Time) *Handler {
	t.Helper()
	clock, err := market_hours.NewClock("", market_hours.WithNow(func() time.Time { return now }))
	require.NoError(t, err)
	return NewHandler(clock, zerolog.New(nil).Level(zerolog.Disabled))
}

func TestHandleGetStatus(t *testing.T) {
	// Tuesday 10:00 EST
	handler := newTestHandler(t, time.Date(2024, 1, 16, 15, 0, 0, 0, time.UTC))

	req := httptest.NewRequest("GET", "/api/market-hours/status", nil)
	w := httptest.NewRecorder()
	handler.HandleGetStatus(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data := response["data"].(map[string]interface{})
	assert.Equal(t, "OPEN", data["session"])
	assert.Equal(t, true, data["is_open"])
	assert.Equal(t, true, data["is_tradable"])
	assert.Equal(t, "America/New_York", data["timezone"])
	assert.NotNil(t, response["metadata"])
}

func TestHandleGetSession(t *testing.T) {
	handler := newTestHandler(t, time.Now())

	tests := []struct {
		name            string
		query           string
		expectedStatus  int
		expectedSession string
	}{
		{"pre-market instant", "?at=2024-01-16T13:00:00Z", http.StatusOK, "PRE_MARKET"},
		{"weekend instant", "?at=2024-01-13T15:00:00Z", http.StatusOK, "CLOSED"},
		{"missing parameter", "", http.StatusBadRequest, ""},
		{"malformed timestamp", "?at=yesterday", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := chi.NewRouter()
			handler.RegisterRoutes(router)

			req := httptest.NewRequest("GET", "/market-hours/session"+tt.query, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus != http.StatusOK {
				return
			}

			var response map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			data := response["data"].(map[string]interface{})
			assert.Equal(t, tt.expectedSession, data["session"])
		})
	}
}
