package yahoo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{
		BaseURL:           server.URL,
		RequestsPerMinute: 6000,
		MaxRetries:        3,
		RetryBackoff:      time.Millisecond,
	}, zerolog.New(nil).Level(zerolog.Disabled))
}

func TestGetYahooSymbol(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"AAPL.US", "AAPL"},
		{"aapl", "AAPL"},
		{"7203.JP", "7203.T"},
		{"BASF.DE", "BASF.DE"},
		{"VOD.L", "VOD.L"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, GetYahooSymbol(tt.in), tt.in)
	}
}

func TestPrice_ReadsRegularMarketPrice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/AAPL", r.URL.Path)
		fmt.Fprint(w, `{"chart":{"result":[{"meta":{"symbol":"AAPL","regularMarketPrice":191.45,"chartPreviousClose":189.1}}],"error":null}}`)
	})

	price, err := client.Price(context.Background(), "AAPL.US")
	require.NoError(t, err)
	assert.Equal(t, 191.45, price)
}

func TestPrice_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"chart":{"result":[{"meta":{"regularMarketPrice":0,"chartPreviousClose":55.5}}]}}`)
	})

	price, err := client.Price(context.Background(), "XYZ")
	require.NoError(t, err)
	assert.Equal(t, 55.5, price)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestPrice_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`)
	})

	_, err := client.Price(context.Background(), "NOPE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delisted")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}
