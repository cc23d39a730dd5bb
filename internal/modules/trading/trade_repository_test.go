package trading

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/autopilot/internal/broker"
	testingpkg "github.com/aristath/autopilot/internal/testing"
)

func newTestRepo(t *testing.T) *TradeRepository {
	t.Helper()
	return NewTradeRepository(testingpkg.NewMemoryDB(t), zerolog.Nop())
}

func sampleTrade(orderID string, at time.Time) Trade {
	return Trade{
		OrderID:    orderID,
		ExecutedAt: at,
		Action:     broker.ActionBuy,
		Symbol:     "aapl",
		Quantity:   10,
		Price:      190.5,
		TotalValue: 1905,
		Fee:        1,
		Reasoning:  "momentum",
	}
}

func TestTradeRepository_CreateAndGet(t *testing.T) {
	repo := newTestRepo(t)
	at := time.Date(2024, 1, 16, 15, 0, 0, 0, time.UTC)

	id, err := repo.Create(sampleTrade("42", at))
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	trade, err := repo.GetByOrderID("42")
	require.NoError(t, err)
	require.NotNil(t, trade)
	assert.Equal(t, "AAPL", trade.Symbol)
	assert.Equal(t, broker.ActionBuy, trade.Action)
	assert.Equal(t, at, trade.ExecutedAt)
	assert.Equal(t, "momentum", trade.Reasoning)
	assert.Nil(t, trade.PnL)

	missing, err := repo.GetByOrderID("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTradeRepository_CreateSkipsDuplicateOrderID(t *testing.T) {
	repo := newTestRepo(t)
	at := time.Now()

	first, err := repo.Create(sampleTrade("7", at))
	require.NoError(t, err)
	second, err := repo.Create(sampleTrade("7", at))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	count, err := repo.CountSince(time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestTradeRepository_CreateValidates(t *testing.T) {
	repo := newTestRepo(t)

	bad := sampleTrade("", time.Now())
	bad.Quantity = 0
	_, err := repo.Create(bad)
	assert.Error(t, err)
}

func TestTradeRepository_CountSinceIsStrict(t *testing.T) {
	repo := newTestRepo(t)
	base := time.Date(2024, 1, 16, 21, 5, 0, 0, time.UTC)

	_, err := repo.Create(sampleTrade("1", base.Add(-time.Hour)))
	require.NoError(t, err)
	_, err = repo.Create(sampleTrade("2", base))
	require.NoError(t, err)
	_, err = repo.Create(sampleTrade("3", base.Add(time.Minute)))
	require.NoError(t, err)

	count, err := repo.CountSince(base)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	all, err := repo.CountSince(time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 3, all)
}

func TestTradeRepository_HistoryAndRange(t *testing.T) {
	repo := newTestRepo(t)
	base := time.Date(2024, 1, 16, 15, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		_, err := repo.Create(sampleTrade(id, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}

	history, err := repo.GetHistory(2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "c", history[0].OrderID)
	assert.Equal(t, "b", history[1].OrderID)

	inRange, err := repo.GetInRange(base.Add(30*time.Minute), base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, inRange, 2)
	assert.Equal(t, "b", inRange[0].OrderID)
}
