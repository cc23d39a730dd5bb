package settings

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testingpkg "github.com/aristath/autopilot/internal/testing"
)

func TestRepository_GetMissingKey(t *testing.T) {
	repo := NewRepository(testingpkg.NewMemoryDB(t), zerolog.Nop())

	value, err := repo.Get(KeySchedulerMode)
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestRepository_SetOverwrites(t *testing.T) {
	repo := NewRepository(testingpkg.NewMemoryDB(t), zerolog.Nop())

	require.NoError(t, repo.Set(KeySchedulerMode, "AUTO"))
	require.NoError(t, repo.Set(KeySchedulerMode, "MANUAL"))

	value, err := repo.Get(KeySchedulerMode)
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, "MANUAL", *value)

	all, err := repo.GetAll()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{KeySchedulerMode: "MANUAL"}, all)
}

func TestRepository_Float(t *testing.T) {
	repo := NewRepository(testingpkg.NewMemoryDB(t), zerolog.Nop())

	v, err := repo.GetFloat(KeyInitialPortfolioValue, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)

	require.NoError(t, repo.SetFloat(KeyInitialPortfolioValue, 100000.5))
	v, err = repo.GetFloat(KeyInitialPortfolioValue, 0)
	require.NoError(t, err)
	assert.Equal(t, 100000.5, v)

	require.NoError(t, repo.Set(KeyInitialPortfolioValue, "lots"))
	v, err = repo.GetFloat(KeyInitialPortfolioValue, 42)
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)
}
