package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CreatesDirectoryAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "autopilot.db")

	db, err := New(Config{Path: path, Profile: ProfileLedger})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, "autopilot", db.Name())
	assert.Equal(t, path, db.Path())

	require.NoError(t, db.Migrate())
	// Schema is idempotent
	require.NoError(t, db.Migrate())

	for _, table := range []string{"settings", "trades", "system_logs", "reflections", "portfolio_snapshots"} {
		var name string
		err := db.Conn().QueryRow(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}

func TestHealthCheckAndStats(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "autopilot.db")})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate())

	assert.NoError(t, db.HealthCheck(context.Background()))
	assert.NoError(t, db.WALCheckpoint(""))

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Greater(t, stats.PageCount, int64(0))
	assert.Greater(t, stats.PageSize, int64(0))
}

func TestBuildConnectionString(t *testing.T) {
	ledger := buildConnectionString("/data/a.db", ProfileLedger)
	assert.Contains(t, ledger, "/data/a.db?_pragma=journal_mode(WAL)")
	assert.Contains(t, ledger, "synchronous(FULL)")

	standard := buildConnectionString("file:mem?mode=memory", ProfileStandard)
	assert.Contains(t, standard, "file:mem?mode=memory&_pragma=journal_mode(WAL)")
	assert.Contains(t, standard, "synchronous(NORMAL)")
}
