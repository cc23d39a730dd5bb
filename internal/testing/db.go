// Package testing provides testing utilities and helpers for the autopilot project.
package testing

import (
	"database/sql"
	"fmt"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aristath/autopilot/internal/database"
)

// NewMemoryDB opens an in-memory SQLite database (mattn driver) with the
// autopilot schema applied. The connection is closed when the test ends.
//
// An in-memory database lives in a single connection, so the pool is pinned
// to one connection.
func NewMemoryDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if err := database.ApplySchema(db); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to apply schema: %v", err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close in-memory database: %v", err)
		}
	})
	return db
}

// NewTestDB creates a file-backed database through the production driver
// and profile, migrated and removed when the test ends.
func NewTestDB(t *testing.T) *database.DB {
	t.Helper()

	tmpFile, err := os.CreateTemp(t.TempDir(), "autopilot_*.db")
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileStandard,
		Name:    "test",
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", tmpPath, err)
		}
	})
	return db
}

// MustExec runs a statement and fails the test on error
func MustExec(t *testing.T, db *sql.DB, query string, args ...interface{}) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("%s", fmt.Errorf("exec %q: %w", query, err))
	}
}
