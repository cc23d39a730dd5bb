package snapshots

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/autopilot/internal/broker"
)

// Repository handles portfolio_snapshots database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new snapshot repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "snapshots").Logger(),
	}
}

// Create inserts a snapshot and returns its id
func (r *Repository) Create(s Snapshot) (int64, error) {
	positions := s.Positions
	if positions == nil {
		positions = []broker.Position{}
	}
	positionsJSON, err := json.Marshal(positions)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal positions: %w", err)
	}

	res, err := r.db.Exec(`
		INSERT INTO portfolio_snapshots
		(created_at, total_value, cash, holdings_value, pnl, pnl_percent, positions_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.Timestamp.Unix(), s.TotalValue, s.Cash, s.HoldingsValue, s.PnL, s.PnLPercent, string(positionsJSON))
	if err != nil {
		return 0, fmt.Errorf("failed to create snapshot: %w", err)
	}
	return res.LastInsertId()
}

// History returns snapshots taken at or after since, oldest first
func (r *Repository) History(since time.Time, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := r.db.Query(`
		SELECT id, created_at, total_value, cash, holdings_value, pnl, pnl_percent, positions_json
		FROM portfolio_snapshots
		WHERE created_at >= ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, since.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	history := make([]Snapshot, 0)
	for rows.Next() {
		var (
			s             Snapshot
			createdAt     int64
			positionsJSON string
		)
		if err := rows.Scan(&s.ID, &createdAt, &s.TotalValue, &s.Cash, &s.HoldingsValue, &s.PnL, &s.PnLPercent, &positionsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		s.Timestamp = time.Unix(createdAt, 0).UTC()
		if err := json.Unmarshal([]byte(positionsJSON), &s.Positions); err != nil {
			r.log.Warn().Err(err).Int64("id", s.ID).Msg("Failed to parse snapshot positions")
		}
		history = append(history, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return history, nil
}

// DeleteOlderThan removes snapshots taken before cutoff
func (r *Repository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec("DELETE FROM portfolio_snapshots WHERE created_at < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old snapshots: %w", err)
	}
	return res.RowsAffected()
}
