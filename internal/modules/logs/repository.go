// Package logs persists the system log shown in the UI and republishes
// warnings and errors to live observers.
package logs

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Entry is one persisted system log line
type Entry struct {
	ID        int64                  `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Limit     int
	Level     string
	Component string
	Search    string
}

// Repository handles system_logs database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new log repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "logs").Logger(),
	}
}

// Append inserts a log entry and returns its id
func (r *Repository) Append(entry Entry) (int64, error) {
	var details interface{}
	if len(entry.Details) > 0 {
		data, err := json.Marshal(entry.Details)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal log details: %w", err)
		}
		details = string(data)
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	res, err := r.db.Exec(`
		INSERT INTO system_logs (created_at, level, component, message, details)
		VALUES (?, ?, ?, ?, ?)
	`, entry.Timestamp.Unix(), entry.Level, entry.Component, entry.Message, details)
	if err != nil {
		return 0, fmt.Errorf("failed to insert log entry: %w", err)
	}

	return res.LastInsertId()
}

// List returns log entries, most recent first
func (r *Repository) List(f Filter) ([]Entry, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}

	var (
		where []string
		args  []interface{}
	)
	if f.Level != "" {
		where = append(where, "level = ?")
		args = append(args, strings.ToUpper(f.Level))
	}
	if f.Component != "" {
		where = append(where, "component = ?")
		args = append(args, f.Component)
	}
	if f.Search != "" {
		where = append(where, "message LIKE ?")
		args = append(args, "%"+f.Search+"%")
	}

	query := "SELECT id, created_at, level, component, message, details FROM system_logs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, f.Limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			e         Entry
			createdAt int64
			details   sql.NullString
		)
		if err := rows.Scan(&e.ID, &createdAt, &e.Level, &e.Component, &e.Message, &details); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		e.Timestamp = time.Unix(createdAt, 0).UTC()
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				r.log.Warn().Err(err).Int64("id", e.ID).Msg("Failed to parse log details")
			}
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating logs: %w", err)
	}
	return entries, nil
}

// DeleteOlderThan prunes entries created before cutoff
func (r *Repository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec("DELETE FROM system_logs WHERE created_at < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune logs: %w", err)
	}
	return res.RowsAffected()
}
