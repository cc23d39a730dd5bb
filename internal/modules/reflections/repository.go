package reflections

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const reflectionsColumns = `id, created_at, kind, period_start, period_end, trades_analyzed, total_pnl, win_rate, total_fees, content, lessons_learned`

// Repository handles reflections database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new reflections repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "reflections").Logger(),
	}
}

// Create inserts a reflection and returns its id
func (r *Repository) Create(ref Reflection) (int64, error) {
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = time.Now()
	}

	res, err := r.db.Exec(`
		INSERT INTO reflections
		(created_at, kind, period_start, period_end, trades_analyzed, total_pnl, win_rate, total_fees, content, lessons_learned)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ref.CreatedAt.Unix(),
		string(ref.Kind),
		ref.PeriodStart.Unix(),
		ref.PeriodEnd.Unix(),
		ref.TradesAnalyzed,
		nullFloat(ref.TotalPnL),
		nullFloat(ref.WinRate),
		ref.TotalFees,
		ref.Content,
		sql.NullString{String: ref.LessonsLearned, Valid: ref.LessonsLearned != ""},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create reflection: %w", err)
	}
	return res.LastInsertId()
}

// List returns reflections, most recent first
func (r *Repository) List(limit int) ([]Reflection, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.Query(`
		SELECT `+reflectionsColumns+` FROM reflections
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reflections: %w", err)
	}
	defer rows.Close()

	result := make([]Reflection, 0)
	for rows.Next() {
		ref, err := scanReflection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reflection: %w", err)
		}
		result = append(result, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reflections: %w", err)
	}
	return result, nil
}

// LastPeriodEnd returns the end of the most recent reflection period, nil if
// no reflection exists
func (r *Repository) LastPeriodEnd() (*time.Time, error) {
	var end sql.NullInt64
	if err := r.db.QueryRow("SELECT MAX(period_end) FROM reflections").Scan(&end); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last reflection end: %w", err)
	}
	if !end.Valid {
		return nil, nil
	}
	t := time.Unix(end.Int64, 0).UTC()
	return &t, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReflection(row rowScanner) (Reflection, error) {
	var (
		ref                               Reflection
		createdAt, periodStart, periodEnd int64
		kind                              string
		totalPnL, winRate                 sql.NullFloat64
		lessons                           sql.NullString
	)

	if err := row.Scan(
		&ref.ID,
		&createdAt,
		&kind,
		&periodStart,
		&periodEnd,
		&ref.TradesAnalyzed,
		&totalPnL,
		&winRate,
		&ref.TotalFees,
		&ref.Content,
		&lessons,
	); err != nil {
		return ref, err
	}

	ref.CreatedAt = time.Unix(createdAt, 0).UTC()
	ref.Kind = Kind(kind)
	ref.PeriodStart = time.Unix(periodStart, 0).UTC()
	ref.PeriodEnd = time.Unix(periodEnd, 0).UTC()
	if totalPnL.Valid {
		v := totalPnL.Float64
		ref.TotalPnL = &v
	}
	if winRate.Valid {
		v := winRate.Float64
		ref.WinRate = &v
	}
	ref.LessonsLearned = lessons.String
	return ref, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
