package trading

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/autopilot/internal/broker"
)

// TradeRepository handles trade database operations
type TradeRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// tradesColumns is the list of columns for the trades table
// Column order must match scanTrade()
const tradesColumns = `id, order_id, executed_at, action, symbol, quantity, price, total_value, fee, reasoning, pnl`

// NewTradeRepository creates a new trade repository
func NewTradeRepository(db *sql.DB, log zerolog.Logger) *TradeRepository {
	return &TradeRepository{
		db:  db,
		log: log.With().Str("repo", "trade").Logger(),
	}
}

// Create inserts a new trade record and returns its id.
// A trade whose order_id is already recorded is skipped silently.
func (r *TradeRepository) Create(trade Trade) (int64, error) {
	if err := trade.Validate(); err != nil {
		return 0, fmt.Errorf("failed to create trade: %w", err)
	}

	if trade.OrderID != "" {
		existing, err := r.GetByOrderID(trade.OrderID)
		if err != nil {
			return 0, fmt.Errorf("failed to check for existing trade: %w", err)
		}
		if existing != nil {
			r.log.Debug().
				Str("order_id", trade.OrderID).
				Msg("Trade with order_id already exists, skipping duplicate")
			return existing.ID, nil
		}
	}

	res, err := r.db.Exec(`
		INSERT INTO trades
		(order_id, executed_at, action, symbol, quantity, price, total_value, fee, reasoning, pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		nullString(trade.OrderID),
		trade.ExecutedAt.Unix(),
		string(trade.Action),
		strings.ToUpper(strings.TrimSpace(trade.Symbol)),
		trade.Quantity,
		trade.Price,
		trade.TotalValue,
		trade.Fee,
		nullString(trade.Reasoning),
		nullFloat64Ptr(trade.PnL),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create trade: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read trade id: %w", err)
	}

	r.log.Info().
		Str("symbol", trade.Symbol).
		Str("action", string(trade.Action)).
		Float64("quantity", trade.Quantity).
		Float64("price", trade.Price).
		Msg("Trade created")

	return id, nil
}

// GetByOrderID retrieves a trade by broker order ID, nil when absent
func (r *TradeRepository) GetByOrderID(orderID string) (*Trade, error) {
	row := r.db.QueryRow("SELECT "+tradesColumns+" FROM trades WHERE order_id = ?", orderID)
	trade, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade by order_id: %w", err)
	}
	return &trade, nil
}

// GetHistory retrieves trade history, most recent first
func (r *TradeRepository) GetHistory(limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.query(`
		SELECT `+tradesColumns+` FROM trades
		ORDER BY executed_at DESC, id DESC
		LIMIT ?
	`, limit)
}

// GetInRange retrieves trades executed in [start, end], oldest first
func (r *TradeRepository) GetInRange(start, end time.Time) ([]Trade, error) {
	return r.query(`
		SELECT `+tradesColumns+` FROM trades
		WHERE executed_at >= ? AND executed_at <= ?
		ORDER BY executed_at ASC, id ASC
	`, start.Unix(), end.Unix())
}

// CountSince counts trades executed strictly after since.
// A zero since counts every trade.
func (r *TradeRepository) CountSince(since time.Time) (int, error) {
	var (
		count int
		err   error
	)
	if since.IsZero() {
		err = r.db.QueryRow("SELECT COUNT(*) FROM trades").Scan(&count)
	} else {
		err = r.db.QueryRow("SELECT COUNT(*) FROM trades WHERE executed_at > ?", since.Unix()).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count trades: %w", err)
	}
	return count, nil
}

// GetStats aggregates trades executed since the given time
func (r *TradeRepository) GetStats(since time.Time) (Stats, error) {
	trades, err := r.GetInRange(since, time.Now())
	if err != nil {
		return Stats{}, err
	}
	return CalculateStats(trades), nil
}

func (r *TradeRepository) query(query string, args ...interface{}) ([]Trade, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	trades := make([]Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}
	return trades, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(row rowScanner) (Trade, error) {
	var (
		trade      Trade
		orderID    sql.NullString
		executedAt int64
		action     string
		reasoning  sql.NullString
		pnl        sql.NullFloat64
	)

	err := row.Scan(
		&trade.ID,
		&orderID,
		&executedAt,
		&action,
		&trade.Symbol,
		&trade.Quantity,
		&trade.Price,
		&trade.TotalValue,
		&trade.Fee,
		&reasoning,
		&pnl,
	)
	if err != nil {
		return trade, err
	}

	trade.OrderID = orderID.String
	trade.ExecutedAt = time.Unix(executedAt, 0).UTC()
	trade.Action = broker.Action(action)
	trade.Reasoning = reasoning.String
	if pnl.Valid {
		v := pnl.Float64
		trade.PnL = &v
	}
	return trade, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat64Ptr(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
