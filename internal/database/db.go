package database

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/coinbot-kr/coinbot/models"
)

// DB wraps the trade history store.
type DB struct {
	*sql.DB
	path string
}

// New opens (or creates) the SQLite database at path and ensures the
// schema exists. Pass ":memory:" for an ephemeral store.
func New(path string) (*DB, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}

	// single writer; sqlite locks on concurrent writes
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		return nil, err
	}
	return &DB{DB: db, path: path}, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			position_id TEXT PRIMARY KEY,
			market TEXT NOT NULL,
			strategy_id TEXT NOT NULL,
			entry_time TIMESTAMP NOT NULL,
			exit_time TIMESTAMP NOT NULL,
			duration_hours REAL NOT NULL,
			entry_price REAL NOT NULL,
			exit_price REAL NOT NULL,
			quantity REAL NOT NULL,
			invested_amount REAL NOT NULL,
			received_amount REAL NOT NULL,
			profit_amount REAL NOT NULL,
			profit_ratio REAL NOT NULL,
			exit_reason TEXT,
			reasoning TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS positions (
			position_id TEXT PRIMARY KEY,
			market TEXT NOT NULL,
			strategy_id TEXT NOT NULL,
			entry_price REAL NOT NULL,
			quantity REAL NOT NULL,
			total_invested REAL NOT NULL,
			current_price REAL NOT NULL,
			stop_loss REAL NOT NULL,
			take_profit REAL NOT NULL,
			entry_time TIMESTAMP NOT NULL,
			is_open INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS performance (
			date TEXT PRIMARY KEY,
			portfolio_value REAL NOT NULL,
			daily_pnl REAL NOT NULL,
			daily_pnl_ratio REAL NOT NULL,
			trade_count INTEGER NOT NULL,
			win_count INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS risk_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			description TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_exit_time ON trades(exit_time)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_strategy ON trades(strategy_id)`,
		`CREATE INDEX IF NOT EXISTS idx_risk_events_created ON risk_events(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

// SaveTrade inserts a completed round trip.
func (db *DB) SaveTrade(trade *models.TradeResult) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO trades (
			position_id, market, strategy_id, entry_time, exit_time,
			duration_hours, entry_price, exit_price, quantity,
			invested_amount, received_amount, profit_amount, profit_ratio,
			exit_reason, reasoning
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.PositionID, trade.Market, trade.StrategyID,
		trade.EntryTime, trade.ExitTime, trade.DurationHours,
		trade.EntryPrice, trade.ExitPrice, trade.Quantity,
		trade.InvestedAmount, trade.ReceivedAmount,
		trade.ProfitAmount, trade.ProfitRatio,
		trade.ExitReason, trade.Reasoning)
	if err != nil {
		return fmt.Errorf("saving trade: %w", err)
	}
	return nil
}

// GetTrades returns trades exited within [since, until], newest last.
// Zero times lift the bound; limit <= 0 means no limit.
func (db *DB) GetTrades(since, until time.Time, limit int) ([]models.TradeResult, error) {
	query := `SELECT position_id, market, strategy_id, entry_time, exit_time,
		duration_hours, entry_price, exit_price, quantity,
		invested_amount, received_amount, profit_amount, profit_ratio,
		exit_reason, reasoning FROM trades WHERE 1=1`
	args := []any{}

	if !since.IsZero() {
		query += " AND exit_time >= ?"
		args = append(args, since)
	}
	if !until.IsZero() {
		query += " AND exit_time <= ?"
		args = append(args, until)
	}
	query += " ORDER BY exit_time ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying trades: %w", err)
	}
	defer rows.Close()

	var out []models.TradeResult
	for rows.Next() {
		var t models.TradeResult
		if err := rows.Scan(&t.PositionID, &t.Market, &t.StrategyID,
			&t.EntryTime, &t.ExitTime, &t.DurationHours,
			&t.EntryPrice, &t.ExitPrice, &t.Quantity,
			&t.InvestedAmount, &t.ReceivedAmount,
			&t.ProfitAmount, &t.ProfitRatio,
			&t.ExitReason, &t.Reasoning); err != nil {
			return nil, fmt.Errorf("scanning trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TradeStats aggregates the stored trades over the last `days` days.
type TradeStats struct {
	TotalTrades int
	WinCount    int
	WinRate     float64
	TotalProfit float64
	AvgProfit   float64
}

// GetTradeStats summarizes trades since the cutoff.
func (db *DB) GetTradeStats(since time.Time) (*TradeStats, error) {
	row := db.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN profit_ratio > 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(profit_amount), 0),
			COALESCE(AVG(profit_ratio), 0)
		FROM trades WHERE exit_time >= ?`, since)

	var s TradeStats
	if err := row.Scan(&s.TotalTrades, &s.WinCount, &s.TotalProfit, &s.AvgProfit); err != nil {
		return nil, fmt.Errorf("trade stats: %w", err)
	}
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.WinCount) / float64(s.TotalTrades)
	}
	return &s, nil
}

// SavePosition upserts an open position snapshot.
func (db *DB) SavePosition(p *models.Position) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO positions (
			position_id, market, strategy_id, entry_price, quantity,
			total_invested, current_price, stop_loss, take_profit,
			entry_time, is_open
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		p.PositionID, p.Market, p.StrategyID, p.EntryPrice, p.Quantity,
		p.TotalInvested, p.CurrentPrice, p.StopLoss, p.TakeProfit,
		p.EntryTime)
	if err != nil {
		return fmt.Errorf("saving position: %w", err)
	}
	return nil
}

// ClosePosition marks a stored position closed.
func (db *DB) ClosePosition(positionID string) error {
	_, err := db.Exec(`UPDATE positions SET is_open = 0 WHERE position_id = ?`, positionID)
	if err != nil {
		return fmt.Errorf("closing position: %w", err)
	}
	return nil
}

// GetOpenPositions returns positions not yet closed.
func (db *DB) GetOpenPositions() ([]models.Position, error) {
	rows, err := db.Query(`
		SELECT position_id, market, strategy_id, entry_price, quantity,
			total_invested, current_price, stop_loss, take_profit, entry_time
		FROM positions WHERE is_open = 1 ORDER BY entry_time ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying positions: %w", err)
	}
	defer rows.Close()

	var out []models.Position
	for rows.Next() {
		var p models.Position
		if err := rows.Scan(&p.PositionID, &p.Market, &p.StrategyID,
			&p.EntryPrice, &p.Quantity, &p.TotalInvested,
			&p.CurrentPrice, &p.StopLoss, &p.TakeProfit, &p.EntryTime); err != nil {
			return nil, fmt.Errorf("scanning position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveDailyPerformance upserts one day's portfolio summary. date is
// stored as YYYY-MM-DD.
func (db *DB) SaveDailyPerformance(date time.Time, portfolioValue, dailyPnL, dailyPnLRatio float64, tradeCount, winCount int) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO performance (
			date, portfolio_value, daily_pnl, daily_pnl_ratio, trade_count, win_count
		) VALUES (?, ?, ?, ?, ?, ?)`,
		date.Format("2006-01-02"), portfolioValue, dailyPnL, dailyPnLRatio,
		tradeCount, winCount)
	if err != nil {
		return fmt.Errorf("saving daily performance: %w", err)
	}
	return nil
}

// DailyPerformance is one stored day of results.
type DailyPerformance struct {
	Date           string  `json:"date"`
	PortfolioValue float64 `json:"portfolio_value"`
	DailyPnL       float64 `json:"daily_pnl"`
	DailyPnLRatio  float64 `json:"daily_pnl_ratio"`
	TradeCount     int     `json:"trade_count"`
	WinCount       int     `json:"win_count"`
}

// GetPerformanceHistory returns the last `days` stored days, oldest first.
func (db *DB) GetPerformanceHistory(days int) ([]DailyPerformance, error) {
	rows, err := db.Query(`
		SELECT date, portfolio_value, daily_pnl, daily_pnl_ratio, trade_count, win_count
		FROM performance ORDER BY date DESC LIMIT ?`, days)
	if err != nil {
		return nil, fmt.Errorf("querying performance: %w", err)
	}
	defer rows.Close()

	var out []DailyPerformance
	for rows.Next() {
		var d DailyPerformance
		if err := rows.Scan(&d.Date, &d.PortfolioValue, &d.DailyPnL,
			&d.DailyPnLRatio, &d.TradeCount, &d.WinCount); err != nil {
			return nil, fmt.Errorf("scanning performance: %w", err)
		}
		out = append(out, d)
	}
	// reverse to oldest-first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// SaveRiskEvent records one risk-manager event.
func (db *DB) SaveRiskEvent(eventType, severity, description string) error {
	_, err := db.Exec(`
		INSERT INTO risk_events (event_type, severity, description, created_at)
		VALUES (?, ?, ?, ?)`,
		eventType, severity, description, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving risk event: %w", err)
	}
	return nil
}

// RiskEvent is one stored risk-manager event.
type RiskEvent struct {
	ID          int64     `json:"id"`
	EventType   string    `json:"event_type"`
	Severity    string    `json:"severity"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// GetRiskEvents returns events since the cutoff, newest first.
func (db *DB) GetRiskEvents(since time.Time, limit int) ([]RiskEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT id, event_type, severity, description, created_at
		FROM risk_events WHERE created_at >= ?
		ORDER BY created_at DESC LIMIT ?`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("querying risk events: %w", err)
	}
	defer rows.Close()

	var out []RiskEvent
	for rows.Next() {
		var e RiskEvent
		if err := rows.Scan(&e.ID, &e.EventType, &e.Severity,
			&e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning risk event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PurgeOldTrades removes trades older than the retention window.
// Returns the number of rows deleted.
func (db *DB) PurgeOldTrades(keep time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-keep)
	res, err := db.Exec(`DELETE FROM trades WHERE exit_time < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging trades: %w", err)
	}
	return res.RowsAffected()
}

// Backup copies the database file into dir with a timestamped name.
func (db *DB) Backup(dir string) (string, error) {
	if db.path == ":memory:" {
		return "", fmt.Errorf("cannot back up an in-memory database")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup dir: %w", err)
	}

	src, err := os.Open(db.path)
	if err != nil {
		return "", fmt.Errorf("opening database file: %w", err)
	}
	defer src.Close()

	name := fmt.Sprintf("coinbot_%s.db", time.Now().UTC().Format("20060102_150405"))
	target := filepath.Join(dir, name)
	dst, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("creating backup file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("copying database: %w", err)
	}
	return target, nil
}
