package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.TradeRepository using SQLite. The history
// store is analytics-only: the engine logs and swallows every error from
// it, so nothing here may be relied on for position safety.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trade_history.db" // Default path
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits from
	// limiting connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		position_id TEXT NOT NULL,
		venue TEXT NOT NULL,
		symbol TEXT NOT NULL,
		strategy TEXT NOT NULL,
		side TEXT NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		entry_price REAL NOT NULL,
		quantity REAL NOT NULL,
		cost REAL NOT NULL,
		stop_loss REAL NOT NULL,
		take_profit REAL NOT NULL,
		order_id TEXT NOT NULL,
		close_time TIMESTAMP DEFAULT NULL,
		close_price REAL DEFAULT NULL,
		close_reason TEXT DEFAULT NULL,
		pnl REAL DEFAULT NULL,
		pnl_pct REAL DEFAULT NULL,
		win INTEGER DEFAULT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trades_entry_time ON trades (entry_time);
	CREATE INDEX IF NOT EXISTS idx_trades_venue_symbol ON trades (venue, symbol);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// OpenTrade inserts the entry half of a trade row and returns its id.
func (r *Repository) OpenTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	const query = `
	INSERT INTO trades (position_id, venue, symbol, strategy, side, entry_time,
	                    entry_price, quantity, cost, stop_loss, take_profit, order_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		trade.PositionID, trade.Instrument.Venue, trade.Instrument.Symbol, trade.Strategy,
		string(trade.Side), trade.EntryTime.UTC(), trade.EntryPrice, trade.Quantity, trade.Cost,
		trade.StopLoss, trade.TakeProfit, trade.OrderID)
	if err != nil {
		return 0, fmt.Errorf("%w: inserting trade for %s: %v", ports.ErrHistoryPersistence, trade.Instrument.Key(), err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: last insert id for %s: %v", ports.ErrHistoryPersistence, trade.Instrument.Key(), err)
	}
	trade.ID = id
	r.logger.Debug(ctx, "Trade opened in history", map[string]interface{}{"tradeID": id, "instrument": trade.Instrument.Key()})
	return id, nil
}

// CloseTrade updates the row identified by trade.ID with exit data.
func (r *Repository) CloseTrade(ctx context.Context, trade *domain.Trade) error {
	const query = `
	UPDATE trades
	SET close_time = ?, close_price = ?, close_reason = ?, pnl = ?, pnl_pct = ?, win = ?
	WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		trade.CloseTime.UTC(), trade.ClosePrice, string(trade.CloseReason),
		trade.RealizedPnL, trade.RealizedPnLPct, trade.Win, trade.ID)
	if err != nil {
		return fmt.Errorf("%w: updating trade %d: %v", ports.ErrHistoryPersistence, trade.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected for trade %d: %v", ports.ErrHistoryPersistence, trade.ID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: trade %d not found for close", ports.ErrNotFound, trade.ID)
	}
	r.logger.Debug(ctx, "Trade closed in history", map[string]interface{}{"tradeID": trade.ID, "pnl": trade.RealizedPnL})
	return nil
}

// FindClosed retrieves the most recent closed trades, newest first.
func (r *Repository) FindClosed(ctx context.Context, limit int) ([]*domain.Trade, error) {
	const query = `
	SELECT id, position_id, venue, symbol, strategy, side, entry_time, entry_price,
	       quantity, cost, stop_loss, take_profit, order_id,
	       close_time, COALESCE(close_price, 0), COALESCE(close_reason, ''),
	       COALESCE(pnl, 0), COALESCE(pnl_pct, 0), COALESCE(win, 0)
	FROM trades
	WHERE close_time IS NOT NULL
	ORDER BY close_time DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query closed trades: %w", err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade during FindClosed: %w", err)
		}
		trades = append(trades, trade)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// TodaySpend sums the entry cost of trades opened in the current UTC day.
func (r *Repository) TodaySpend(ctx context.Context) (float64, error) {
	const query = `SELECT COALESCE(SUM(cost), 0) FROM trades WHERE date(entry_time) = date('now')`
	var spend float64
	if err := r.db.QueryRowContext(ctx, query).Scan(&spend); err != nil {
		return 0, fmt.Errorf("failed to sum today's spend: %w", err)
	}
	return spend, nil
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanTrade scans a row into a domain.Trade struct.
func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var side, closeReason string
	var closeTime sql.NullTime
	err := s.Scan(
		&t.ID, &t.PositionID, &t.Instrument.Venue, &t.Instrument.Symbol, &t.Strategy, &side,
		&t.EntryTime, &t.EntryPrice, &t.Quantity, &t.Cost, &t.StopLoss, &t.TakeProfit, &t.OrderID,
		&closeTime, &t.ClosePrice, &closeReason, &t.RealizedPnL, &t.RealizedPnLPct, &t.Win)
	if err != nil {
		return nil, err
	}
	if closeTime.Valid {
		t.CloseTime = closeTime.Time
	}
	t.Side = domain.Direction(side)
	t.CloseReason = domain.ExitReason(closeReason)
	return t, nil
}
