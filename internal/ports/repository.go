package ports

import (
	"context"

	"tradePilot/internal/domain"
)

// PositionLedger is the durable source of truth for positions across
// restarts. Writes must be atomic: a crash mid-write leaves either the
// previous or the new complete state on disk, never a partial one.
// A write failure here is fatal for the trading path.
type PositionLedger interface {
	// Save persists the current record for the position's instrument,
	// replacing any previous record under the same key.
	Save(ctx context.Context, pos *domain.Position) error
	// Load returns every persisted position keyed by instrument key.
	// Called once at startup.
	Load(ctx context.Context) (map[string]*domain.Position, error)
}

// TradeRepository is the append-only trade history store for analytics.
// It is opened non-critically: callers log and swallow every error so
// analytics can never halt trading.
type TradeRepository interface {
	// OpenTrade inserts the entry half of a trade row and returns its id.
	OpenTrade(ctx context.Context, trade *domain.Trade) (int64, error)
	// CloseTrade updates the row identified by trade.ID with exit data.
	CloseTrade(ctx context.Context, trade *domain.Trade) error
	// FindClosed returns the most recent closed trades, newest first.
	FindClosed(ctx context.Context, limit int) ([]*domain.Trade, error)
	// TodaySpend sums the entry cost of trades opened today (UTC),
	// used to reseed the risk budget after a restart.
	TodaySpend(ctx context.Context) (float64, error)
}
