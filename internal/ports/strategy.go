package ports

import (
	"context"

	"tradePilot/internal/domain"
)

// SignalSource maps candle history (plus an optional fresh quote) to a
// directional signal. Implementations may keep per-symbol session state,
// such as an established breakout range.
type SignalSource interface {
	// Name returns the strategy tag stored on positions it opens.
	Name() string

	// MinKlines returns the minimum candle count Evaluate needs.
	MinKlines() int

	// Evaluate inspects the history (oldest first) and returns a signal.
	// livePrice may be zero when no fresh quote is available. Returns
	// ErrInsufficientHistory when fewer than MinKlines candles are given;
	// that is a "no decision this tick" result, not a failure.
	Evaluate(ctx context.Context, klines []*domain.Kline, livePrice float64) (*domain.Signal, error)
}
