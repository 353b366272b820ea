package domain

import "time"

// Signal is the output of one strategy evaluation. Signals are produced
// fresh each tick and never persisted.
type Signal struct {
	Direction   Direction
	GeneratedAt time.Time

	// Threshold is the price level the signal was triggered against
	// (e.g. the slow moving average or a breakout boundary). The engine
	// re-checks a fresh quote against it to discard stale signals
	// computed from delayed data. Zero means no re-check is possible.
	Threshold float64

	// StopHint is a strategy-provided stop-loss level (e.g. the opposite
	// boundary of a breakout range). Zero means the engine falls back to
	// the percentage stop from configuration.
	StopHint float64

	// Values holds the indicator readings behind the decision, for
	// logging and notifications.
	Values map[string]float64
}

// NoSignal is the canonical "nothing to do this tick" result.
func NoSignal(now time.Time) *Signal {
	return &Signal{Direction: None, GeneratedAt: now}
}
