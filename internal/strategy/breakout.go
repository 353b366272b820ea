package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
	"tradePilot/internal/session"
)

// BreakoutConfig holds configuration for the range breakout strategy.
type BreakoutConfig struct {
	// Lookback is the number of candles forming the observation range,
	// excluding the candle being evaluated.
	Lookback int // e.g. 20
	// VolumeMultiplier is the minimum ratio of the breakout candle's
	// volume to the range's average volume.
	VolumeMultiplier float64 // e.g. 1.5
	// StopBuffer widens the opposite-boundary stop by this fraction so a
	// retest of the boundary does not immediately stop the position out.
	StopBuffer float64 // e.g. 0.001
	// Schedule, when set, delays range establishment on session-bound
	// instruments until OpeningRange has elapsed after the open.
	Schedule *session.Schedule
	// OpeningRange is the collection period right after the open during
	// which no range is established and no signal fires. Required when
	// Schedule is set.
	OpeningRange time.Duration
}

// symbolRange is an established observation range. It stays frozen for
// the rest of its session day so every later candle is measured against
// the same boundaries; a partial break cannot ratchet them outward.
type symbolRange struct {
	day       string
	high      float64
	low       float64
	avgVolume float64
}

// Breakout signals entry when the latest candle closes beyond the
// established range on elevated volume. The range is established once
// per symbol per session day and then held fixed. The broken boundary
// is the stale threshold; the opposite boundary, widened by StopBuffer,
// is offered as the stop via Signal.StopHint.
type Breakout struct {
	config BreakoutConfig
	logger ports.Logger

	mu     sync.Mutex
	ranges map[string]symbolRange
}

// NewBreakout creates the range breakout signal source.
func NewBreakout(config BreakoutConfig, logger ports.Logger) (*Breakout, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for strategy")
	}
	if config.Lookback <= 1 {
		return nil, fmt.Errorf("lookback must be at least 2, got %d", config.Lookback)
	}
	if config.VolumeMultiplier <= 0 {
		return nil, fmt.Errorf("volume multiplier must be positive")
	}
	if config.StopBuffer < 0 {
		return nil, fmt.Errorf("stop buffer must not be negative")
	}
	if config.Schedule != nil && config.OpeningRange <= 0 {
		return nil, fmt.Errorf("opening range window must be positive for session-bound instruments")
	}
	return &Breakout{
		config: config,
		logger: logger,
		ranges: make(map[string]symbolRange),
	}, nil
}

func (s *Breakout) Name() string { return "range_breakout" }

func (s *Breakout) MinKlines() int { return s.config.Lookback + 1 }

// Evaluate compares the latest candle against the session day's frozen
// observation range, establishing the range first if the day has none.
func (s *Breakout) Evaluate(ctx context.Context, klines []*domain.Kline, livePrice float64) (*domain.Signal, error) {
	if len(klines) < s.MinKlines() {
		return nil, fmt.Errorf("%w: have %d klines, need %d", ports.ErrInsufficientHistory, len(klines), s.MinKlines())
	}

	cur := klines[len(klines)-1]
	now := cur.CloseTime

	if s.config.Schedule != nil && s.config.Schedule.IsOpeningRangeWindow(now, s.config.OpeningRange) {
		// The observation range is still forming.
		return domain.NoSignal(now), nil
	}

	r := s.rangeFor(ctx, cur.Symbol, s.sessionDay(now), klines)

	values := map[string]float64{
		"range_high": r.high,
		"range_low":  r.low,
		"avg_volume": r.avgVolume,
		"volume":     cur.Volume,
	}

	elevated := cur.Volume >= s.config.VolumeMultiplier*r.avgVolume

	switch {
	case cur.Close > r.high && elevated:
		return &domain.Signal{
			Direction:   domain.Long,
			GeneratedAt: now,
			Threshold:   r.high,
			StopHint:    r.low * (1 - s.config.StopBuffer),
			Values:      values,
		}, nil
	case cur.Close < r.low && elevated:
		return &domain.Signal{
			Direction:   domain.Short,
			GeneratedAt: now,
			Threshold:   r.low,
			StopHint:    r.high * (1 + s.config.StopBuffer),
			Values:      values,
		}, nil
	case cur.Close > r.high || cur.Close < r.low:
		s.logger.Debug(ctx, "Breakout rejected on volume", map[string]interface{}{
			"volume":     cur.Volume,
			"avg_volume": r.avgVolume,
		})
	}

	return domain.NoSignal(now), nil
}

// rangeFor returns the frozen range for symbol on day. When the symbol
// has no range yet, or the session day rolled over, a new range is
// established from the Lookback candles preceding the current one.
func (s *Breakout) rangeFor(ctx context.Context, symbol, day string, klines []*domain.Kline) symbolRange {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.ranges[symbol]; ok && r.day == day {
		return r
	}

	window := klines[len(klines)-1-s.config.Lookback : len(klines)-1]
	r := symbolRange{day: day, high: window[0].High, low: window[0].Low}
	var volSum float64
	for _, k := range window {
		if k.High > r.high {
			r.high = k.High
		}
		if k.Low < r.low {
			r.low = k.Low
		}
		volSum += k.Volume
	}
	r.avgVolume = volSum / float64(len(window))
	s.ranges[symbol] = r

	s.logger.Info(ctx, "Observation range established", map[string]interface{}{
		"symbol":     symbol,
		"day":        day,
		"range_high": r.high,
		"range_low":  r.low,
	})
	return r
}

// sessionDay keys ranges by calendar day, in exchange local time for
// session-bound instruments and UTC otherwise.
func (s *Breakout) sessionDay(t time.Time) string {
	if s.config.Schedule != nil {
		return t.In(s.config.Schedule.Location).Format("2006-01-02")
	}
	return t.UTC().Format("2006-01-02")
}
