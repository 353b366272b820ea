// Package strategy contains the built-in signal sources. Sources
// evaluate candle history, keeping at most per-symbol session state;
// position sizing, risk checks and order placement belong to the
// lifecycle engine.
package strategy

import (
	"context"
	"fmt"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
	"tradePilot/internal/strategy/indicators"
)

// CrossoverConfig holds configuration for the EMA crossover strategy.
type CrossoverConfig struct {
	FastPeriod int // e.g. 9
	SlowPeriod int // e.g. 21
	RSIPeriod  int // e.g. 14

	// RSI neutral bands. Entries outside the band are skipped as
	// exhausted momentum. Exclusive at both edges.
	LongRSIMin  float64 // e.g. 40
	LongRSIMax  float64 // e.g. 65
	ShortRSIMin float64 // e.g. 35
	ShortRSIMax float64 // e.g. 60
}

// Crossover signals LONG when the fast EMA crosses above the slow EMA and
// SHORT on the mirror cross, filtered by an RSI neutral band. The emitted
// Threshold is the slow EMA value: if a fresh quote has already moved back
// across it the engine discards the signal as stale.
type Crossover struct {
	config CrossoverConfig
	fastMA *indicators.MovingAverage
	slowMA *indicators.MovingAverage
	rsi    *indicators.RSI
	logger ports.Logger
}

// NewCrossover creates the EMA crossover signal source.
func NewCrossover(config CrossoverConfig, logger ports.Logger) (*Crossover, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for strategy")
	}
	if config.FastPeriod <= 0 || config.SlowPeriod <= 0 || config.RSIPeriod <= 0 {
		return nil, fmt.Errorf("strategy periods must be positive")
	}
	if config.FastPeriod >= config.SlowPeriod {
		return nil, fmt.Errorf("fast period %d must be less than slow period %d", config.FastPeriod, config.SlowPeriod)
	}
	return &Crossover{
		config: config,
		fastMA: indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: config.FastPeriod},
			Type:            indicators.ExponentialMovingAverage,
		}),
		slowMA: indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: config.SlowPeriod},
			Type:            indicators.ExponentialMovingAverage,
		}),
		rsi: indicators.NewRSI(indicators.RSIConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: config.RSIPeriod},
			Overbought:      70,
			Oversold:        30,
		}),
		logger: logger,
	}, nil
}

func (s *Crossover) Name() string { return "ema_crossover" }

// MinKlines covers the slow EMA and RSI evaluated one bar back.
func (s *Crossover) MinKlines() int {
	n := s.config.SlowPeriod + 1
	if r := s.config.RSIPeriod + 2; r > n {
		n = r
	}
	return n
}

// Evaluate detects a cross between the previous and the latest candle.
func (s *Crossover) Evaluate(ctx context.Context, klines []*domain.Kline, livePrice float64) (*domain.Signal, error) {
	if len(klines) < s.MinKlines() {
		return nil, fmt.Errorf("%w: have %d klines, need %d", ports.ErrInsufficientHistory, len(klines), s.MinKlines())
	}

	prev := klines[:len(klines)-1]

	fastPrev, err := s.fastMA.Calculate(ctx, prev)
	if err != nil {
		return nil, err
	}
	slowPrev, err := s.slowMA.Calculate(ctx, prev)
	if err != nil {
		return nil, err
	}
	fastNow, err := s.fastMA.Calculate(ctx, klines)
	if err != nil {
		return nil, err
	}
	slowNow, err := s.slowMA.Calculate(ctx, klines)
	if err != nil {
		return nil, err
	}
	rsiNow, err := s.rsi.Calculate(ctx, klines)
	if err != nil {
		return nil, err
	}

	now := klines[len(klines)-1].CloseTime
	values := map[string]float64{
		"fast_ema": fastNow,
		"slow_ema": slowNow,
		"rsi":      rsiNow,
	}

	crossedUp := fastPrev <= slowPrev && fastNow > slowNow
	crossedDown := fastPrev >= slowPrev && fastNow < slowNow

	switch {
	case crossedUp && indicators.InBand(rsiNow, s.config.LongRSIMin, s.config.LongRSIMax):
		return &domain.Signal{
			Direction:   domain.Long,
			GeneratedAt: now,
			Threshold:   slowNow,
			Values:      values,
		}, nil
	case crossedDown && indicators.InBand(rsiNow, s.config.ShortRSIMin, s.config.ShortRSIMax):
		return &domain.Signal{
			Direction:   domain.Short,
			GeneratedAt: now,
			Threshold:   slowNow,
			Values:      values,
		}, nil
	case crossedUp || crossedDown:
		s.logger.Debug(ctx, "Cross rejected by RSI band", map[string]interface{}{
			"rsi":       rsiNow,
			"crossedUp": crossedUp,
		})
	}

	return domain.NoSignal(now), nil
}
