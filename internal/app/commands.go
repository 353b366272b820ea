package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tradePilot/internal/domain"
	"tradePilot/internal/stats"
)

// PositionStatus is a read-only snapshot of one tracked position, built
// for operator display.
type PositionStatus struct {
	Instrument       string
	PositionID       string
	Strategy         string
	State            string
	Side             string
	Quantity         float64
	EntryPrice       float64
	CurrentPrice     float64
	StopLoss         float64
	TakeProfit       float64
	UnrealizedPnL    float64
	UnrealizedPnLPct float64
	OpenedAt         time.Time
}

// RiskStatus summarizes the risk gate's current counters.
type RiskStatus struct {
	Halted     bool
	TodaySpend float64
	TodayPnL   float64
}

// Status returns a snapshot of every active position, sorted by
// instrument key, plus the risk gate state.
func (e *Engine) Status() ([]PositionStatus, RiskStatus) {
	e.mu.Lock()
	snapshots := make([]PositionStatus, 0, len(e.positions))
	for _, pos := range e.positions {
		if pos.State.IsTerminal() {
			continue
		}
		snapshots = append(snapshots, PositionStatus{
			Instrument:       pos.Instrument.Key(),
			PositionID:       pos.ID,
			Strategy:         pos.Strategy,
			State:            string(pos.State),
			Side:             string(pos.Side),
			Quantity:         pos.Quantity,
			EntryPrice:       pos.EntryPrice,
			CurrentPrice:     pos.CurrentPrice,
			StopLoss:         pos.StopLoss,
			TakeProfit:       pos.TakeProfit,
			UnrealizedPnL:    pos.UnrealizedPnL(),
			UnrealizedPnLPct: pos.UnrealizedPnLPct(),
			OpenedAt:         pos.OpenedAt,
		})
	}
	e.mu.Unlock()

	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].Instrument < snapshots[j].Instrument })

	now := e.now()
	return snapshots, RiskStatus{
		Halted:     e.gate.Halted(),
		TodaySpend: e.gate.TodaySpend(now),
		TodayPnL:   e.gate.TodayPnL(now),
	}
}

// Stats summarizes the most recent closed trades from the history store.
func (e *Engine) Stats(ctx context.Context, limit int) (*stats.Summary, error) {
	trades, err := e.history.FindClosed(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("loading closed trades: %w", err)
	}
	return stats.Summarize(trades), nil
}

// Halt stops all new entries. Open positions keep being monitored and
// their protective brackets stay in place.
func (e *Engine) Halt(ctx context.Context) {
	e.gate.Halt()
	e.logger.Info(ctx, "Trading halted by operator")
}

// Resume lifts an operator halt.
func (e *Engine) Resume(ctx context.Context) {
	e.gate.Resume()
	e.logger.Info(ctx, "Trading resumed by operator")
}

// CloseInstrument flattens the active position on an instrument at market
// with reason "manual". Idempotent: no active position, or a close already
// in flight, is a no-op.
func (e *Engine) CloseInstrument(ctx context.Context, instrumentKey string) error {
	inst := e.instrumentByKey(instrumentKey)
	if inst == nil {
		return fmt.Errorf("unknown instrument %q", instrumentKey)
	}

	pos := e.activePosition(instrumentKey)
	if pos == nil {
		e.logger.Info(ctx, "No active position to close", map[string]interface{}{"instrument": instrumentKey})
		return nil
	}
	if pos.State == domain.StateExiting {
		// The monitor loop retries the exit on every tick.
		e.logger.Info(ctx, "Close already in progress", map[string]interface{}{
			"instrument": instrumentKey,
			"position":   pos.ID,
		})
		return nil
	}
	if pos.State != domain.StateOpen {
		e.logger.Info(ctx, "Position is mid-entry, not closable yet", map[string]interface{}{
			"instrument": instrumentKey,
			"state":      string(pos.State),
		})
		return nil
	}

	venue := e.venues[inst.Instrument.Venue]
	return e.closeAtMarket(ctx, inst, venue, pos, domain.ExitManual)
}

func (e *Engine) instrumentByKey(key string) *InstrumentConfig {
	for i := range e.instruments {
		if e.instruments[i].Instrument.Key() == key {
			return &e.instruments[i]
		}
	}
	return nil
}
