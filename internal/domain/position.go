package domain

import (
	"fmt"
	"time"
)

// Position is the central entity: one tracked position per instrument,
// created at entry approval and mutated only by the lifecycle engine.
// Closed positions stay in the ledger as history; they are never deleted.
type Position struct {
	ID         string     `json:"id"`
	Instrument Instrument `json:"instrument"`
	Strategy   string     `json:"strategy"`

	Side       Direction `json:"side"`
	Quantity   float64   `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	EntryCost  float64   `json:"entry_cost"` // quantity × entry price, in quote currency
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`

	EntryOrderID string `json:"entry_order_id,omitempty"`
	BracketID    string `json:"bracket_id,omitempty"`
	StopOrderID  string `json:"stop_order_id,omitempty"`
	TakeOrderID  string `json:"take_order_id,omitempty"`

	State    PositionState `json:"state"`
	OpenedAt time.Time     `json:"opened_at"`
	ClosedAt time.Time     `json:"closed_at,omitempty"`

	ExitPrice      float64    `json:"exit_price,omitempty"`
	ExitReason     ExitReason `json:"exit_reason,omitempty"`
	RealizedPnL    float64    `json:"realized_pnl,omitempty"`
	RealizedPnLPct float64    `json:"realized_pnl_pct,omitempty"`

	// HistoryRowID links to the trade history row so a restarted process
	// updates the existing row on close instead of inserting a duplicate.
	// Zero means no row has been written yet.
	HistoryRowID int64 `json:"history_row_id,omitempty"`

	// CurrentPrice is the last observed quote; informational only.
	CurrentPrice float64 `json:"current_price,omitempty"`
}

// TransitionTo advances the lifecycle state. Transitions are forward-only
// and must move exactly one rank; anything else is a programming error in
// the engine and is returned as an error rather than applied.
func (p *Position) TransitionTo(next PositionState) error {
	from, ok := stateRank[p.State]
	if !ok {
		return fmt.Errorf("position %s: unknown state %q", p.ID, p.State)
	}
	to, ok := stateRank[next]
	if !ok {
		return fmt.Errorf("position %s: unknown target state %q", p.ID, next)
	}
	if p.State.IsTerminal() || to != from+1 {
		return fmt.Errorf("position %s: illegal transition %s -> %s", p.ID, p.State, next)
	}
	p.State = next
	return nil
}

// Resumable reports whether a restarted process must re-attach this
// position to live monitoring.
func (p *Position) Resumable() bool {
	return p.State == StateOpen || p.State == StateExiting
}

// UnrealizedPnL computes the mark-to-market P&L from the last quote.
func (p *Position) UnrealizedPnL() float64 {
	if p.CurrentPrice == 0 {
		return 0
	}
	return (p.CurrentPrice - p.EntryPrice) * p.Quantity * p.Side.Sign()
}

// UnrealizedPnLPct returns the unrealized P&L as a percentage of entry cost.
func (p *Position) UnrealizedPnLPct() float64 {
	if p.EntryCost == 0 {
		return 0
	}
	return p.UnrealizedPnL() / p.EntryCost * 100
}

// ValidateBracket checks that stop-loss and take-profit straddle the entry
// price on the correct side for the position's direction
// (LONG: SL < entry < TP; SHORT: TP < entry < SL).
func (p *Position) ValidateBracket() error {
	switch p.Side {
	case Long:
		if p.StopLoss >= p.EntryPrice || p.TakeProfit <= p.EntryPrice {
			return fmt.Errorf("long bracket out of order: SL=%.8f entry=%.8f TP=%.8f", p.StopLoss, p.EntryPrice, p.TakeProfit)
		}
	case Short:
		if p.TakeProfit >= p.EntryPrice || p.StopLoss <= p.EntryPrice {
			return fmt.Errorf("short bracket out of order: TP=%.8f entry=%.8f SL=%.8f", p.TakeProfit, p.EntryPrice, p.StopLoss)
		}
	default:
		return fmt.Errorf("position %s has no direction", p.ID)
	}
	return nil
}

// SettleClose records the exit economics. The state transition itself is
// handled separately via TransitionTo.
func (p *Position) SettleClose(exitPrice float64, closedAt time.Time) {
	p.ExitPrice = exitPrice
	p.ClosedAt = closedAt
	p.RealizedPnL = (exitPrice - p.EntryPrice) * p.Quantity * p.Side.Sign()
	if p.EntryCost != 0 {
		p.RealizedPnLPct = p.RealizedPnL / p.EntryCost * 100
	}
}
