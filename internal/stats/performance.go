// Package stats summarizes closed trade history for the operator Stats
// command. It is read-only over the history store and never feeds back
// into trading decisions.
package stats

import (
	"sort"
	"time"

	"tradePilot/internal/domain"
)

// Summary holds aggregate performance metrics over a set of closed trades.
type Summary struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64

	TotalPnL     float64
	AverageWin   float64
	AverageLoss  float64
	ProfitFactor float64

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageHoldDuration  time.Duration

	// PnLByReason breaks realized profit down by close reason
	// (stop_loss, take_profit, venue_side_close, ...).
	PnLByReason   map[string]float64
	CountByReason map[string]int
}

// Summarize computes a Summary from closed trades. Open trades (no close
// time) are skipped. The input order does not matter.
func Summarize(trades []*domain.Trade) *Summary {
	s := &Summary{
		PnLByReason:   make(map[string]float64),
		CountByReason: make(map[string]int),
	}

	closed := make([]*domain.Trade, 0, len(trades))
	for _, t := range trades {
		if t.Closed() {
			closed = append(closed, t)
		}
	}
	if len(closed) == 0 {
		return s
	}

	sort.Slice(closed, func(i, j int) bool {
		return closed[i].EntryTime.Before(closed[j].EntryTime)
	})

	var grossWin, grossLoss float64
	var holdTotal time.Duration
	var streakWins, streakLosses int

	for _, t := range closed {
		s.TotalTrades++
		holdTotal += t.HoldDuration()
		s.TotalPnL += t.RealizedPnL
		s.PnLByReason[string(t.CloseReason)] += t.RealizedPnL
		s.CountByReason[string(t.CloseReason)]++

		if t.RealizedPnL > 0 {
			s.WinningTrades++
			grossWin += t.RealizedPnL
			streakWins++
			streakLosses = 0
		} else {
			s.LosingTrades++
			grossLoss -= t.RealizedPnL
			streakLosses++
			streakWins = 0
		}
		if streakWins > s.MaxConsecutiveWins {
			s.MaxConsecutiveWins = streakWins
		}
		if streakLosses > s.MaxConsecutiveLosses {
			s.MaxConsecutiveLosses = streakLosses
		}
	}

	s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades)
	if s.WinningTrades > 0 {
		s.AverageWin = grossWin / float64(s.WinningTrades)
	}
	if s.LosingTrades > 0 {
		s.AverageLoss = -grossLoss / float64(s.LosingTrades)
	}
	if grossLoss > 0 {
		s.ProfitFactor = grossWin / grossLoss
	}
	s.AverageHoldDuration = holdTotal / time.Duration(s.TotalTrades)

	return s
}
