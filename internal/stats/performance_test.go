package stats

import (
	"math"
	"testing"
	"time"

	"tradePilot/internal/domain"
)

func closedTrade(entry time.Time, hold time.Duration, pnl float64, reason domain.ExitReason) *domain.Trade {
	return &domain.Trade{
		EntryTime:   entry,
		CloseTime:   entry.Add(hold),
		RealizedPnL: pnl,
		CloseReason: reason,
	}
}

func TestSummarize(t *testing.T) {
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	trades := []*domain.Trade{
		closedTrade(base, time.Hour, 40, "take_profit"),
		closedTrade(base.Add(2*time.Hour), 30*time.Minute, -10, "stop_loss"),
		closedTrade(base.Add(4*time.Hour), 90*time.Minute, -20, "stop_loss"),
		closedTrade(base.Add(6*time.Hour), time.Hour, 30, "venue_side_close"),
		// Still open, must be skipped.
		{EntryTime: base.Add(8 * time.Hour)},
	}

	s := Summarize(trades)

	if s.TotalTrades != 4 {
		t.Fatalf("Expected 4 closed trades, got %d", s.TotalTrades)
	}
	if s.WinningTrades != 2 || s.LosingTrades != 2 {
		t.Errorf("Expected 2 wins and 2 losses, got %d/%d", s.WinningTrades, s.LosingTrades)
	}
	if s.WinRate != 0.5 {
		t.Errorf("Expected win rate 0.5, got %f", s.WinRate)
	}
	if s.TotalPnL != 40 {
		t.Errorf("Expected total PnL 40, got %f", s.TotalPnL)
	}
	if s.AverageWin != 35 {
		t.Errorf("Expected average win 35, got %f", s.AverageWin)
	}
	if s.AverageLoss != -15 {
		t.Errorf("Expected average loss -15, got %f", s.AverageLoss)
	}
	if math.Abs(s.ProfitFactor-70.0/30.0) > 1e-9 {
		t.Errorf("Expected profit factor %f, got %f", 70.0/30.0, s.ProfitFactor)
	}
	if s.MaxConsecutiveLosses != 2 || s.MaxConsecutiveWins != 1 {
		t.Errorf("Expected streaks 1 win / 2 losses, got %d/%d", s.MaxConsecutiveWins, s.MaxConsecutiveLosses)
	}
	if s.AverageHoldDuration != time.Hour {
		t.Errorf("Expected average hold 1h, got %s", s.AverageHoldDuration)
	}
	if s.PnLByReason["stop_loss"] != -30 || s.CountByReason["stop_loss"] != 2 {
		t.Errorf("Unexpected stop_loss breakdown: %f / %d", s.PnLByReason["stop_loss"], s.CountByReason["stop_loss"])
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.TotalTrades != 0 || s.WinRate != 0 || s.AverageHoldDuration != 0 {
		t.Errorf("Expected a zero summary, got %+v", s)
	}
}
