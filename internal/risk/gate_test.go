package risk

import (
	"context"
	"testing"
	"time"

	"tradePilot/internal/domain"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}
func (m *mockLogger) Fatal(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

var testInstrument = domain.Instrument{Venue: "binance", Symbol: "ETHUSDT"}

func newTestGate(cfg Config) *Gate {
	return NewGate(cfg, &mockLogger{})
}

func TestGateBudgetBoundaries(t *testing.T) {
	// balance 1000, reserve 20%, daily cap 10%, 50 already spent today:
	// a 50 entry is the largest approvable, 51 must be denied.
	gate := newTestGate(Config{DailyLossFraction: 0.1, ReserveFraction: 0.2})
	now := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	gate.SeedSpend(now, 50)

	req := EntryRequest{Instrument: testInstrument, Cost: 50, Balance: 1000, Now: now}
	d := gate.ApproveEntry(context.Background(), req)
	if !d.Approved {
		t.Errorf("Expected 50 to be approved, denied with %s (%s)", d.Reason, d.Detail)
	}

	req.Cost = 51
	d = gate.ApproveEntry(context.Background(), req)
	if d.Approved {
		t.Error("Expected 51 to be denied by the daily cap")
	}
	if d.Reason != DenyDailyCap {
		t.Errorf("Expected reason %s, got %s", DenyDailyCap, d.Reason)
	}
}

func TestGateReserve(t *testing.T) {
	// Daily cap generous, reserve is the binding limit.
	gate := newTestGate(Config{DailyLossFraction: 0.9, ReserveFraction: 0.2})
	now := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	gate.SeedSpend(now, 700)

	req := EntryRequest{Instrument: testInstrument, Cost: 150, Balance: 1000, Now: now}
	d := gate.ApproveEntry(context.Background(), req)
	if d.Approved {
		t.Error("Expected entry above deployable to be denied")
	}
	if d.Reason != DenyReserve {
		t.Errorf("Expected reason %s, got %s", DenyReserve, d.Reason)
	}

	req.Cost = 100
	d = gate.ApproveEntry(context.Background(), req)
	if !d.Approved {
		t.Errorf("Expected entry within deployable to be approved, got %s", d.Reason)
	}
}

func TestGateHaltPrecedence(t *testing.T) {
	// A halt must win even when every other check would also deny.
	gate := newTestGate(Config{DailyLossFraction: 0.1, ReserveFraction: 0.2, Cooldown: time.Hour})
	now := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	gate.RecordPnL(context.Background(), now, testInstrument, -10) // starts cooldown
	gate.Halt()

	d := gate.ApproveEntry(context.Background(), EntryRequest{
		Instrument: testInstrument, Cost: 5000, Balance: 1000, Now: now.Add(time.Minute),
	})
	if d.Reason != DenyHalted {
		t.Errorf("Expected reason %s, got %s", DenyHalted, d.Reason)
	}

	gate.Resume()
	d = gate.ApproveEntry(context.Background(), EntryRequest{
		Instrument: testInstrument, Cost: 10, Balance: 1000, Now: now.Add(time.Minute),
	})
	if d.Reason != DenyCooldown {
		t.Errorf("Expected reason %s after resume, got %s", DenyCooldown, d.Reason)
	}
}

func TestGateCooldown(t *testing.T) {
	gate := newTestGate(Config{DailyLossFraction: 0.5, ReserveFraction: 0.1, Cooldown: 30 * time.Minute})
	now := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

	// Winning close does not start a cooldown.
	gate.RecordPnL(context.Background(), now, testInstrument, 25)
	d := gate.ApproveEntry(context.Background(), EntryRequest{Instrument: testInstrument, Cost: 10, Balance: 1000, Now: now})
	if !d.Approved {
		t.Errorf("Expected approval after a winning close, got %s", d.Reason)
	}

	// Losing close blocks entries on that instrument until the cooldown
	// elapses.
	gate.RecordPnL(context.Background(), now, testInstrument, -25)
	d = gate.ApproveEntry(context.Background(), EntryRequest{Instrument: testInstrument, Cost: 10, Balance: 1000, Now: now.Add(29 * time.Minute)})
	if d.Reason != DenyCooldown {
		t.Errorf("Expected reason %s during cooldown, got %s", DenyCooldown, d.Reason)
	}

	// Other instruments are unaffected.
	other := domain.Instrument{Venue: "binance", Symbol: "BTCUSDT"}
	d = gate.ApproveEntry(context.Background(), EntryRequest{Instrument: other, Cost: 10, Balance: 1000, Now: now.Add(29 * time.Minute)})
	if !d.Approved {
		t.Errorf("Expected other instrument to be approved during cooldown, got %s", d.Reason)
	}

	d = gate.ApproveEntry(context.Background(), EntryRequest{Instrument: testInstrument, Cost: 10, Balance: 1000, Now: now.Add(31 * time.Minute)})
	if !d.Approved {
		t.Errorf("Expected approval after cooldown elapsed, got %s", d.Reason)
	}
}

func TestGateDailyLossHalt(t *testing.T) {
	gate := newTestGate(Config{DailyLossFraction: 0.5, ReserveFraction: 0.1, MaxDailyLoss: 100})
	now := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

	gate.RecordPnL(context.Background(), now, testInstrument, -60)
	if gate.Halted() {
		t.Fatal("Loss below the limit must not halt trading")
	}

	gate.RecordPnL(context.Background(), now, testInstrument, -40)
	if !gate.Halted() {
		t.Fatal("Expected automatic halt once the daily loss limit is reached")
	}
	d := gate.ApproveEntry(context.Background(), EntryRequest{Instrument: testInstrument, Cost: 10, Balance: 1000, Now: now})
	if d.Reason != DenyHalted {
		t.Errorf("Expected reason %s after automatic halt, got %s", DenyHalted, d.Reason)
	}

	// The halt survives the UTC rollover until an operator resumes.
	next := time.Date(2025, 3, 11, 0, 5, 0, 0, time.UTC)
	d = gate.ApproveEntry(context.Background(), EntryRequest{Instrument: testInstrument, Cost: 10, Balance: 1000, Now: next})
	if d.Reason != DenyHalted {
		t.Errorf("Expected halt to persist across rollover, got %s", d.Reason)
	}
}

func TestGateUTCDayRollover(t *testing.T) {
	gate := newTestGate(Config{DailyLossFraction: 0.1, ReserveFraction: 0.2})
	now := time.Date(2025, 3, 10, 23, 50, 0, 0, time.UTC)
	gate.RecordSpend(now, 100) // exhausts the 100 budget

	d := gate.ApproveEntry(context.Background(), EntryRequest{Instrument: testInstrument, Cost: 10, Balance: 1000, Now: now})
	if d.Reason != DenyDailyCap {
		t.Errorf("Expected reason %s before midnight, got %s", DenyDailyCap, d.Reason)
	}

	// Counters reset at UTC midnight.
	next := time.Date(2025, 3, 11, 0, 5, 0, 0, time.UTC)
	d = gate.ApproveEntry(context.Background(), EntryRequest{Instrument: testInstrument, Cost: 10, Balance: 1000, Now: next})
	if !d.Approved {
		t.Errorf("Expected approval after rollover, got %s (%s)", d.Reason, d.Detail)
	}
	if got := gate.TodaySpend(next); got != 0 {
		t.Errorf("Expected spend 0 after rollover, got %f", got)
	}
}

func TestGateLeadWindow(t *testing.T) {
	gate := newTestGate(Config{
		DailyLossFraction: 0.5,
		ReserveFraction:   0.1,
		MinLead:           10 * time.Minute,
		MaxLead:           2 * time.Hour,
	})
	now := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	base := EntryRequest{Instrument: testInstrument, Cost: 10, Balance: 1000, Now: now}

	cases := []struct {
		name     string
		start    time.Time
		approved bool
	}{
		{"no event start skips the window", time.Time{}, true},
		{"too close to start", now.Add(5 * time.Minute), false},
		{"inside window", now.Add(time.Hour), true},
		{"too far from start", now.Add(3 * time.Hour), false},
		{"event already started", now.Add(-time.Minute), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			req.EventStart = tc.start
			d := gate.ApproveEntry(context.Background(), req)
			if d.Approved != tc.approved {
				t.Errorf("Expected approved=%v, got %v (%s)", tc.approved, d.Approved, d.Detail)
			}
			if !tc.approved && d.Reason != DenyLeadWindow {
				t.Errorf("Expected reason %s, got %s", DenyLeadWindow, d.Reason)
			}
		})
	}
}
