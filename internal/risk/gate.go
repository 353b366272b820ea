package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
)

// Config holds the sizing and timing limits enforced by the Gate.
type Config struct {
	// DailyLossFraction caps the total entry cost per UTC day as a
	// fraction of current balance.
	DailyLossFraction float64
	// ReserveFraction is the fraction of balance never deployed.
	ReserveFraction float64
	// Cooldown pauses new entries on an instrument after a losing close
	// there. Zero disables it.
	Cooldown time.Duration
	// MaxDailyLoss halts all trading once the day's realized loss reaches
	// this amount in quote currency. Zero disables the automatic halt.
	MaxDailyLoss float64
	// MinLead/MaxLead bound how far before an instrument's event start an
	// entry may happen. Both zero disables the window; it only applies to
	// requests that carry an event start time.
	MinLead time.Duration
	MaxLead time.Duration
}

// DenyReason identifies which check rejected an entry.
type DenyReason string

const (
	DenyNone       DenyReason = ""
	DenyHalted     DenyReason = "halted"
	DenyCooldown   DenyReason = "cooldown"
	DenyDailyCap   DenyReason = "daily_cap"
	DenyReserve    DenyReason = "reserve"
	DenyLeadWindow DenyReason = "lead_window"
)

// Decision is the outcome of an entry check.
type Decision struct {
	Approved bool
	Reason   DenyReason
	Detail   string
}

// EntryRequest describes a proposed entry.
type EntryRequest struct {
	Instrument domain.Instrument
	// Cost is the full entry cost in quote currency (price * quantity).
	Cost float64
	// Balance is the current account balance in quote currency.
	Balance float64
	Now     time.Time
	// EventStart is the instrument's event start time, zero for
	// continuous instruments.
	EventStart time.Time
}

// Gate is the single pre-entry risk check. Every entry passes through
// ApproveEntry before any order is placed; checks run in a fixed order
// (halt, cooldown, daily cap, reserve, lead window) so a denial always
// reports the first limit hit. Counters roll over at UTC midnight.
type Gate struct {
	mu     sync.Mutex
	cfg    Config
	logger ports.Logger

	halted        bool
	cooldownUntil map[string]time.Time // instrument key -> cooldown expiry
	day           time.Time            // UTC midnight of the current accounting day
	todaySpend    float64
	todayPnL      float64
}

// NewGate creates a risk gate with the given limits.
func NewGate(cfg Config, logger ports.Logger) *Gate {
	return &Gate{cfg: cfg, logger: logger, cooldownUntil: make(map[string]time.Time)}
}

// ApproveEntry decides whether the proposed entry may proceed.
func (g *Gate) ApproveEntry(ctx context.Context, req EntryRequest) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover(req.Now)

	d := g.check(req)
	if !d.Approved {
		g.logger.Debug(ctx, "Entry denied by risk gate", map[string]interface{}{
			"instrument": req.Instrument.Key(),
			"cost":       req.Cost,
			"reason":     string(d.Reason),
			"detail":     d.Detail,
		})
	}
	return d
}

// check runs the ordered limit checks. Callers must hold g.mu.
func (g *Gate) check(req EntryRequest) Decision {
	if g.halted {
		return deny(DenyHalted, "trading halted by operator")
	}

	if until, ok := g.cooldownUntil[req.Instrument.Key()]; ok && req.Now.Before(until) {
		return deny(DenyCooldown, fmt.Sprintf("cooldown on %s active until %s", req.Instrument.Key(), until.UTC().Format(time.RFC3339)))
	}

	dailyBudget := req.Balance * g.cfg.DailyLossFraction
	if g.todaySpend+req.Cost > dailyBudget {
		return deny(DenyDailyCap, fmt.Sprintf("spend %.2f + cost %.2f exceeds daily budget %.2f", g.todaySpend, req.Cost, dailyBudget))
	}

	deployable := req.Balance - req.Balance*g.cfg.ReserveFraction - g.todaySpend
	if req.Cost > deployable {
		return deny(DenyReserve, fmt.Sprintf("cost %.2f exceeds deployable %.2f", req.Cost, deployable))
	}

	if !req.EventStart.IsZero() && (g.cfg.MinLead > 0 || g.cfg.MaxLead > 0) {
		lead := req.EventStart.Sub(req.Now)
		if lead < g.cfg.MinLead || lead > g.cfg.MaxLead {
			return deny(DenyLeadWindow, fmt.Sprintf("lead %s outside [%s, %s]", lead, g.cfg.MinLead, g.cfg.MaxLead))
		}
	}

	return Decision{Approved: true}
}

// RecordSpend adds an executed entry's cost to today's counter.
func (g *Gate) RecordSpend(now time.Time, cost float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover(now)
	g.todaySpend += cost
}

// SeedSpend replaces today's spend counter, used once at startup to
// restore the budget from the trade history.
func (g *Gate) SeedSpend(now time.Time, spend float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover(now)
	g.todaySpend = spend
}

// RecordPnL records a realized close. A losing close starts the
// instrument's cooldown; breaching the daily loss limit halts all trading.
func (g *Gate) RecordPnL(ctx context.Context, now time.Time, instrument domain.Instrument, pnl float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover(now)
	g.todayPnL += pnl
	if pnl < 0 && g.cfg.Cooldown > 0 {
		g.cooldownUntil[instrument.Key()] = now.Add(g.cfg.Cooldown)
	}
	if g.cfg.MaxDailyLoss > 0 && g.todayPnL <= -g.cfg.MaxDailyLoss && !g.halted {
		g.halted = true
		g.logger.Warn(ctx, "Daily loss limit breached, trading halted", map[string]interface{}{
			"todayPnL":     g.todayPnL,
			"maxDailyLoss": g.cfg.MaxDailyLoss,
		})
	}
}

// Halt stops all new entries until Resume is called. Open positions are
// unaffected.
func (g *Gate) Halt() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.halted = true
}

// Resume lifts a halt.
func (g *Gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.halted = false
}

// Halted reports whether entries are currently halted.
func (g *Gate) Halted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.halted
}

// TodaySpend returns the entry cost accumulated in the current UTC day.
func (g *Gate) TodaySpend(now time.Time) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover(now)
	return g.todaySpend
}

// TodayPnL returns realized profit and loss for the current UTC day.
func (g *Gate) TodayPnL(now time.Time) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover(now)
	return g.todayPnL
}

// rollover resets the daily counters when the UTC day has changed.
// Callers must hold g.mu.
func (g *Gate) rollover(now time.Time) {
	d := now.UTC().Truncate(24 * time.Hour)
	if d.After(g.day) {
		g.day = d
		g.todaySpend = 0
		g.todayPnL = 0
	}
}

func deny(reason DenyReason, detail string) Decision {
	return Decision{Approved: false, Reason: reason, Detail: detail}
}
