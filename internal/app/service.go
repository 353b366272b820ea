// Package app contains the lifecycle engine: the component that turns
// strategy signals into tracked positions, reconciles protective orders
// against the venue, and keeps the position ledger authoritative across
// restarts.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
	"tradePilot/internal/risk"
	"tradePilot/internal/session"
)

// InstrumentConfig binds one tradable instrument to its venue, strategy
// and sizing parameters.
type InstrumentConfig struct {
	Instrument domain.Instrument
	Strategy   ports.SignalSource

	// Interval is the candle interval fed to the strategy, e.g. "1m".
	Interval string
	// Quantity is the fixed order size in base units.
	Quantity float64
	// StopLossPct / TakeProfitPct place the bracket relative to the fill
	// price when the signal carries no explicit stop.
	StopLossPct   float64
	TakeProfitPct float64

	// Schedule is nil for continuous venues. Session-bound instruments
	// only enter while the exchange is open and are force-closed inside
	// the closing window. PreMarketWindow warms the data cache shortly
	// before the open.
	Schedule        *session.Schedule
	ClosingWindow   time.Duration
	PreMarketWindow time.Duration

	// EventStart bounds entries to a lead window before a fixed event,
	// zero for continuous instruments.
	EventStart time.Time
}

// Config holds engine-level settings.
type Config struct {
	// TickInterval is the scheduler period.
	TickInterval time.Duration
	// KlineLimit is how many candles are fetched per evaluation.
	KlineLimit int
	// FlattenAttempts bounds the emergency-exit retry loop after a
	// bracket placement failure.
	FlattenAttempts int
}

// Engine drives every instrument through the position lifecycle:
// IDLE -> ENTERING -> OPEN | REJECTED, OPEN -> EXITING -> CLOSED.
// One sequential pass over all instruments runs per tick; the ledger is
// written on every state transition and a ledger failure stops the engine.
type Engine struct {
	cfg         Config
	logger      ports.Logger
	venues      map[string]ports.Venue
	ledger      ports.PositionLedger
	history     ports.TradeRepository
	gate        *risk.Gate
	instruments []InstrumentConfig

	now func() time.Time

	mu        sync.Mutex
	positions map[string]*domain.Position
	// longOnlySkipLogged suppresses repeat logs for SHORT signals on
	// long-only venues; one line per instrument per open window.
	longOnlySkipLogged map[string]bool
}

// New creates the lifecycle engine.
func New(
	cfg Config,
	logger ports.Logger,
	venues map[string]ports.Venue,
	ledger ports.PositionLedger,
	history ports.TradeRepository,
	gate *risk.Gate,
	instruments []InstrumentConfig,
) (*Engine, error) {
	if logger == nil || ledger == nil || history == nil || gate == nil {
		return nil, fmt.Errorf("missing required dependencies for engine")
	}
	if len(venues) == 0 {
		return nil, fmt.Errorf("at least one venue is required")
	}
	if len(instruments) == 0 {
		return nil, fmt.Errorf("at least one instrument is required")
	}
	for _, inst := range instruments {
		if _, ok := venues[inst.Instrument.Venue]; !ok {
			return nil, fmt.Errorf("instrument %s references unknown venue %q", inst.Instrument.Key(), inst.Instrument.Venue)
		}
		if inst.Strategy == nil {
			return nil, fmt.Errorf("instrument %s has no strategy", inst.Instrument.Key())
		}
		if inst.Quantity <= 0 {
			return nil, fmt.Errorf("instrument %s quantity must be positive", inst.Instrument.Key())
		}
		if inst.StopLossPct <= 0 || inst.StopLossPct >= 1 {
			return nil, fmt.Errorf("instrument %s stop-loss pct must be between 0 and 1", inst.Instrument.Key())
		}
		if inst.TakeProfitPct <= 0 {
			return nil, fmt.Errorf("instrument %s take-profit pct must be positive", inst.Instrument.Key())
		}
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 15 * time.Second
	}
	if cfg.KlineLimit <= 0 {
		cfg.KlineLimit = 100
	}
	if cfg.FlattenAttempts <= 0 {
		cfg.FlattenAttempts = 5
	}

	return &Engine{
		cfg:                cfg,
		logger:             logger,
		venues:             venues,
		ledger:             ledger,
		history:            history,
		gate:               gate,
		instruments:        instruments,
		now:                time.Now,
		positions:          make(map[string]*domain.Position),
		longOnlySkipLogged: make(map[string]bool),
	}, nil
}

// Start connects the venues, restores state from the ledger, then runs
// the tick loop until the context is cancelled or a fatal persistence
// error occurs.
func (e *Engine) Start(ctx context.Context) error {
	e.logger.Info(ctx, "Starting lifecycle engine")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			e.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	for name, venue := range e.venues {
		if err := venue.Connect(ctx); err != nil {
			e.logger.Error(ctx, err, "Venue connection failed", map[string]interface{}{"venue": name})
			return fmt.Errorf("connecting venue %s: %w", name, err)
		}
	}

	if err := e.restore(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info(ctx, "Lifecycle engine stopped")
			return nil
		case <-ticker.C:
			if err := e.tick(ctx); err != nil {
				e.logger.Error(ctx, err, "Fatal error during tick, stopping engine")
				return err
			}
		}
	}
}

// restore loads the ledger, re-attaches resumable positions and reseeds
// the risk gate's daily spend from the trade history.
func (e *Engine) restore(ctx context.Context) error {
	persisted, err := e.ledger.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading position ledger: %w", err)
	}

	e.mu.Lock()
	for key, pos := range persisted {
		if !pos.Resumable() {
			continue
		}
		e.positions[key] = pos
		e.logger.Info(ctx, "Resumed position from ledger", map[string]interface{}{
			"instrument": key,
			"positionID": pos.ID,
			"state":      string(pos.State),
			"entryPrice": pos.EntryPrice,
		})
	}
	e.mu.Unlock()

	// History is non-critical: a failed spend query costs budget accuracy,
	// not position safety.
	spend, err := e.history.TodaySpend(ctx)
	if err != nil {
		e.logger.Error(ctx, err, "Failed to reseed today's spend from trade history")
	} else {
		e.gate.SeedSpend(e.now(), spend)
		e.logger.Info(ctx, "Risk budget reseeded", map[string]interface{}{"todaySpend": spend})
	}
	return nil
}

// tick runs one sequential pass over all instruments. Only ledger
// persistence failures propagate; everything else is logged and retried
// on the next tick.
func (e *Engine) tick(ctx context.Context) error {
	for i := range e.instruments {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := e.processInstrument(ctx, &e.instruments[i]); err != nil {
			return err
		}
	}
	return nil
}

// activePosition returns the tracked non-terminal position for a key.
func (e *Engine) activePosition(key string) *domain.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos := e.positions[key]
	if pos == nil || pos.State.IsTerminal() {
		return nil
	}
	return pos
}

func (e *Engine) setPosition(pos *domain.Position) {
	e.mu.Lock()
	e.positions[pos.Instrument.Key()] = pos
	e.mu.Unlock()
}
