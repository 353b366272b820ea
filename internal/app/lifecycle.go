package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
	"tradePilot/internal/risk"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
)

// processInstrument advances one instrument by a single step: monitor the
// tracked position if one exists, otherwise look for a new entry.
func (e *Engine) processInstrument(ctx context.Context, inst *InstrumentConfig) error {
	venue := e.venues[inst.Instrument.Venue]
	if pos := e.activePosition(inst.Instrument.Key()); pos != nil {
		return e.monitorPosition(ctx, inst, venue, pos)
	}
	return e.evaluateEntry(ctx, inst, venue)
}

// monitorPosition reconciles an OPEN or EXITING position against the venue.
// Exit detection relies on the bracket's order records, never on the last
// observed price.
func (e *Engine) monitorPosition(ctx context.Context, inst *InstrumentConfig, venue ports.Venue, pos *domain.Position) error {
	op := "monitorPosition"
	symbol := inst.Instrument.Symbol
	now := e.now()

	// A position stuck in EXITING means a previous close attempt did not
	// finish (crash or venue error). Re-drive the market exit.
	if pos.State == domain.StateExiting {
		reason := pos.ExitReason
		if reason == "" {
			reason = domain.ExitUnknown
		}
		return e.closeAtMarket(ctx, inst, venue, pos, reason)
	}

	if quote, err := venue.GetQuote(ctx, symbol); err == nil {
		pos.CurrentPrice = quote.Price
	}

	if inst.Schedule != nil && inst.Schedule.IsClosingWindow(now, inst.ClosingWindow) {
		e.logger.Info(ctx, "Session closing, flattening position", map[string]interface{}{
			"op":         op,
			"instrument": inst.Instrument.Key(),
			"positionID": pos.ID,
			"exchange":   inst.Schedule.Name,
		})
		return e.closeAtMarket(ctx, inst, venue, pos, domain.ExitSessionClose)
	}

	bracket := &ports.BracketOrder{ID: pos.BracketID, StopOrderID: pos.StopOrderID, TakeOrderID: pos.TakeOrderID}
	res, err := venue.GetBracketResult(ctx, symbol, bracket)
	if err != nil {
		e.logger.Warn(ctx, "Bracket query failed, will retry next tick", map[string]interface{}{
			"op":         op,
			"instrument": inst.Instrument.Key(),
			"error":      err.Error(),
		})
		return nil
	}

	switch res.Status {
	case ports.BracketFilledStop:
		price := res.FillPrice
		if price == 0 {
			price = pos.StopLoss
		}
		return e.settleBracketFill(ctx, inst, pos, domain.ExitStopLoss, price, res.FillTime)

	case ports.BracketFilledTake:
		price := res.FillPrice
		if price == 0 {
			price = pos.TakeProfit
		}
		return e.settleBracketFill(ctx, inst, pos, domain.ExitTakeProfit, price, res.FillTime)

	case ports.BracketFilledUnknown:
		// Both legs report filled; which exit happened first cannot be
		// determined from the records. Settle at whatever price the venue
		// reported and flag the close for operator review.
		price := res.FillPrice
		if price == 0 {
			price = pos.CurrentPrice
		}
		e.logger.Warn(ctx, "Both bracket legs report filled, settling with unknown reason", map[string]interface{}{
			"op":         op,
			"instrument": inst.Instrument.Key(),
			"positionID": pos.ID,
		})
		return e.settleBracketFill(ctx, inst, pos, domain.ExitUnknown, price, res.FillTime)

	case ports.BracketCancelled, ports.BracketNotFound:
		return e.reconcileMissingBracket(ctx, inst, venue, pos)

	case ports.BracketPending:
		return e.checkVenueSideClose(ctx, inst, venue, pos, bracket)
	}
	return nil
}

// checkVenueSideClose detects positions the venue closed out-of-band while
// the bracket still rests. The venue reporting no position is a normal
// close path, not an error.
func (e *Engine) checkVenueSideClose(ctx context.Context, inst *InstrumentConfig, venue ports.Venue, pos *domain.Position, bracket *ports.BracketOrder) error {
	vp, err := venue.GetPosition(ctx, inst.Instrument.Symbol)
	if err != nil || vp != nil {
		return nil
	}

	e.logger.Info(ctx, "Venue closed position out-of-band", map[string]interface{}{
		"instrument": inst.Instrument.Key(),
		"positionID": pos.ID,
	})
	if err := venue.CancelBracket(ctx, inst.Instrument.Symbol, bracket); err != nil {
		e.logger.Warn(ctx, "Failed to cancel bracket after venue-side close", map[string]interface{}{
			"instrument": inst.Instrument.Key(),
			"error":      err.Error(),
		})
	}
	// The venue gives no fill record for an out-of-band close; the last
	// quote is the best available exit estimate.
	return e.settleBracketFill(ctx, inst, pos, domain.ExitVenueSide, pos.CurrentPrice, e.now())
}

// reconcileMissingBracket handles a bracket that vanished. If the venue
// still holds the position the protective legs are re-placed; otherwise
// the position is settled as a venue-side close.
func (e *Engine) reconcileMissingBracket(ctx context.Context, inst *InstrumentConfig, venue ports.Venue, pos *domain.Position) error {
	vp, err := venue.GetPosition(ctx, inst.Instrument.Symbol)
	if err != nil {
		return nil
	}
	if vp == nil {
		return e.settleBracketFill(ctx, inst, pos, domain.ExitVenueSide, pos.CurrentPrice, e.now())
	}

	e.logger.Warn(ctx, "Bracket missing while position is still held, re-placing protective legs", map[string]interface{}{
		"instrument": inst.Instrument.Key(),
		"positionID": pos.ID,
	})
	bracket, err := venue.PlaceBracket(ctx, inst.Instrument.Symbol, pos.Side.ExitSide(), pos.Quantity, pos.StopLoss, pos.TakeProfit)
	if err != nil {
		e.logger.Error(ctx, err, "Failed to re-place bracket, position is unprotected", map[string]interface{}{
			"instrument": inst.Instrument.Key(),
			"positionID": pos.ID,
		})
		return nil
	}
	pos.BracketID = bracket.ID
	pos.StopOrderID = bracket.StopOrderID
	pos.TakeOrderID = bracket.TakeOrderID
	return e.saveLedger(ctx, pos)
}

// settleBracketFill completes the lifecycle for a position the venue has
// already flattened: OPEN -> EXITING -> CLOSED with no market order.
func (e *Engine) settleBracketFill(ctx context.Context, inst *InstrumentConfig, pos *domain.Position, reason domain.ExitReason, exitPrice float64, fillTime time.Time) error {
	if fillTime.IsZero() {
		fillTime = e.now()
	}
	pos.ExitReason = reason
	if err := pos.TransitionTo(domain.StateExiting); err != nil {
		return fmt.Errorf("settling %s: %w", pos.ID, err)
	}
	if err := e.saveLedger(ctx, pos); err != nil {
		return err
	}
	return e.finalizeClose(ctx, inst, pos, reason, exitPrice, fillTime)
}

// closeAtMarket actively flattens a position: cancel the bracket, place a
// market exit order, settle. A failed exit order leaves the position in
// EXITING and is retried on the next tick.
func (e *Engine) closeAtMarket(ctx context.Context, inst *InstrumentConfig, venue ports.Venue, pos *domain.Position, reason domain.ExitReason) error {
	op := "closeAtMarket"
	symbol := inst.Instrument.Symbol

	if pos.State == domain.StateOpen {
		pos.ExitReason = reason
		if err := pos.TransitionTo(domain.StateExiting); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if err := e.saveLedger(ctx, pos); err != nil {
			return err
		}
	}

	bracket := &ports.BracketOrder{ID: pos.BracketID, StopOrderID: pos.StopOrderID, TakeOrderID: pos.TakeOrderID}
	if err := venue.CancelBracket(ctx, symbol, bracket); err != nil {
		e.logger.Warn(ctx, "Failed to cancel bracket before market exit", map[string]interface{}{
			"op":         op,
			"instrument": inst.Instrument.Key(),
			"error":      err.Error(),
		})
	}

	resp, err := venue.PlaceMarketOrder(ctx, symbol, pos.Side.ExitSide(), pos.Quantity)
	if err != nil {
		e.logger.Error(ctx, err, "Market exit failed, position stays in exiting state", map[string]interface{}{
			"op":         op,
			"instrument": inst.Instrument.Key(),
			"positionID": pos.ID,
		})
		return nil
	}

	exitPrice := resp.AvgPrice
	if exitPrice == 0 {
		exitPrice = pos.CurrentPrice
	}
	return e.finalizeClose(ctx, inst, pos, reason, exitPrice, e.now())
}

// finalizeClose records exit economics, transitions EXITING -> CLOSED,
// persists, and feeds the risk gate and the trade history.
func (e *Engine) finalizeClose(ctx context.Context, inst *InstrumentConfig, pos *domain.Position, reason domain.ExitReason, exitPrice float64, closedAt time.Time) error {
	pos.ExitReason = reason
	pos.SettleClose(exitPrice, closedAt)
	if err := pos.TransitionTo(domain.StateClosed); err != nil {
		return fmt.Errorf("closing %s: %w", pos.ID, err)
	}
	if err := e.saveLedger(ctx, pos); err != nil {
		return err
	}

	e.gate.RecordPnL(ctx, closedAt, pos.Instrument, pos.RealizedPnL)
	e.closeHistoryRow(ctx, pos)

	e.mu.Lock()
	delete(e.longOnlySkipLogged, inst.Instrument.Key())
	e.mu.Unlock()

	e.logger.Info(ctx, "Position closed", map[string]interface{}{
		"instrument": inst.Instrument.Key(),
		"positionID": pos.ID,
		"reason":     string(reason),
		"exitPrice":  exitPrice,
		"pnl":        pos.RealizedPnL,
		"pnlPct":     pos.RealizedPnLPct,
	})
	return nil
}

// evaluateEntry runs the entry pipeline: session check, candle fetch,
// strategy evaluation, staleness guard, capability check, risk gate, and
// finally the entry itself.
func (e *Engine) evaluateEntry(ctx context.Context, inst *InstrumentConfig, venue ports.Venue) error {
	op := "evaluateEntry"
	key := inst.Instrument.Key()
	symbol := inst.Instrument.Symbol
	now := e.now()

	if inst.Schedule != nil {
		if !inst.Schedule.IsOpen(now) {
			if inst.PreMarketWindow > 0 && inst.Schedule.IsPreMarketWindow(now, inst.PreMarketWindow) {
				e.warmup(ctx, inst, venue)
			}
			return nil
		}
		if inst.Schedule.IsClosingWindow(now, inst.ClosingWindow) {
			return nil
		}
	}

	limit := e.cfg.KlineLimit
	if min := inst.Strategy.MinKlines(); min > limit {
		limit = min
	}
	klines, err := venue.GetKlines(ctx, symbol, inst.Interval, limit)
	if err != nil {
		e.logger.Warn(ctx, "Failed to fetch candles", map[string]interface{}{
			"op": op, "instrument": key, "error": err.Error(),
		})
		return nil
	}

	quote, err := venue.GetQuote(ctx, symbol)
	if err != nil {
		e.logger.Warn(ctx, "Failed to fetch quote, skipping entry evaluation", map[string]interface{}{
			"op": op, "instrument": key, "error": err.Error(),
		})
		return nil
	}

	sig, err := inst.Strategy.Evaluate(ctx, klines, quote.Price)
	if err != nil {
		if errors.Is(err, ports.ErrInsufficientHistory) {
			e.logger.Debug(ctx, "Not enough history for strategy", map[string]interface{}{
				"op": op, "instrument": key, "strategy": inst.Strategy.Name(),
			})
			return nil
		}
		e.logger.Error(ctx, err, "Strategy evaluation failed", map[string]interface{}{
			"op": op, "instrument": key, "strategy": inst.Strategy.Name(),
		})
		return nil
	}
	if sig.Direction == domain.None {
		return nil
	}

	if sig.Direction == domain.Short && venue.LongOnly() {
		e.mu.Lock()
		logged := e.longOnlySkipLogged[key]
		e.longOnlySkipLogged[key] = true
		e.mu.Unlock()
		if !logged {
			e.logger.Info(ctx, "Short signal skipped on long-only venue", map[string]interface{}{
				"op": op, "instrument": key, "venue": venue.Name(),
			})
		}
		return nil
	}

	if stale := staleSignal(sig, quote.Price); stale {
		e.logger.Debug(ctx, "Discarding stale signal, quote moved back across threshold", map[string]interface{}{
			"op": op, "instrument": key, "threshold": sig.Threshold, "quote": quote.Price,
		})
		return nil
	}

	balance, err := venue.GetAccountBalance(ctx)
	if err != nil {
		e.logger.Warn(ctx, "Failed to fetch balance", map[string]interface{}{
			"op": op, "instrument": key, "error": err.Error(),
		})
		return nil
	}

	cost := quote.Price * inst.Quantity
	decision := e.gate.ApproveEntry(ctx, risk.EntryRequest{
		Instrument: inst.Instrument,
		Cost:       cost,
		Balance:    balance,
		Now:        now,
		EventStart: inst.EventStart,
	})
	if !decision.Approved {
		e.logger.Info(ctx, "Entry denied by risk gate", map[string]interface{}{
			"op": op, "instrument": key, "reason": string(decision.Reason), "detail": decision.Detail,
		})
		return nil
	}

	return e.enterPosition(ctx, inst, venue, sig, quote.Price, cost)
}

// warmup pulls candle history during the pre-market window so the first
// in-session evaluation works from a fresh cache and an already-verified
// venue connection.
func (e *Engine) warmup(ctx context.Context, inst *InstrumentConfig, venue ports.Venue) {
	limit := e.cfg.KlineLimit
	if min := inst.Strategy.MinKlines(); min > limit {
		limit = min
	}
	if _, err := venue.GetKlines(ctx, inst.Instrument.Symbol, inst.Interval, limit); err != nil {
		e.logger.Warn(ctx, "Pre-market data warmup failed", map[string]interface{}{
			"instrument": inst.Instrument.Key(), "error": err.Error(),
		})
	}
}

// staleSignal reports whether a fresh quote has moved back across the
// signal's trigger threshold, which means the crossing seen in candle data
// no longer holds.
func staleSignal(sig *domain.Signal, quote float64) bool {
	if sig.Threshold == 0 || quote == 0 {
		return false
	}
	switch sig.Direction {
	case domain.Long:
		return quote < sig.Threshold
	case domain.Short:
		return quote > sig.Threshold
	}
	return false
}

// enterPosition executes an approved entry: market order, then protective
// bracket. A bracket failure flattens the fresh fill and rejects the
// position rather than leaving it unprotected.
func (e *Engine) enterPosition(ctx context.Context, inst *InstrumentConfig, venue ports.Venue, sig *domain.Signal, quotePrice, cost float64) error {
	op := "enterPosition"
	key := inst.Instrument.Key()
	symbol := inst.Instrument.Symbol

	pos := &domain.Position{
		ID:         uuid.NewString(),
		Instrument: inst.Instrument,
		Strategy:   inst.Strategy.Name(),
		Side:       sig.Direction,
		Quantity:   inst.Quantity,
		State:      domain.StateIdle,
	}
	if err := pos.TransitionTo(domain.StateEntering); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := e.saveLedger(ctx, pos); err != nil {
		return err
	}
	e.setPosition(pos)

	resp, err := venue.PlaceMarketOrder(ctx, symbol, pos.Side.EntrySide(), pos.Quantity)
	if err != nil {
		e.logger.Error(ctx, err, "Entry order failed", map[string]interface{}{
			"op": op, "instrument": key, "positionID": pos.ID,
		})
		return e.rejectPosition(ctx, pos)
	}

	entryPrice := resp.AvgPrice
	if entryPrice == 0 {
		entryPrice = quotePrice
	}
	pos.EntryOrderID = resp.OrderID
	pos.EntryPrice = entryPrice
	pos.EntryCost = entryPrice * pos.Quantity
	pos.CurrentPrice = entryPrice
	pos.OpenedAt = e.now()
	pos.StopLoss, pos.TakeProfit = bracketLevels(sig, pos.Side, entryPrice, inst.StopLossPct, inst.TakeProfitPct)

	if err := pos.ValidateBracket(); err != nil {
		e.logger.Error(ctx, err, "Computed bracket is invalid, flattening entry", map[string]interface{}{
			"op": op, "instrument": key, "positionID": pos.ID,
		})
		return e.flattenAndReject(ctx, inst, venue, pos)
	}

	bracket, err := venue.PlaceBracket(ctx, symbol, pos.Side.ExitSide(), pos.Quantity, pos.StopLoss, pos.TakeProfit)
	if err != nil {
		e.logger.Error(ctx, err, "Bracket placement failed, flattening entry", map[string]interface{}{
			"op": op, "instrument": key, "positionID": pos.ID,
		})
		return e.flattenAndReject(ctx, inst, venue, pos)
	}
	pos.BracketID = bracket.ID
	pos.StopOrderID = bracket.StopOrderID
	pos.TakeOrderID = bracket.TakeOrderID

	if err := pos.TransitionTo(domain.StateOpen); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := e.saveLedger(ctx, pos); err != nil {
		return err
	}
	e.gate.RecordSpend(e.now(), cost)
	e.openHistoryRow(ctx, pos)

	e.logger.Info(ctx, "Position opened", map[string]interface{}{
		"op":         op,
		"instrument": key,
		"positionID": pos.ID,
		"side":       string(pos.Side),
		"entryPrice": pos.EntryPrice,
		"quantity":   pos.Quantity,
		"stopLoss":   pos.StopLoss,
		"takeProfit": pos.TakeProfit,
		"strategy":   pos.Strategy,
	})

	// HistoryRowID is persisted so a restart updates the same row on close.
	if pos.HistoryRowID != 0 {
		return e.saveLedger(ctx, pos)
	}
	return nil
}

// bracketLevels derives the protective levels for a fill. A strategy stop
// hint wins over the configured percentage stop.
func bracketLevels(sig *domain.Signal, side domain.Direction, entryPrice, stopPct, takePct float64) (stop, take float64) {
	if side == domain.Short {
		stop = entryPrice * (1 + stopPct)
		take = entryPrice * (1 - takePct)
	} else {
		stop = entryPrice * (1 - stopPct)
		take = entryPrice * (1 + takePct)
	}
	if sig.StopHint > 0 {
		stop = sig.StopHint
	}
	return stop, take
}

// flattenAndReject undoes a fresh fill whose protective bracket could not
// be placed. The exit retries with backoff; if every attempt fails the
// gate is halted so no further entries compound the exposure.
func (e *Engine) flattenAndReject(ctx context.Context, inst *InstrumentConfig, venue ports.Venue, pos *domain.Position) error {
	op := "flattenAndReject"
	symbol := inst.Instrument.Symbol

	b := &backoff.Backoff{Min: 500 * time.Millisecond, Max: 10 * time.Second, Factor: 2}
	var lastErr error
	for attempt := 1; attempt <= e.cfg.FlattenAttempts; attempt++ {
		resp, err := venue.PlaceMarketOrder(ctx, symbol, pos.Side.ExitSide(), pos.Quantity)
		if err == nil {
			exitPrice := resp.AvgPrice
			if exitPrice == 0 {
				exitPrice = pos.EntryPrice
			}
			pos.ExitReason = domain.ExitFlatten
			pos.SettleClose(exitPrice, e.now())
			e.gate.RecordPnL(ctx, e.now(), pos.Instrument, pos.RealizedPnL)
			e.logger.Info(ctx, "Entry flattened", map[string]interface{}{
				"op": op, "instrument": inst.Instrument.Key(), "positionID": pos.ID, "exitPrice": exitPrice,
			})
			return e.rejectPosition(ctx, pos)
		}
		lastErr = err
		e.logger.Warn(ctx, "Flatten attempt failed", map[string]interface{}{
			"op": op, "instrument": inst.Instrument.Key(), "attempt": attempt, "error": err.Error(),
		})
		if attempt == e.cfg.FlattenAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return e.rejectPosition(ctx, pos)
		case <-time.After(b.Duration()):
		}
	}

	// Unprotected exposure the engine could not remove. Stop opening
	// anything new and make the condition impossible to miss.
	e.gate.Halt()
	e.logger.Error(ctx, lastErr, "Failed to flatten unprotected entry, trading halted, manual intervention required", map[string]interface{}{
		"op":         op,
		"instrument": inst.Instrument.Key(),
		"positionID": pos.ID,
		"quantity":   pos.Quantity,
	})
	return e.rejectPosition(ctx, pos)
}

// rejectPosition moves an ENTERING position to the REJECTED terminal state.
func (e *Engine) rejectPosition(ctx context.Context, pos *domain.Position) error {
	if err := pos.TransitionTo(domain.StateRejected); err != nil {
		return fmt.Errorf("rejecting %s: %w", pos.ID, err)
	}
	return e.saveLedger(ctx, pos)
}

// saveLedger persists a position. The ledger is the source of truth;
// failing to write it makes continued trading unsafe, so the error
// propagates and stops the engine.
func (e *Engine) saveLedger(ctx context.Context, pos *domain.Position) error {
	if err := e.ledger.Save(ctx, pos); err != nil {
		return fmt.Errorf("persisting position %s: %w", pos.ID, err)
	}
	return nil
}

// openHistoryRow inserts the entry half of the trade history row. History
// failures are logged and swallowed; analytics never halt trading.
func (e *Engine) openHistoryRow(ctx context.Context, pos *domain.Position) {
	trade := &domain.Trade{
		PositionID: pos.ID,
		Instrument: pos.Instrument,
		Strategy:   pos.Strategy,
		Side:       pos.Side,
		EntryTime:  pos.OpenedAt,
		EntryPrice: pos.EntryPrice,
		Quantity:   pos.Quantity,
		Cost:       pos.EntryCost,
		StopLoss:   pos.StopLoss,
		TakeProfit: pos.TakeProfit,
		OrderID:    pos.EntryOrderID,
	}
	id, err := e.history.OpenTrade(ctx, trade)
	if err != nil {
		e.logger.Error(ctx, err, "Failed to record trade open in history", map[string]interface{}{
			"positionID": pos.ID,
		})
		return
	}
	pos.HistoryRowID = id
}

// closeHistoryRow updates the trade history row with exit data. Logged and
// swallowed like openHistoryRow.
func (e *Engine) closeHistoryRow(ctx context.Context, pos *domain.Position) {
	if pos.HistoryRowID == 0 {
		return
	}
	trade := &domain.Trade{
		ID:             pos.HistoryRowID,
		CloseTime:      pos.ClosedAt,
		ClosePrice:     pos.ExitPrice,
		CloseReason:    pos.ExitReason,
		RealizedPnL:    pos.RealizedPnL,
		RealizedPnLPct: pos.RealizedPnLPct,
		Win:            pos.RealizedPnL > 0,
	}
	if err := e.history.CloseTrade(ctx, trade); err != nil {
		e.logger.Error(ctx, err, "Failed to record trade close in history", map[string]interface{}{
			"positionID": pos.ID,
		})
	}
}
