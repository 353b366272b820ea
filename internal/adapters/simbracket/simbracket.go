// Package simbracket emulates protective bracket orders on venues that
// only expose single-leg orders. A venue adapter without a native
// one-cancels-other facility embeds a Simulator to satisfy the bracket
// half of ports.Venue.
package simbracket

import (
	"context"
	"errors"
	"fmt"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"

	"github.com/google/uuid"
)

// Simulator composes two dependent leg orders into one logical bracket.
// The bracket id is synthesized locally; the venue only ever sees the
// individual legs. Because the venue gives no cancel-on-fill guarantee,
// GetBracketResult cancels the surviving sibling as soon as one leg fills.
type Simulator struct {
	legs   ports.OrderPlacer
	logger ports.Logger
}

// New creates a bracket simulator over a leg-level order surface.
func New(legs ports.OrderPlacer, logger ports.Logger) (*Simulator, error) {
	if legs == nil {
		return nil, fmt.Errorf("order placer is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Simulator{legs: legs, logger: logger}, nil
}

// PlaceBracket places the stop leg and then the take-profit leg. If the
// second leg fails, the first is cancelled before the error is returned,
// so the venue never holds a partial bracket.
func (s *Simulator) PlaceBracket(ctx context.Context, symbol string, side domain.OrderSide, quantity, stopPrice, takePrice float64) (*ports.BracketOrder, error) {
	stopResp, err := s.legs.PlaceStopOrder(ctx, symbol, side, quantity, stopPrice)
	if err != nil {
		return nil, fmt.Errorf("placing stop leg: %w", err)
	}

	takeResp, err := s.legs.PlaceLimitOrder(ctx, symbol, side, quantity, takePrice)
	if err != nil {
		if cancelErr := s.legs.CancelOrder(ctx, symbol, stopResp.OrderID); cancelErr != nil && !errors.Is(cancelErr, ports.ErrOrderNotFound) {
			// The stop leg is now resting alone. The caller must flatten
			// the position anyway, which makes the stray stop harmless,
			// but it deserves a loud log line.
			s.logger.Error(ctx, cancelErr, "Failed to cancel orphaned stop leg after take leg failure", map[string]interface{}{
				"symbol":      symbol,
				"stopOrderID": stopResp.OrderID,
			})
		}
		return nil, fmt.Errorf("placing take-profit leg: %w", err)
	}

	bracket := &ports.BracketOrder{
		ID:          uuid.NewString(),
		StopOrderID: stopResp.OrderID,
		TakeOrderID: takeResp.OrderID,
	}
	s.logger.Info(ctx, "Simulated bracket placed", map[string]interface{}{
		"symbol":      symbol,
		"bracketID":   bracket.ID,
		"stopOrderID": bracket.StopOrderID,
		"takeOrderID": bracket.TakeOrderID,
	})
	return bracket, nil
}

// GetBracketResult inspects both leg records. When exactly one leg has
// filled it cancels the sibling, emulating the cancel-on-fill guarantee a
// native bracket would give.
func (s *Simulator) GetBracketResult(ctx context.Context, symbol string, bracket *ports.BracketOrder) (*ports.BracketResult, error) {
	stopRec, err := s.fetchLeg(ctx, symbol, bracket.StopOrderID)
	if err != nil {
		return nil, err
	}
	takeRec, err := s.fetchLeg(ctx, symbol, bracket.TakeOrderID)
	if err != nil {
		return nil, err
	}

	stopFilled := stopRec != nil && stopRec.State == ports.OrderStateFilled
	takeFilled := takeRec != nil && takeRec.State == ports.OrderStateFilled

	switch {
	case stopFilled && takeFilled:
		return &ports.BracketResult{Status: ports.BracketFilledUnknown, FillTime: stopRec.UpdatedAt}, nil
	case stopFilled:
		s.cancelSibling(ctx, symbol, bracket.TakeOrderID, takeRec)
		return &ports.BracketResult{Status: ports.BracketFilledStop, FillPrice: stopRec.AvgPrice, FillTime: stopRec.UpdatedAt}, nil
	case takeFilled:
		s.cancelSibling(ctx, symbol, bracket.StopOrderID, stopRec)
		return &ports.BracketResult{Status: ports.BracketFilledTake, FillPrice: takeRec.AvgPrice, FillTime: takeRec.UpdatedAt}, nil
	case stopRec == nil && takeRec == nil:
		return &ports.BracketResult{Status: ports.BracketNotFound}, nil
	}

	gone := func(r *ports.OrderRecord) bool {
		return r == nil || r.State == ports.OrderStateCancelled || r.State == ports.OrderStateExpired
	}
	if gone(stopRec) && gone(takeRec) {
		return &ports.BracketResult{Status: ports.BracketCancelled}, nil
	}
	return &ports.BracketResult{Status: ports.BracketPending}, nil
}

// CancelBracket cancels every still-resting leg.
func (s *Simulator) CancelBracket(ctx context.Context, symbol string, bracket *ports.BracketOrder) error {
	for _, orderID := range []string{bracket.StopOrderID, bracket.TakeOrderID} {
		if orderID == "" {
			continue
		}
		if err := s.legs.CancelOrder(ctx, symbol, orderID); err != nil {
			if errors.Is(err, ports.ErrOrderNotFound) || errors.Is(err, ports.ErrOrderCancelFailed) {
				continue
			}
			return err
		}
	}
	return nil
}

// wrappedVenue overrides a venue's bracket surface with a Simulator while
// delegating everything else to the underlying adapter.
type wrappedVenue struct {
	ports.Venue
	sim *Simulator
}

// Wrap returns a venue whose bracket operations go through a Simulator
// over the given leg-level order surface. Used to force simulated
// brackets on venues whose native one-cancels-other support is not wanted.
func Wrap(venue ports.Venue, legs ports.OrderPlacer, logger ports.Logger) (ports.Venue, error) {
	if venue == nil {
		return nil, fmt.Errorf("venue is required")
	}
	sim, err := New(legs, logger)
	if err != nil {
		return nil, err
	}
	return &wrappedVenue{Venue: venue, sim: sim}, nil
}

func (w *wrappedVenue) PlaceBracket(ctx context.Context, symbol string, side domain.OrderSide, quantity, stopPrice, takePrice float64) (*ports.BracketOrder, error) {
	return w.sim.PlaceBracket(ctx, symbol, side, quantity, stopPrice, takePrice)
}

func (w *wrappedVenue) GetBracketResult(ctx context.Context, symbol string, bracket *ports.BracketOrder) (*ports.BracketResult, error) {
	return w.sim.GetBracketResult(ctx, symbol, bracket)
}

func (w *wrappedVenue) CancelBracket(ctx context.Context, symbol string, bracket *ports.BracketOrder) error {
	return w.sim.CancelBracket(ctx, symbol, bracket)
}

// fetchLeg returns nil for an order the venue no longer knows.
func (s *Simulator) fetchLeg(ctx context.Context, symbol, orderID string) (*ports.OrderRecord, error) {
	rec, err := s.legs.GetOrderRecord(ctx, symbol, orderID)
	if err != nil {
		if errors.Is(err, ports.ErrOrderNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// cancelSibling best-effort cancels the surviving leg after a fill.
func (s *Simulator) cancelSibling(ctx context.Context, symbol, orderID string, rec *ports.OrderRecord) {
	if rec == nil || rec.State != ports.OrderStateNew {
		return
	}
	if err := s.legs.CancelOrder(ctx, symbol, orderID); err != nil && !errors.Is(err, ports.ErrOrderNotFound) {
		s.logger.Error(ctx, err, "Failed to cancel sibling leg after fill", map[string]interface{}{
			"symbol":  symbol,
			"orderID": orderID,
		})
	}
}
