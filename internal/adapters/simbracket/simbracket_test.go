package simbracket

import (
	"context"
	"errors"
	"testing"
	"time"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}
func (m *mockLogger) Fatal(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// mockPlacer implements ports.OrderPlacer with injectable behaviour.
type mockPlacer struct {
	stopErr   error
	limitErr  error
	cancelErr error
	records   map[string]*ports.OrderRecord

	cancelled []string
}

func (m *mockPlacer) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity float64) (*ports.OrderResponse, error) {
	return &ports.OrderResponse{OrderID: "market-1"}, nil
}

func (m *mockPlacer) PlaceStopOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity, stopPrice float64) (*ports.OrderResponse, error) {
	if m.stopErr != nil {
		return nil, m.stopErr
	}
	return &ports.OrderResponse{OrderID: "stop-1", Symbol: symbol, Side: side}, nil
}

func (m *mockPlacer) PlaceLimitOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity, limitPrice float64) (*ports.OrderResponse, error) {
	if m.limitErr != nil {
		return nil, m.limitErr
	}
	return &ports.OrderResponse{OrderID: "take-1", Symbol: symbol, Side: side}, nil
}

func (m *mockPlacer) CancelOrder(ctx context.Context, symbol, orderID string) error {
	m.cancelled = append(m.cancelled, orderID)
	return m.cancelErr
}

func (m *mockPlacer) GetOrderRecord(ctx context.Context, symbol, orderID string) (*ports.OrderRecord, error) {
	rec, ok := m.records[orderID]
	if !ok {
		return nil, ports.ErrOrderNotFound
	}
	return rec, nil
}

func testBracket() *ports.BracketOrder {
	return &ports.BracketOrder{ID: "b-1", StopOrderID: "stop-1", TakeOrderID: "take-1"}
}

func TestPlaceBracket(t *testing.T) {
	placer := &mockPlacer{}
	sim, err := New(placer, &mockLogger{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	bracket, err := sim.PlaceBracket(context.Background(), "ETHUSDT", domain.Sell, 0.5, 1960, 2080)
	if err != nil {
		t.Fatalf("PlaceBracket: %v", err)
	}
	if bracket.ID == "" {
		t.Error("Expected a synthesized bracket id")
	}
	if bracket.StopOrderID != "stop-1" || bracket.TakeOrderID != "take-1" {
		t.Errorf("Unexpected leg ids: %+v", bracket)
	}
	if len(placer.cancelled) != 0 {
		t.Errorf("Expected no cancels on success, got %v", placer.cancelled)
	}
}

func TestPlaceBracketTakeLegFailureCancelsStop(t *testing.T) {
	placer := &mockPlacer{limitErr: ports.ErrOrderRejected}
	sim, _ := New(placer, &mockLogger{})

	_, err := sim.PlaceBracket(context.Background(), "ETHUSDT", domain.Sell, 0.5, 1960, 2080)
	if !errors.Is(err, ports.ErrOrderRejected) {
		t.Fatalf("Expected ErrOrderRejected, got %v", err)
	}
	if len(placer.cancelled) != 1 || placer.cancelled[0] != "stop-1" {
		t.Errorf("Expected the stop leg to be cancelled, got %v", placer.cancelled)
	}
}

func TestPlaceBracketStopLegFailure(t *testing.T) {
	placer := &mockPlacer{stopErr: ports.ErrInsufficientFunds}
	sim, _ := New(placer, &mockLogger{})

	_, err := sim.PlaceBracket(context.Background(), "ETHUSDT", domain.Sell, 0.5, 1960, 2080)
	if !errors.Is(err, ports.ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}
	if len(placer.cancelled) != 0 {
		t.Errorf("Expected nothing to cancel, got %v", placer.cancelled)
	}
}

func TestGetBracketResultStopFillCancelsSibling(t *testing.T) {
	now := time.Now()
	placer := &mockPlacer{records: map[string]*ports.OrderRecord{
		"stop-1": {OrderID: "stop-1", State: ports.OrderStateFilled, AvgPrice: 1958.5, UpdatedAt: now},
		"take-1": {OrderID: "take-1", State: ports.OrderStateNew},
	}}
	sim, _ := New(placer, &mockLogger{})

	res, err := sim.GetBracketResult(context.Background(), "ETHUSDT", testBracket())
	if err != nil {
		t.Fatalf("GetBracketResult: %v", err)
	}
	if res.Status != ports.BracketFilledStop {
		t.Errorf("Expected FILLED_STOP, got %s", res.Status)
	}
	if res.FillPrice != 1958.5 {
		t.Errorf("Expected fill price from the order record, got %f", res.FillPrice)
	}
	if len(placer.cancelled) != 1 || placer.cancelled[0] != "take-1" {
		t.Errorf("Expected the take leg to be cancelled, got %v", placer.cancelled)
	}
}

func TestGetBracketResultPending(t *testing.T) {
	placer := &mockPlacer{records: map[string]*ports.OrderRecord{
		"stop-1": {OrderID: "stop-1", State: ports.OrderStateNew},
		"take-1": {OrderID: "take-1", State: ports.OrderStateNew},
	}}
	sim, _ := New(placer, &mockLogger{})

	res, err := sim.GetBracketResult(context.Background(), "ETHUSDT", testBracket())
	if err != nil {
		t.Fatalf("GetBracketResult: %v", err)
	}
	if res.Status != ports.BracketPending {
		t.Errorf("Expected PENDING, got %s", res.Status)
	}
	if len(placer.cancelled) != 0 {
		t.Errorf("Expected no cancels while pending, got %v", placer.cancelled)
	}
}

func TestGetBracketResultBothLegsGone(t *testing.T) {
	placer := &mockPlacer{records: map[string]*ports.OrderRecord{}}
	sim, _ := New(placer, &mockLogger{})

	res, err := sim.GetBracketResult(context.Background(), "ETHUSDT", testBracket())
	if err != nil {
		t.Fatalf("GetBracketResult: %v", err)
	}
	if res.Status != ports.BracketNotFound {
		t.Errorf("Expected NOT_FOUND, got %s", res.Status)
	}
}

func TestGetBracketResultBothFilled(t *testing.T) {
	now := time.Now()
	placer := &mockPlacer{records: map[string]*ports.OrderRecord{
		"stop-1": {OrderID: "stop-1", State: ports.OrderStateFilled, AvgPrice: 1960, UpdatedAt: now},
		"take-1": {OrderID: "take-1", State: ports.OrderStateFilled, AvgPrice: 2080, UpdatedAt: now},
	}}
	sim, _ := New(placer, &mockLogger{})

	res, err := sim.GetBracketResult(context.Background(), "ETHUSDT", testBracket())
	if err != nil {
		t.Fatalf("GetBracketResult: %v", err)
	}
	if res.Status != ports.BracketFilledUnknown {
		t.Errorf("Expected FILLED_UNKNOWN, got %s", res.Status)
	}
}

func TestCancelBracketIgnoresMissingLegs(t *testing.T) {
	placer := &mockPlacer{cancelErr: ports.ErrOrderNotFound}
	sim, _ := New(placer, &mockLogger{})

	if err := sim.CancelBracket(context.Background(), "ETHUSDT", testBracket()); err != nil {
		t.Errorf("Expected missing legs to be tolerated, got %v", err)
	}
	if len(placer.cancelled) != 2 {
		t.Errorf("Expected both legs attempted, got %v", placer.cancelled)
	}
}
