package fileledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
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

func testPosition(venue, symbol string, state domain.PositionState) *domain.Position {
	return &domain.Position{
		ID:         "pos-" + symbol,
		Instrument: domain.Instrument{Venue: venue, Symbol: symbol},
		Strategy:   "ema_crossover",
		Side:       domain.Long,
		Quantity:   0.5,
		EntryPrice: 2000,
		EntryCost:  1000,
		StopLoss:   1960,
		TakeProfit: 2080,
		State:      state,
		OpenedAt:   time.Date(2025, 6, 11, 14, 0, 0, 0, time.UTC),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	ctx := context.Background()

	store, err := New(path, &mockLogger{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	p1 := testPosition("binance", "ETHUSDT", domain.StateOpen)
	p2 := testPosition("binance", "BTCUSDT", domain.StateExiting)
	if err := store.Save(ctx, p1); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(ctx, p2); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A fresh store over the same file must see both records.
	reopened, err := New(path, &mockLogger{})
	if err != nil {
		t.Fatalf("New (reopen): %v", err)
	}
	loaded, err := reopened.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("Expected 2 positions, got %d", len(loaded))
	}
	got := loaded["binance:ETHUSDT"]
	if got == nil {
		t.Fatal("Expected binance:ETHUSDT to be present")
	}
	if got.State != domain.StateOpen || got.EntryPrice != 2000 || got.Side != domain.Long {
		t.Errorf("Round-tripped position mismatch: %+v", got)
	}
	if loaded["binance:BTCUSDT"].State != domain.StateExiting {
		t.Errorf("Expected BTCUSDT to still be EXITING")
	}
}

func TestStoreSaveReplacesSameInstrument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	ctx := context.Background()

	store, err := New(path, &mockLogger{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	p := testPosition("binance", "ETHUSDT", domain.StateOpen)
	if err := store.Save(ctx, p); err != nil {
		t.Fatalf("Save: %v", err)
	}
	p.State = domain.StateExiting
	if err := store.Save(ctx, p); err != nil {
		t.Fatalf("Save (update): %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("Expected 1 position, got %d", len(loaded))
	}
	if loaded["binance:ETHUSDT"].State != domain.StateExiting {
		t.Errorf("Expected the saved record to be replaced")
	}
}

func TestStoreLoadReturnsCopies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	ctx := context.Background()

	store, err := New(path, &mockLogger{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := store.Save(ctx, testPosition("binance", "ETHUSDT", domain.StateOpen)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	first, _ := store.Load(ctx)
	first["binance:ETHUSDT"].EntryPrice = 9999

	second, _ := store.Load(ctx)
	if second["binance:ETHUSDT"].EntryPrice != 2000 {
		t.Error("Mutating a loaded position must not affect the store")
	}
}

func TestStoreEmptyFileIsEmptyLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	store, err := New(path, &mockLogger{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	loaded, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("Expected an empty ledger, got %d positions", len(loaded))
	}
}

func TestStoreCorruptFileFailsOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := New(path, &mockLogger{}); err == nil {
		t.Error("Expected opening a corrupt ledger to fail")
	}
}

func TestStoreSaveFailureIsLedgerPersistence(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("directory permissions do not restrict root")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "positions.json")
	store, err := New(path, &mockLogger{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Make the directory unwritable so the temp file cannot be created.
	if err := os.Chmod(dir, 0o555); err != nil {
		t.Fatalf("Chmod: %v", err)
	}
	defer os.Chmod(dir, 0o755)

	err = store.Save(context.Background(), testPosition("binance", "ETHUSDT", domain.StateOpen))
	if !errors.Is(err, ports.ErrLedgerPersistence) {
		t.Errorf("Expected ErrLedgerPersistence, got %v", err)
	}
}
