package strategy

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}
func (m *mockLogger) Fatal(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func closesToKlines(closes []float64) []*domain.Kline {
	now := time.Now()
	ks := make([]*domain.Kline, len(closes))
	for i, c := range closes {
		ks[i] = &domain.Kline{
			OpenTime:  now.Add(time.Duration(i-len(closes)) * time.Hour),
			CloseTime: now.Add(time.Duration(i-len(closes)+1) * time.Hour),
			Close:     c,
		}
	}
	return ks
}

func testCrossoverConfig() CrossoverConfig {
	return CrossoverConfig{
		FastPeriod:  2,
		SlowPeriod:  3,
		RSIPeriod:   3,
		LongRSIMin:  40,
		LongRSIMax:  65,
		ShortRSIMin: 35,
		ShortRSIMax: 60,
	}
}

func TestCrossoverConfigValidation(t *testing.T) {
	if _, err := NewCrossover(testCrossoverConfig(), nil); err == nil {
		t.Error("Expected an error when logger is nil")
	}
	bad := testCrossoverConfig()
	bad.FastPeriod = 5 // not below slow
	if _, err := NewCrossover(bad, &mockLogger{}); err == nil {
		t.Error("Expected an error when fast period >= slow period")
	}
}

func TestCrossoverEvaluate(t *testing.T) {
	tests := []struct {
		name      string
		closes    []float64
		direction domain.Direction
	}{
		{
			// Decline then a mild recovery: fast EMA crosses above slow
			// with RSI around 55, inside the long band.
			name:      "long on cross up inside band",
			closes:    []float64{100, 99, 98, 97, 99.5},
			direction: domain.Long,
		},
		{
			// Same cross but the final candle spikes hard, pushing RSI
			// to 75 and outside the band.
			name:      "cross up rejected by RSI band",
			closes:    []float64{100, 99, 98, 97, 103},
			direction: domain.None,
		},
		{
			name:      "short on cross down inside band",
			closes:    []float64{100, 101, 102, 103, 100.5},
			direction: domain.Short,
		},
		{
			name:      "no cross on a steady trend",
			closes:    []float64{100, 101, 102, 103, 104},
			direction: domain.None,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewCrossover(testCrossoverConfig(), &mockLogger{})
			if err != nil {
				t.Fatalf("NewCrossover: %v", err)
			}
			sig, err := s.Evaluate(context.Background(), closesToKlines(tt.closes), 0)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if sig.Direction != tt.direction {
				t.Errorf("Expected direction %s, got %s (values %v)", tt.direction, sig.Direction, sig.Values)
			}
		})
	}
}

func TestCrossoverThresholdIsSlowEMA(t *testing.T) {
	s, err := NewCrossover(testCrossoverConfig(), &mockLogger{})
	if err != nil {
		t.Fatalf("NewCrossover: %v", err)
	}
	sig, err := s.Evaluate(context.Background(), closesToKlines([]float64{100, 99, 98, 97, 99.5}), 0)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if sig.Direction != domain.Long {
		t.Fatalf("Expected a long signal, got %s", sig.Direction)
	}
	// Slow EMA(3): seed 99, then 98, then 98.75.
	if math.Abs(sig.Threshold-98.75) > 1e-6 {
		t.Errorf("Expected threshold 98.75, got %f", sig.Threshold)
	}
}

func TestCrossoverInsufficientHistory(t *testing.T) {
	s, err := NewCrossover(testCrossoverConfig(), &mockLogger{})
	if err != nil {
		t.Fatalf("NewCrossover: %v", err)
	}
	_, err = s.Evaluate(context.Background(), closesToKlines([]float64{100, 101, 102}), 0)
	if !errors.Is(err, ports.ErrInsufficientHistory) {
		t.Errorf("Expected ErrInsufficientHistory, got %v", err)
	}
}
