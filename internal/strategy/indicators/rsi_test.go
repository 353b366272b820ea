package indicators

import (
	"context"
	"errors"
	"math"
	"testing"

	"tradePilot/internal/ports"
)

func TestRSI_Calculate(t *testing.T) {
	tests := []struct {
		name          string
		period        int
		closes        []float64
		expectedValue float64
		expectError   bool
	}{
		{
			name:   "mixed gains and losses",
			period: 3,
			closes: []float64{50, 51, 50.5, 52, 53, 52.5},
			// Wilder's smoothing: avgGain 0.592593, avgLoss 0.240741
			expectedValue: 71.111111,
		},
		{
			name:          "all gains",
			period:        3,
			closes:        []float64{100, 102, 104, 106},
			expectedValue: 100.0,
		},
		{
			name:          "all losses",
			period:        3,
			closes:        []float64{106, 104, 102, 100},
			expectedValue: 0.0,
		},
		{
			name:          "flat prices are neutral",
			period:        3,
			closes:        []float64{100, 100, 100, 100},
			expectedValue: 50.0,
		},
		{
			name:        "insufficient data",
			period:      7,
			closes:      []float64{100, 101, 102},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rsi := NewRSI(RSIConfig{
				IndicatorConfig: IndicatorConfig{Period: tt.period},
				Overbought:      70,
				Oversold:        30,
			})
			value, err := rsi.Calculate(context.Background(), klinesFromCloses(tt.closes...))
			if tt.expectError {
				if !errors.Is(err, ports.ErrInsufficientHistory) {
					t.Fatalf("Expected ErrInsufficientHistory, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if math.Abs(value-tt.expectedValue) > 1e-4 {
				t.Errorf("Expected %f, got %f", tt.expectedValue, value)
			}
		})
	}
}

func TestRSI_Bands(t *testing.T) {
	rsi := NewRSI(RSIConfig{
		IndicatorConfig: IndicatorConfig{Period: 14},
		Overbought:      70,
		Oversold:        30,
	})
	if !rsi.IsOverbought(75) || rsi.IsOverbought(65) {
		t.Error("IsOverbought misclassified")
	}
	if !rsi.IsOversold(25) || rsi.IsOversold(35) {
		t.Error("IsOversold misclassified")
	}
	if !InBand(50, 40, 65) {
		t.Error("Expected 50 to be inside (40, 65)")
	}
	if InBand(40, 40, 65) || InBand(65, 40, 65) {
		t.Error("Expected the band to be exclusive at both edges")
	}
}
