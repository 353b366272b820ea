package indicators

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
)

func klinesFromCloses(closes ...float64) []*domain.Kline {
	now := time.Now()
	ks := make([]*domain.Kline, len(closes))
	for i, c := range closes {
		ks[i] = &domain.Kline{
			OpenTime: now.Add(time.Duration(i-len(closes)) * time.Hour),
			Close:    c,
		}
	}
	return ks
}

func TestMovingAverage_Calculate(t *testing.T) {
	tests := []struct {
		name          string
		config        MovingAverageConfig
		klines        []*domain.Kline
		expectedValue float64
		expectError   bool
	}{
		{
			name: "SMA over last period",
			config: MovingAverageConfig{
				IndicatorConfig: IndicatorConfig{Period: 3},
				Type:            SimpleMovingAverage,
			},
			klines:        klinesFromCloses(10, 11, 12, 13, 14),
			expectedValue: 13.0, // (12+13+14)/3
		},
		{
			name: "EMA seeded with SMA",
			config: MovingAverageConfig{
				IndicatorConfig: IndicatorConfig{Period: 3},
				Type:            ExponentialMovingAverage,
			},
			klines:        klinesFromCloses(10, 11, 12, 13, 14),
			expectedValue: 13.0, // seed 11, then 12, then 13 with multiplier 0.5
		},
		{
			name: "insufficient data",
			config: MovingAverageConfig{
				IndicatorConfig: IndicatorConfig{Period: 10},
				Type:            SimpleMovingAverage,
			},
			klines:      klinesFromCloses(10, 11, 12),
			expectError: true,
		},
		{
			name: "unsupported type",
			config: MovingAverageConfig{
				IndicatorConfig: IndicatorConfig{Period: 2},
				Type:            MovingAverageType("WMA"),
			},
			klines:      klinesFromCloses(10, 11, 12),
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ma := NewMovingAverage(tt.config)
			value, err := ma.Calculate(context.Background(), tt.klines)
			if tt.expectError {
				if err == nil {
					t.Fatal("Expected an error, got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if math.Abs(value-tt.expectedValue) > 1e-6 {
				t.Errorf("Expected %f, got %f", tt.expectedValue, value)
			}
		})
	}
}

func TestMovingAverage_InsufficientHistoryError(t *testing.T) {
	ma := NewMovingAverage(MovingAverageConfig{
		IndicatorConfig: IndicatorConfig{Period: 5},
		Type:            ExponentialMovingAverage,
	})
	_, err := ma.Calculate(context.Background(), klinesFromCloses(10, 11))
	if !errors.Is(err, ports.ErrInsufficientHistory) {
		t.Errorf("Expected ErrInsufficientHistory, got %v", err)
	}
}
