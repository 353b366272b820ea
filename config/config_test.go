package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BINANCE_API_KEY", "key")
	t.Setenv("BINANCE_API_SECRET", "secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "ETHUSDT", cfg.Symbol)
	assert.Equal(t, "1m", cfg.Interval)
	assert.Equal(t, "ema_crossover", cfg.Strategy)
	assert.True(t, cfg.IsTestnet, "testnet must be the default")
	assert.Equal(t, 0.02, cfg.StopLossPct)
	assert.Equal(t, 0.04, cfg.TakeProfitPct)
	assert.Equal(t, 0.05, cfg.DailyLossFraction)
	assert.Equal(t, 0.2, cfg.ReserveFraction)
	assert.Equal(t, 30*time.Minute, cfg.Cooldown)
	assert.Equal(t, 15*time.Second, cfg.TickInterval)
	assert.Equal(t, 10*time.Minute, cfg.ClosingWindow)
	assert.Equal(t, 15*time.Minute, cfg.OpeningRange)
	assert.Empty(t, cfg.Exchange)
	assert.True(t, cfg.EventStart.IsZero())
	assert.False(t, cfg.UseSimulatedBracket)
}

func TestLoadConfigMissingCredentials(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "")
	t.Setenv("BINANCE_API_SECRET", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BINANCE_API_KEY")
	assert.Contains(t, err.Error(), "BINANCE_API_SECRET")
}

func TestLoadConfigCollectsAllValidationErrors(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STOP_LOSS_PCT", "1.5")
	t.Setenv("STRATEGY", "martingale")
	t.Setenv("DAILY_LOSS_FRACTION", "0")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STOP_LOSS_PCT")
	assert.Contains(t, err.Error(), "STRATEGY")
	assert.Contains(t, err.Error(), "DAILY_LOSS_FRACTION")
}

func TestLoadConfigEventStart(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("EVENT_START", "2026-09-01T13:30:00Z")
	t.Setenv("MIN_LEAD_MINUTES", "5")
	t.Setenv("MAX_LEAD_MINUTES", "45")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 1, 13, 30, 0, 0, time.UTC), cfg.EventStart.UTC())
	assert.Equal(t, 5*time.Minute, cfg.MinLead)
	assert.Equal(t, 45*time.Minute, cfg.MaxLead)
}

func TestLoadConfigRejectsInvertedLeadWindow(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MIN_LEAD_MINUTES", "60")
	t.Setenv("MAX_LEAD_MINUTES", "10")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MIN_LEAD_MINUTES")
}

func TestLoadConfigBreakoutStrategy(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STRATEGY", "range_breakout")
	t.Setenv("BREAKOUT_LOOKBACK", "30")
	t.Setenv("BREAKOUT_VOLUME_MULT", "2.0")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "range_breakout", cfg.Strategy)
	assert.Equal(t, 30, cfg.BreakoutLookback)
	assert.Equal(t, 2.0, cfg.BreakoutVolumeMult)
}
