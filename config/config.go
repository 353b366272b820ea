package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tradePilot/internal/adapters/logger"
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey     string
	SecretKey  string
	IsTestnet  bool
	QuoteAsset string

	// Instrument
	Symbol   string
	Interval string  // Candle interval fed to the strategy
	Quantity float64 // Fixed order size in base units

	// Bracket placement (fractions, e.g. 0.02 for 2%)
	StopLossPct   float64
	TakeProfitPct float64

	// Strategy selection: "ema_crossover" or "range_breakout"
	Strategy string

	// EMA crossover parameters
	FastPeriod  int
	SlowPeriod  int
	RSIPeriod   int
	LongRSIMin  float64
	LongRSIMax  float64
	ShortRSIMin float64
	ShortRSIMax float64

	// Range breakout parameters
	BreakoutLookback   int
	BreakoutVolumeMult float64
	BreakoutStopBuffer float64

	// Risk limits
	DailyLossFraction float64
	ReserveFraction   float64
	MaxDailyLoss      float64 // quote currency; 0 disables the automatic halt
	Cooldown          time.Duration
	MinLead           time.Duration
	MaxLead           time.Duration
	EventStart        time.Time // zero for continuous instruments

	// Session calendar. Empty Exchange means a continuous venue.
	Exchange        string
	ClosingWindow   time.Duration
	PreMarketWindow time.Duration
	OpeningRange    time.Duration

	// Engine
	TickInterval    time.Duration
	KlineLimit      int
	FlattenAttempts int

	// UseSimulatedBracket forces the leg-level bracket simulator even on
	// venues with native one-cancels-other support.
	UseSimulatedBracket bool

	// Storage
	DBPath     string
	LedgerPath string

	// Logging
	LogLevel logger.LogLevel
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety
	cfg.QuoteAsset = getEnv("QUOTE_ASSET", "USDT")

	if cfg.APIKey == "" {
		errs = append(errs, "BINANCE_API_KEY must be set")
	}
	if cfg.SecretKey == "" {
		errs = append(errs, "BINANCE_API_SECRET must be set")
	}

	// Instrument
	cfg.Symbol = getEnv("SYMBOL", "ETHUSDT")
	if cfg.Symbol == "" {
		errs = append(errs, "SYMBOL must be set")
	}
	cfg.Interval = getEnv("INTERVAL", "1m")

	cfg.Quantity, err = getEnvAsFloatRequired("QUANTITY", 0.5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid QUANTITY: %v", err))
	} else if cfg.Quantity <= 0 {
		errs = append(errs, "QUANTITY must be positive")
	}

	cfg.StopLossPct, err = getEnvAsFloatRequired("STOP_LOSS_PCT", 0.02)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STOP_LOSS_PCT: %v", err))
	} else if cfg.StopLossPct <= 0 || cfg.StopLossPct >= 1.0 {
		errs = append(errs, "STOP_LOSS_PCT must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.TakeProfitPct, err = getEnvAsFloatRequired("TAKE_PROFIT_PCT", 0.04)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TAKE_PROFIT_PCT: %v", err))
	} else if cfg.TakeProfitPct <= 0 {
		errs = append(errs, "TAKE_PROFIT_PCT must be positive")
	}

	// Strategy selection and parameters
	cfg.Strategy = strings.ToLower(getEnv("STRATEGY", "ema_crossover"))
	if cfg.Strategy != "ema_crossover" && cfg.Strategy != "range_breakout" {
		errs = append(errs, fmt.Sprintf("unknown STRATEGY %q (available: ema_crossover, range_breakout)", cfg.Strategy))
	}

	cfg.FastPeriod = getEnvAsInt("STRATEGY_FAST_PERIOD", 9)
	cfg.SlowPeriod = getEnvAsInt("STRATEGY_SLOW_PERIOD", 21)
	cfg.RSIPeriod = getEnvAsInt("STRATEGY_RSI_PERIOD", 14)
	cfg.LongRSIMin = getEnvAsFloat("STRATEGY_LONG_RSI_MIN", 40.0)
	cfg.LongRSIMax = getEnvAsFloat("STRATEGY_LONG_RSI_MAX", 65.0)
	cfg.ShortRSIMin = getEnvAsFloat("STRATEGY_SHORT_RSI_MIN", 35.0)
	cfg.ShortRSIMax = getEnvAsFloat("STRATEGY_SHORT_RSI_MAX", 60.0)

	if cfg.FastPeriod <= 0 || cfg.SlowPeriod <= 0 || cfg.RSIPeriod <= 0 {
		errs = append(errs, "strategy periods (fast, slow, RSI) must be positive")
	}
	if cfg.FastPeriod >= cfg.SlowPeriod {
		errs = append(errs, "STRATEGY_FAST_PERIOD must be less than STRATEGY_SLOW_PERIOD")
	}
	if cfg.LongRSIMin >= cfg.LongRSIMax || cfg.ShortRSIMin >= cfg.ShortRSIMax {
		errs = append(errs, "RSI band minimums must be below their maximums")
	}

	cfg.BreakoutLookback = getEnvAsInt("BREAKOUT_LOOKBACK", 20)
	cfg.BreakoutVolumeMult = getEnvAsFloat("BREAKOUT_VOLUME_MULT", 1.5)
	cfg.BreakoutStopBuffer = getEnvAsFloat("BREAKOUT_STOP_BUFFER", 0.001)
	if cfg.BreakoutLookback <= 1 {
		errs = append(errs, "BREAKOUT_LOOKBACK must be at least 2")
	}
	if cfg.BreakoutVolumeMult <= 0 {
		errs = append(errs, "BREAKOUT_VOLUME_MULT must be positive")
	}

	// Risk limits
	cfg.DailyLossFraction, err = getEnvAsFloatRequired("DAILY_LOSS_FRACTION", 0.05)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DAILY_LOSS_FRACTION: %v", err))
	} else if cfg.DailyLossFraction <= 0 || cfg.DailyLossFraction > 1.0 {
		errs = append(errs, "DAILY_LOSS_FRACTION must be between 0.0 (exclusive) and 1.0")
	}

	cfg.ReserveFraction, err = getEnvAsFloatRequired("RESERVE_FRACTION", 0.2)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RESERVE_FRACTION: %v", err))
	} else if cfg.ReserveFraction < 0 || cfg.ReserveFraction >= 1.0 {
		errs = append(errs, "RESERVE_FRACTION must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.MaxDailyLoss = getEnvAsFloat("MAX_DAILY_LOSS", 0)
	if cfg.MaxDailyLoss < 0 {
		errs = append(errs, "MAX_DAILY_LOSS cannot be negative")
	}

	cooldownMinutes := getEnvAsInt("COOLDOWN_MINUTES", 30)
	if cooldownMinutes < 0 {
		errs = append(errs, "COOLDOWN_MINUTES cannot be negative")
	}
	cfg.Cooldown = time.Duration(cooldownMinutes) * time.Minute

	minLeadMinutes := getEnvAsInt("MIN_LEAD_MINUTES", 0)
	maxLeadMinutes := getEnvAsInt("MAX_LEAD_MINUTES", 0)
	if minLeadMinutes < 0 || maxLeadMinutes < 0 {
		errs = append(errs, "lead window minutes cannot be negative")
	}
	if maxLeadMinutes > 0 && minLeadMinutes > maxLeadMinutes {
		errs = append(errs, "MIN_LEAD_MINUTES must not exceed MAX_LEAD_MINUTES")
	}
	cfg.MinLead = time.Duration(minLeadMinutes) * time.Minute
	cfg.MaxLead = time.Duration(maxLeadMinutes) * time.Minute

	if eventStart := getEnv("EVENT_START", ""); eventStart != "" {
		cfg.EventStart, err = time.Parse(time.RFC3339, eventStart)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid EVENT_START (want RFC3339): %v", err))
		}
	}

	// Session calendar
	cfg.Exchange = getEnv("EXCHANGE", "")
	closingWindowMinutes := getEnvAsInt("CLOSING_WINDOW_MINUTES", 10)
	if closingWindowMinutes < 0 {
		errs = append(errs, "CLOSING_WINDOW_MINUTES cannot be negative")
	}
	cfg.ClosingWindow = time.Duration(closingWindowMinutes) * time.Minute

	preMarketMinutes := getEnvAsInt("PRE_MARKET_MINUTES", 15)
	if preMarketMinutes < 0 {
		errs = append(errs, "PRE_MARKET_MINUTES cannot be negative")
	}
	cfg.PreMarketWindow = time.Duration(preMarketMinutes) * time.Minute

	openingRangeMinutes := getEnvAsInt("OPENING_RANGE_MINUTES", 15)
	if openingRangeMinutes <= 0 {
		errs = append(errs, "OPENING_RANGE_MINUTES must be positive")
	}
	cfg.OpeningRange = time.Duration(openingRangeMinutes) * time.Minute

	// Engine
	tickSeconds := getEnvAsInt("TICK_INTERVAL_SECONDS", 15)
	if tickSeconds <= 0 {
		errs = append(errs, "TICK_INTERVAL_SECONDS must be positive")
	}
	cfg.TickInterval = time.Duration(tickSeconds) * time.Second

	cfg.KlineLimit = getEnvAsInt("KLINE_LIMIT", 100)
	if cfg.KlineLimit <= 0 {
		errs = append(errs, "KLINE_LIMIT must be positive")
	}

	cfg.FlattenAttempts = getEnvAsInt("FLATTEN_ATTEMPTS", 5)
	if cfg.FlattenAttempts <= 0 {
		errs = append(errs, "FLATTEN_ATTEMPTS must be positive")
	}

	cfg.UseSimulatedBracket = getEnvAsBool("USE_SIMULATED_BRACKET", false)

	// Storage
	cfg.DBPath = getEnv("DB_PATH", "./data/trade_history.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}
	cfg.LedgerPath = getEnv("LEDGER_PATH", "./data/positions.json")
	if cfg.LedgerPath == "" {
		errs = append(errs, "LEDGER_PATH must be set")
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
