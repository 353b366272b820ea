package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"tradePilot/config"
	"tradePilot/internal/adapters/binanceclient"
	"tradePilot/internal/adapters/fileledger"
	"tradePilot/internal/adapters/logger"
	"tradePilot/internal/adapters/simbracket"
	"tradePilot/internal/adapters/sqlite"
	"tradePilot/internal/app"
	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
	"tradePilot/internal/risk"
	"tradePilot/internal/session"
	"tradePilot/internal/strategy"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Trade History (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trade history repository")
		log.Fatalf("FATAL: Failed to initialize trade history repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing trade history repository")
		}
	}()
	appLogger.Info(context.Background(), "Trade history repository initialized")

	// 4. Initialize Position Ledger
	ledger, err := fileledger.New(cfg.LedgerPath, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize position ledger")
		log.Fatalf("FATAL: Failed to initialize position ledger: %v", err)
	}
	appLogger.Info(context.Background(), "Position ledger initialized", map[string]interface{}{"path": cfg.LedgerPath})

	// 5. Initialize Venue (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
		QuoteAsset: cfg.QuoteAsset,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	var venue ports.Venue = binanceClient
	if cfg.UseSimulatedBracket {
		venue, err = simbracket.Wrap(binanceClient, binanceClient, appLogger)
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to initialize bracket simulator")
			log.Fatalf("FATAL: Failed to initialize bracket simulator: %v", err)
		}
		appLogger.Info(context.Background(), "Simulated brackets enabled")
	}
	appLogger.Info(context.Background(), "Venue initialized", map[string]interface{}{"venue": venue.Name(), "testnet": cfg.IsTestnet})

	// 6. Optional Session Calendar
	var schedule *session.Schedule
	if cfg.Exchange != "" {
		schedule, err = session.Get(cfg.Exchange)
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to load session calendar")
			log.Fatalf("FATAL: Failed to load session calendar: %v", err)
		}
		appLogger.Info(context.Background(), "Session calendar loaded", map[string]interface{}{"exchange": schedule.Name})
	}

	// 7. Initialize Strategy
	var signalSource ports.SignalSource
	switch cfg.Strategy {
	case "range_breakout":
		signalSource, err = strategy.NewBreakout(strategy.BreakoutConfig{
			Lookback:         cfg.BreakoutLookback,
			VolumeMultiplier: cfg.BreakoutVolumeMult,
			StopBuffer:       cfg.BreakoutStopBuffer,
			Schedule:         schedule,
			OpeningRange:     cfg.OpeningRange,
		}, appLogger)
	default:
		signalSource, err = strategy.NewCrossover(strategy.CrossoverConfig{
			FastPeriod:  cfg.FastPeriod,
			SlowPeriod:  cfg.SlowPeriod,
			RSIPeriod:   cfg.RSIPeriod,
			LongRSIMin:  cfg.LongRSIMin,
			LongRSIMax:  cfg.LongRSIMax,
			ShortRSIMin: cfg.ShortRSIMin,
			ShortRSIMax: cfg.ShortRSIMax,
		}, appLogger)
	}
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize strategy")
		log.Fatalf("FATAL: Failed to initialize strategy: %v", err)
	}
	appLogger.Info(context.Background(), "Strategy initialized", map[string]interface{}{"strategy": signalSource.Name()})

	// 8. Initialize Risk Gate
	gate := risk.NewGate(risk.Config{
		DailyLossFraction: cfg.DailyLossFraction,
		ReserveFraction:   cfg.ReserveFraction,
		MaxDailyLoss:      cfg.MaxDailyLoss,
		Cooldown:          cfg.Cooldown,
		MinLead:           cfg.MinLead,
		MaxLead:           cfg.MaxLead,
	}, appLogger)

	// 9. Initialize Lifecycle Engine
	instrument := app.InstrumentConfig{
		Instrument:      domain.Instrument{Venue: venue.Name(), Symbol: cfg.Symbol},
		Strategy:        signalSource,
		Interval:        cfg.Interval,
		Quantity:        cfg.Quantity,
		StopLossPct:     cfg.StopLossPct,
		TakeProfitPct:   cfg.TakeProfitPct,
		Schedule:        schedule,
		ClosingWindow:   cfg.ClosingWindow,
		PreMarketWindow: cfg.PreMarketWindow,
		EventStart:      cfg.EventStart,
	}
	engine, err := app.New(
		app.Config{
			TickInterval:    cfg.TickInterval,
			KlineLimit:      cfg.KlineLimit,
			FlattenAttempts: cfg.FlattenAttempts,
		},
		appLogger,
		map[string]ports.Venue{venue.Name(): venue},
		ledger,
		repo,
		gate,
		[]app.InstrumentConfig{instrument},
	)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize lifecycle engine")
		log.Fatalf("FATAL: Failed to initialize lifecycle engine: %v", err)
	}
	appLogger.Info(context.Background(), "Lifecycle engine initialized")

	// 10. Start
	if err := engine.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Lifecycle engine exited with error")
		log.Fatalf("FATAL: Lifecycle engine exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
