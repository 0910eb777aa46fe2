// Copybot - Copy-trading bot for Polymarket
//
// Watches a set of profitable wallets and replicates their trades at a
// fraction of the size, under a strict risk budget:
// 1. Poll the data API for new trades by watched wallets (on-chain log
//    scan as fallback)
// 2. Score each trade's confidence and drop the noise
// 3. Size the replica from balance, proportion, and absolute caps
// 4. Place the order and book a position with stop loss / take profit
// 5. Exit on SL/TP/max-hold; realized P&L feeds the circuit breaker
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/winder87-stack/-polymarket-copy-bot-sub001/exchange"
	"github.com/winder87-stack/-polymarket-copy-bot-sub001/executor"
	"github.com/winder87-stack/-polymarket-copy-bot-sub001/internal/config"
	"github.com/winder87-stack/-polymarket-copy-bot-sub001/monitor"
	"github.com/winder87-stack/-polymarket-copy-bot-sub001/notify"
	"github.com/winder87-stack/-polymarket-copy-bot-sub001/positions"
	"github.com/winder87-stack/-polymarket-copy-bot-sub001/ratelimit"
	"github.com/winder87-stack/-polymarket-copy-bot-sub001/risk"
	"github.com/winder87-stack/-polymarket-copy-bot-sub001/storage"
	"github.com/winder87-stack/-polymarket-copy-bot-sub001/types"
)

const version = "1.0.0"

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("version", version).
		Int("wallets", len(cfg.WatchedWallets)).
		Bool("dry_run", cfg.DryRun).
		Msg("⚡ Copybot starting...")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// ====== CORE COMPONENTS ======

	// 1. Execution client - orders, balance, market data
	exch, err := exchange.NewClient(exchange.Config{
		CLOBURL:    cfg.CLOBURL,
		GammaURL:   cfg.GammaURL,
		APIKey:     cfg.CLOBApiKey,
		APISecret:  cfg.CLOBApiSecret,
		Passphrase: cfg.CLOBPassphrase,
		PrivateKey: cfg.WalletPrivateKey,
		DryRun:     cfg.DryRun,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize execution client")
	}

	// 2. Live price feed - WebSocket into the price cache
	feed := exchange.NewPriceFeed(cfg.WSURL)
	feed.Start()

	// 3. Circuit breaker - restored from the database
	breaker, err := risk.NewCircuitBreaker(risk.BreakerConfig{
		MaxDailyLoss:         cfg.MaxDailyLoss,
		MaxConsecutiveLosses: cfg.MaxConsecutiveLosses,
		MaxFailureRate:       cfg.MaxFailureRate,
		FailureRateWindow:    cfg.FailureRateWindow,
		Cooldown:             cfg.BreakerCooldown,
	}, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to restore circuit breaker state")
	}

	// 4. Position store + restart recovery
	store := positions.NewStore()
	recovered, err := db.GetOpenPositions()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load persisted positions")
	}
	for i := range recovered {
		if err := store.Insert(&recovered[i]); err != nil {
			log.Warn().Err(err).Str("key", recovered[i].Key).Msg("⚠️ Skipping duplicate persisted position")
			continue
		}
		feed.Watch(recovered[i].TokenID)
	}
	if len(recovered) > 0 {
		log.Info().Int("count", len(recovered)).Msg("♻️ Recovered open positions")
	}

	// 5. Trade source - data API primary, on-chain log scan fallback
	indexer := monitor.NewIndexerClient(cfg.DataAPIURL, 0)

	var fallback monitor.TransactionSource
	if cfg.PolygonRPC != "" {
		chain, err := monitor.NewChainFallback(cfg.PolygonRPC, 0)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ On-chain fallback unavailable")
		} else {
			fallback = chain
			log.Info().Msg("⛓️ On-chain fallback connected (Polygon)")
		}
	}

	// 6. Wallet monitor
	limiter := ratelimit.New(ratelimit.Config{
		BaseDelay: cfg.PollBaseDelay,
		MaxDelay:  cfg.PollMaxDelay,
		Window:    cfg.PollBaseDelay * 60,
	})

	monCfg := monitor.DefaultConfig()
	monCfg.MinConfidence = cfg.MinConfidence
	monCfg.ReorgWindow = cfg.ReorgWindow
	monCfg.DedupWindow = cfg.DedupWindow
	monCfg.FallbackAfter = cfg.FallbackAfter

	mon := monitor.New(monCfg, cfg.WatchedWallets, indexer, fallback,
		limiter, exch, monitor.NewDefaultScorer())

	// 7. Telegram - alerts and operator control
	var notifier notify.Notifier = notify.Noop{}
	var tgBot *notify.TelegramBot
	if cfg.TelegramToken != "" {
		status := &statusProvider{exch: exch, store: store, breaker: breaker}
		tgBot, err = notify.NewTelegramBot(cfg.TelegramToken, cfg.TelegramChatID, status, breaker)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Telegram bot")
		}
		tgBot.Start()
		notifier = tgBot
	} else {
		log.Warn().Msg("⚠️ No TELEGRAM_BOT_TOKEN - alerts disabled")
	}

	breaker.OnTrip(func(reason string) {
		notifier.Notify(notify.SeverityCritical, "Circuit breaker tripped: "+reason)
	})
	breaker.OnReset(func(reason string) {
		notifier.Notify(notify.SeverityInfo, "Circuit breaker reset: "+reason)
	})

	// 8. Executor and position manager
	exec := executor.New(executor.Config{
		StopLossPct:   cfg.StopLossPct,
		TakeProfitPct: cfg.TakeProfitPct,
	}, exch, breaker, risk.NewSizer(risk.SizerConfig{
		RiskFraction:       cfg.RiskFraction,
		ProportionFraction: cfg.ProportionFraction,
		MaxSize:            cfg.MaxPositionSize,
		MinSize:            cfg.MinPositionSize,
		Digits:             2,
	}), store, feed, db, notifier)

	manager := positions.NewManager(positions.ManagerConfig{
		CheckInterval: cfg.CheckInterval,
		MaxHold:       cfg.MaxHold,
	}, store, exch, feed, breaker, notifier, db)

	// ====== PIPELINE ======

	signals := make(chan types.TradeSignal, 100)
	go mon.Run(ctx, cfg.PollInterval, signals)
	go manager.Run(ctx)
	go func() {
		for sig := range signals {
			res := exec.Execute(ctx, sig)
			if res.Status == types.StatusRejected {
				notifier.Notify(notify.SeverityInfo,
					"Skipped "+string(sig.Side)+" on "+sig.MarketID+": "+res.Reason)
			}
			if err := db.LogExecution(sig, res); err != nil {
				log.Error().Err(err).Str("tx", sig.TxHash).Msg("Failed to log execution")
			}
		}
	}()

	// ====== STARTUP COMPLETE ======
	log.Info().Msg("✅ All systems online")
	log.Info().Msg("")
	log.Info().Msg("╔══════════════════════════════════════════╗")
	log.Info().Msg("║        COPY TRADING ACTIVE               ║")
	log.Info().Msg("║                                          ║")
	log.Info().Msgf("║  Wallets watched: %-22d ║", len(cfg.WatchedWallets))
	log.Info().Msg("║  → Detect trades by watched wallets      ║")
	log.Info().Msg("║  → Replicate at a fraction of the size   ║")
	log.Info().Msg("║  → Exit on SL / TP / max hold            ║")
	log.Info().Msg("╚══════════════════════════════════════════╝")
	log.Info().Msg("")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("🛑 Received shutdown signal")
	case <-ctx.Done():
		log.Info().Msg("🛑 Context cancelled")
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down...")

	cancel()
	if tgBot != nil {
		tgBot.Stop()
	}
	mon.Stop()
	feed.Stop()

	log.Info().Msg("👋 Goodbye!")
}

// statusProvider adapts live components to the Telegram status interface
type statusProvider struct {
	exch    *exchange.Client
	store   *positions.Store
	breaker *risk.CircuitBreaker
}

func (s *statusProvider) GetBalance() (decimal.Decimal, error) {
	return s.exch.GetBalance(context.Background())
}

func (s *statusProvider) GetOpenPositions() []types.Position {
	return s.store.List()
}

func (s *statusProvider) GetTradingStats() (int64, int64, decimal.Decimal) {
	stats := s.store.GetStats()
	return stats.TotalOpened, stats.TotalClosed, stats.RealizedPnL
}

func (s *statusProvider) IsPaused() (bool, string) {
	state := s.breaker.GetState()
	return state.Tripped, state.Reason
}
