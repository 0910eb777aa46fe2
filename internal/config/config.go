package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the bot
type Config struct {
	// Telegram (optional; alerts disabled when token is empty)
	TelegramToken  string
	TelegramChatID int64

	// Mode
	DryRun bool
	Debug  bool

	// Watched wallets
	WatchedWallets []string
	PollInterval   time.Duration
	MinConfidence  float64
	ReorgWindow    time.Duration
	DedupWindow    time.Duration
	FallbackAfter  int

	// Endpoints
	DataAPIURL string
	GammaURL   string
	CLOBURL    string
	WSURL      string
	PolygonRPC string // enables the on-chain fallback when set

	// CLOB Credentials
	CLOBApiKey     string
	CLOBApiSecret  string
	CLOBPassphrase string

	// Wallet
	WalletPrivateKey string

	// Rate limiting
	PollBaseDelay time.Duration
	PollMaxDelay  time.Duration

	// Sizing
	RiskFraction       decimal.Decimal // fraction of balance per trade
	ProportionFraction decimal.Decimal // fraction of the copied trade's size
	MaxPositionSize    decimal.Decimal
	MinPositionSize    decimal.Decimal

	// Circuit breaker
	MaxDailyLoss         decimal.Decimal
	MaxConsecutiveLosses int
	MaxFailureRate       float64
	FailureRateWindow    int
	BreakerCooldown      time.Duration

	// Exits
	StopLossPct   decimal.Decimal
	TakeProfitPct decimal.Decimal
	MaxHold       time.Duration
	CheckInterval time.Duration

	// Database
	DatabasePath string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		// Telegram
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		// Mode
		DryRun: getEnvBool("DRY_RUN", true),
		Debug:  getEnvBool("DEBUG", false),

		// Monitoring
		PollInterval:  getEnvDuration("POLL_INTERVAL", 3*time.Second),
		MinConfidence: getEnvFloat("MIN_CONFIDENCE", 0.4),
		ReorgWindow:   getEnvDuration("REORG_WINDOW", 30*time.Second),
		DedupWindow:   getEnvDuration("DEDUP_WINDOW", time.Hour),
		FallbackAfter: getEnvInt("FALLBACK_AFTER", 3),

		// Endpoints
		DataAPIURL: getEnv("DATA_API_URL", "https://data-api.polymarket.com"),
		GammaURL:   getEnv("GAMMA_API_URL", "https://gamma-api.polymarket.com"),
		CLOBURL:    getEnv("CLOB_API_URL", "https://clob.polymarket.com"),
		WSURL:      getEnv("CLOB_WS_URL", ""),
		PolygonRPC: os.Getenv("POLYGON_RPC_URL"),

		// CLOB Credentials
		CLOBApiKey:     os.Getenv("CLOB_API_KEY"),
		CLOBApiSecret:  os.Getenv("CLOB_API_SECRET"),
		CLOBPassphrase: os.Getenv("CLOB_PASSPHRASE"),

		// Wallet
		WalletPrivateKey: os.Getenv("WALLET_PRIVATE_KEY"),

		// Rate limiting
		PollBaseDelay: getEnvDuration("POLL_BASE_DELAY", time.Second),
		PollMaxDelay:  getEnvDuration("POLL_MAX_DELAY", time.Minute),

		// Sizing
		RiskFraction:       getEnvDecimal("RISK_FRACTION", decimal.NewFromFloat(0.01)),
		ProportionFraction: getEnvDecimal("PROPORTION_FRACTION", decimal.NewFromFloat(0.10)),
		MaxPositionSize:    getEnvDecimal("MAX_POSITION_SIZE", decimal.NewFromInt(500)),
		MinPositionSize:    getEnvDecimal("MIN_POSITION_SIZE", decimal.NewFromInt(1)),

		// Circuit breaker
		MaxDailyLoss:         getEnvDecimal("MAX_DAILY_LOSS", decimal.NewFromInt(100)),
		MaxConsecutiveLosses: getEnvInt("MAX_CONSECUTIVE_LOSSES", 5),
		MaxFailureRate:       getEnvFloat("MAX_FAILURE_RATE", 0.7),
		FailureRateWindow:    getEnvInt("FAILURE_RATE_WINDOW", 20),
		BreakerCooldown:      getEnvDuration("BREAKER_COOLDOWN", time.Hour),

		// Exits
		StopLossPct:   getEnvDecimal("STOP_LOSS_PCT", decimal.NewFromFloat(0.20)),
		TakeProfitPct: getEnvDecimal("TAKE_PROFIT_PCT", decimal.NewFromFloat(0.30)),
		MaxHold:       getEnvDuration("MAX_HOLD", 24*time.Hour),
		CheckInterval: getEnvDuration("CHECK_INTERVAL", 10*time.Second),

		// Database
		DatabasePath: getEnv("DATABASE_PATH", "data/copybot.db"),
	}

	// Parse watched wallets
	raw := os.Getenv("WATCHED_WALLETS")
	for _, w := range strings.Split(raw, ",") {
		if w = strings.TrimSpace(w); w != "" {
			cfg.WatchedWallets = append(cfg.WatchedWallets, strings.ToLower(w))
		}
	}

	// Parse chat ID
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	// Validate required fields
	if len(cfg.WatchedWallets) == 0 {
		return nil, fmt.Errorf("WATCHED_WALLETS is required")
	}
	if !cfg.DryRun && cfg.WalletPrivateKey == "" {
		return nil, fmt.Errorf("WALLET_PRIVATE_KEY is required when DRY_RUN=false")
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID == 0 {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}

	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
