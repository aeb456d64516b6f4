package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tradeRoom/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration.
type Config struct {
	// Binance API (public endpoints only; keys optional)
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Room
	RoomID          string
	Symbols         []string // Symbols the room trades and subscribes to
	StartingBalance float64  // Virtual currency seeded into a new room

	// Ledger gating policy
	PriceCacheTTL        time.Duration // In-memory recompute staleness window
	PriceCacheGate       float64       // Relative price move below which the cache answers
	PricePersistGate     float64       // Relative move that forces a durable write
	PricePersistInterval time.Duration // Max age of the last durable write

	// Funding policy
	FundingRefreshInterval time.Duration // Global throttle on rate fetches
	FundingCheckInterval   time.Duration // How often the boundary is checked

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel

	// Connection / retry settings
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	RetryDelay           time.Duration
	MaxRetryAttempts     int
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string

	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true)

	cfg.RoomID = getEnv("ROOM_ID", "lobby")
	symbols := getEnv("SYMBOLS", "BTCUSDT,ETHUSDT")
	for _, s := range strings.Split(symbols, ",") {
		if s = strings.TrimSpace(s); s != "" {
			cfg.Symbols = append(cfg.Symbols, strings.ToUpper(s))
		}
	}
	if len(cfg.Symbols) == 0 {
		errs = append(errs, "SYMBOLS must name at least one symbol")
	}

	cfg.StartingBalance, err = getEnvAsFloatRequired("STARTING_BALANCE", 10000.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STARTING_BALANCE: %v", err))
	} else if cfg.StartingBalance <= 0 {
		errs = append(errs, "STARTING_BALANCE must be positive")
	}

	// Ledger gates; defaults match the observed production policy.
	cfg.PriceCacheTTL = getEnvAsDuration("PRICE_CACHE_TTL", 5*time.Second)
	cfg.PriceCacheGate = getEnvAsFloat("PRICE_CACHE_GATE", 0.001)
	cfg.PricePersistGate = getEnvAsFloat("PRICE_PERSIST_GATE", 0.005)
	cfg.PricePersistInterval = getEnvAsDuration("PRICE_PERSIST_INTERVAL", 10*time.Second)
	if cfg.PriceCacheTTL <= 0 || cfg.PricePersistInterval <= 0 {
		errs = append(errs, "cache TTL and persist interval must be positive")
	}
	if cfg.PriceCacheGate <= 0 || cfg.PriceCacheGate >= 1 {
		errs = append(errs, "PRICE_CACHE_GATE must be between 0 and 1 (exclusive)")
	}
	if cfg.PricePersistGate <= 0 || cfg.PricePersistGate >= 1 {
		errs = append(errs, "PRICE_PERSIST_GATE must be between 0 and 1 (exclusive)")
	}

	cfg.FundingRefreshInterval = getEnvAsDuration("FUNDING_REFRESH_INTERVAL", 30*time.Minute)
	cfg.FundingCheckInterval = getEnvAsDuration("FUNDING_CHECK_INTERVAL", time.Minute)
	if cfg.FundingRefreshInterval <= 0 || cfg.FundingCheckInterval <= 0 {
		errs = append(errs, "funding intervals must be positive")
	}

	cfg.DBPath = getEnv("DB_PATH", "./data/trade_room.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	cfg.ReconnectDelay = getEnvAsDuration("RECONNECT_DELAY", 5*time.Second)
	if cfg.ReconnectDelay <= 0 {
		errs = append(errs, "RECONNECT_DELAY must be positive")
	}
	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}
	cfg.RetryDelay = getEnvAsDuration("RETRY_DELAY", 2*time.Second)
	if cfg.RetryDelay <= 0 {
		errs = append(errs, "RETRY_DELAY must be positive")
	}
	cfg.MaxRetryAttempts = getEnvAsInt("MAX_RETRY_ATTEMPTS", 3)
	if cfg.MaxRetryAttempts <= 0 {
		errs = append(errs, "MAX_RETRY_ATTEMPTS must be positive")
	}

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
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
