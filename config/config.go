// Package config loads engine configuration from config.json with
// environment variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates all engine settings.
type Config struct {
	Exchange     ExchangeConfig     `json:"exchange"`
	Engine       EngineConfig       `json:"engine"`
	Invalidation InvalidationConfig `json:"invalidation"`
	Cascade      CascadeConfig      `json:"cascade"`
	Sizing       SizingConfig       `json:"sizing"`
	Breaker      BreakerConfig      `json:"circuit_breaker"`
	Signals      SignalConfig       `json:"signals"`
	Database     DatabaseConfig     `json:"database"`
	Redis        RedisConfig        `json:"redis"`
	Server       ServerConfig       `json:"server"`
	Logging      LoggingConfig      `json:"logging"`
}

// ExchangeConfig holds exchange connectivity settings.
type ExchangeConfig struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	TestNet   bool   `json:"testnet"`
	MockMode  bool   `json:"mock_mode"` // simulated exchange, no network
}

// EngineConfig holds the evaluation schedule.
type EngineConfig struct {
	Symbols       []string      `json:"symbols"`
	FastTimeframe string        `json:"fast_timeframe"`
	SlowTimeframe string        `json:"slow_timeframe"`
	CycleInterval time.Duration `json:"cycle_interval"`
	CandleLimit   int           `json:"candle_limit"`
	FetchTimeout  time.Duration `json:"fetch_timeout"`
	DryRun        bool          `json:"dry_run"`
}

// InvalidationConfig holds the per-symbol price floors.
type InvalidationConfig struct {
	Levels     map[string]float64 `json:"levels"`
	FailClosed bool               `json:"fail_closed"`
}

// CascadeConfig holds the exit-policy thresholds.
type CascadeConfig struct {
	HoldThreshold        float64 `json:"hold_threshold"`
	ProtectionMargin     float64 `json:"protection_margin"`
	PartialTakeProfitPct float64 `json:"partial_take_profit_pct"`
}

// SizingConfig holds the entry leverage policy.
type SizingConfig struct {
	HighLeverage    int     `json:"high_leverage"`
	MediumLeverage  int     `json:"medium_leverage"`
	LowLeverage     int     `json:"low_leverage"`
	MinLeverage     int     `json:"min_leverage"`
	MaxLeverage     int     `json:"max_leverage"`
	TradeMargin     float64 `json:"trade_margin"`
	ConfidenceFloor float64 `json:"confidence_floor"`
}

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	Enabled              bool    `json:"enabled"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	MaxDailyLoss         float64 `json:"max_daily_loss"`
	CooldownMinutes      int     `json:"cooldown_minutes"`
}

// SignalConfig holds the external signal source settings.
type SignalConfig struct {
	Endpoint    string        `json:"endpoint"`
	APIKey      string        `json:"api_key"`
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Timeout     time.Duration `json:"timeout"`
}

// DatabaseConfig holds PostgreSQL settings. Disabled leaves the engine
// memory-only.
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds snapshot cache settings.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Enabled        bool     `json:"enabled"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	JSONFormat bool   `json:"json_format"` // JSON lines vs console
}

// DefaultInvalidationLevels are the per-symbol price floors the strategy
// ships with.
func DefaultInvalidationLevels() map[string]float64 {
	return map[string]float64{
		"BTCUSDT":  105000,
		"ETHUSDT":  3800,
		"SOLUSDT":  175,
		"DOGEUSDT": 0.180,
		"XRPUSDT":  2.30,
		"BNBUSDT":  1060,
	}
}

// Load reads config.json from the working directory (when present) and
// applies environment overrides on top.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg, nil
}

func loadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if len(cfg.Engine.Symbols) == 0 {
		cfg.Engine.Symbols = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "DOGEUSDT", "XRPUSDT", "BNBUSDT"}
	}
	if cfg.Engine.FastTimeframe == "" {
		cfg.Engine.FastTimeframe = "15m"
	}
	if cfg.Engine.SlowTimeframe == "" {
		cfg.Engine.SlowTimeframe = "4h"
	}
	if cfg.Engine.CycleInterval <= 0 {
		cfg.Engine.CycleInterval = 3 * time.Minute
	}
	if cfg.Engine.CandleLimit <= 0 {
		cfg.Engine.CandleLimit = 30
	}
	if cfg.Engine.FetchTimeout <= 0 {
		cfg.Engine.FetchTimeout = 10 * time.Second
	}
	if len(cfg.Invalidation.Levels) == 0 {
		cfg.Invalidation.Levels = DefaultInvalidationLevels()
	}
	if cfg.Cascade.HoldThreshold <= 0 {
		cfg.Cascade.HoldThreshold = 0.95
	}
	if cfg.Cascade.ProtectionMargin <= 0 {
		cfg.Cascade.ProtectionMargin = 0.02
	}
	if cfg.Cascade.PartialTakeProfitPct == 0 {
		cfg.Cascade.PartialTakeProfitPct = 0.10
	}
	if cfg.Sizing.HighLeverage <= 0 {
		cfg.Sizing.HighLeverage = 10
	}
	if cfg.Sizing.MediumLeverage <= 0 {
		cfg.Sizing.MediumLeverage = 5
	}
	if cfg.Sizing.LowLeverage <= 0 {
		cfg.Sizing.LowLeverage = 3
	}
	if cfg.Sizing.MinLeverage <= 0 {
		cfg.Sizing.MinLeverage = 1
	}
	if cfg.Sizing.MaxLeverage <= 0 {
		cfg.Sizing.MaxLeverage = 15
	}
	if cfg.Sizing.TradeMargin <= 0 {
		cfg.Sizing.TradeMargin = 100
	}
	if cfg.Sizing.ConfidenceFloor <= 0 {
		cfg.Sizing.ConfidenceFloor = 0.6
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8085
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
}

// applyEnvOverrides lets deployment environments override file settings.
// Credentials are env-first so they never land in config.json.
func applyEnvOverrides(cfg *Config) {
	cfg.Exchange.APIKey = getEnvOrDefault("BINANCE_API_KEY", cfg.Exchange.APIKey)
	cfg.Exchange.SecretKey = getEnvOrDefault("BINANCE_SECRET_KEY", cfg.Exchange.SecretKey)
	cfg.Exchange.TestNet = getEnvBoolOrDefault("BINANCE_TESTNET", cfg.Exchange.TestNet)
	cfg.Exchange.MockMode = getEnvBoolOrDefault("MOCK_MODE", cfg.Exchange.MockMode)

	if symbols := os.Getenv("ENGINE_SYMBOLS"); symbols != "" {
		cfg.Engine.Symbols = strings.Split(symbols, ",")
	}
	cfg.Engine.FastTimeframe = getEnvOrDefault("ENGINE_FAST_TIMEFRAME", cfg.Engine.FastTimeframe)
	cfg.Engine.SlowTimeframe = getEnvOrDefault("ENGINE_SLOW_TIMEFRAME", cfg.Engine.SlowTimeframe)
	cfg.Engine.CycleInterval = getEnvDurationOrDefault("ENGINE_CYCLE_INTERVAL", cfg.Engine.CycleInterval)
	cfg.Engine.DryRun = getEnvBoolOrDefault("ENGINE_DRY_RUN", cfg.Engine.DryRun)

	cfg.Invalidation.FailClosed = getEnvBoolOrDefault("INVALIDATION_FAIL_CLOSED", cfg.Invalidation.FailClosed)

	cfg.Sizing.TradeMargin = getEnvFloatOrDefault("SIZING_TRADE_MARGIN", cfg.Sizing.TradeMargin)
	cfg.Sizing.MaxLeverage = getEnvIntOrDefault("SIZING_MAX_LEVERAGE", cfg.Sizing.MaxLeverage)

	cfg.Signals.Endpoint = getEnvOrDefault("SIGNAL_ENDPOINT", cfg.Signals.Endpoint)
	cfg.Signals.APIKey = getEnvOrDefault("SIGNAL_API_KEY", cfg.Signals.APIKey)
	cfg.Signals.Model = getEnvOrDefault("SIGNAL_MODEL", cfg.Signals.Model)

	cfg.Database.Enabled = getEnvBoolOrDefault("DATABASE_ENABLED", cfg.Database.Enabled)
	cfg.Database.Host = getEnvOrDefault("DATABASE_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvIntOrDefault("DATABASE_PORT", cfg.Database.Port)
	cfg.Database.User = getEnvOrDefault("DATABASE_USER", cfg.Database.User)
	cfg.Database.Password = getEnvOrDefault("DATABASE_PASSWORD", cfg.Database.Password)
	cfg.Database.Database = getEnvOrDefault("DATABASE_NAME", cfg.Database.Database)

	cfg.Redis.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.Redis.Enabled)
	cfg.Redis.Addr = getEnvOrDefault("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)

	cfg.Server.Enabled = getEnvBoolOrDefault("SERVER_ENABLED", cfg.Server.Enabled)
	cfg.Server.Port = getEnvIntOrDefault("SERVER_PORT", cfg.Server.Port)

	cfg.Logging.Level = getEnvOrDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.Logging.JSONFormat)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GenerateSampleConfig writes a commented-by-example config.json.
func GenerateSampleConfig(filename string) error {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Engine.DryRun = true
	cfg.Exchange.TestNet = true
	cfg.Server.Enabled = true

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
