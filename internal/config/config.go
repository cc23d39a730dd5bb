// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aristath/autopilot/internal/modules/market_hours"
)

// Config holds application configuration
type Config struct {
	DataDir      string // Base directory for the database (always absolute)
	Port         int
	LogLevel     string
	DevMode      bool
	FrontendURL  string
	BrokerURL    string // Broker gateway microservice
	BrokerAPIKey string
	Currency     string

	Scheduler SchedulerConfig
	Market    MarketConfig
	Execution ExecutionConfig
	Yahoo     YahooConfig
}

// SchedulerConfig holds job timing knobs
type SchedulerConfig struct {
	TradingIntervalMinutes    int     `yaml:"trading_interval_minutes"`
	SnapshotIntervalSeconds   int     `yaml:"snapshot_interval_seconds"`
	ReflectionTradesThreshold int     `yaml:"reflection_trades_threshold"`
	DailyReflection           string  `yaml:"daily_reflection"`
	WeeklyReflection          string  `yaml:"weekly_reflection"`
	InitialPortfolioValue     float64 `yaml:"initial_portfolio_value"`
}

// MarketConfig controls the market clock
type MarketConfig struct {
	Timezone string `yaml:"timezone"`
	Holidays bool   `yaml:"holidays"`
}

// ExecutionConfig controls the broker bridge
type ExecutionConfig struct {
	OrderTimeout      time.Duration `yaml:"order_timeout"`
	OrderPollInterval time.Duration `yaml:"order_poll_interval"`
	PriceCooldown     time.Duration `yaml:"price_cooldown"`
}

// YahooConfig controls the fallback price source
type YahooConfig struct {
	BaseURL           string `yaml:"base_url"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

// fileConfig is the optional YAML overlay. Only non-zero values override.
type fileConfig struct {
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Market    MarketConfig    `yaml:"market"`
	Execution ExecutionConfig `yaml:"execution"`
	Yahoo     YahooConfig     `yaml:"yahoo"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("AUTOPILOT_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:      absDataDir,
		Port:         getEnvAsInt("PORT", 8000),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		FrontendURL:  getEnv("FRONTEND_URL", "http://localhost:5173"),
		BrokerURL:    getEnv("BROKER_URL", "http://localhost:9002"),
		BrokerAPIKey: getEnv("BROKER_API_KEY", ""),
		Currency:     getEnv("ACCOUNT_CURRENCY", "USD"),
		Scheduler: SchedulerConfig{
			TradingIntervalMinutes:    getEnvAsInt("TRADING_INTERVAL_MINUTES", 30),
			SnapshotIntervalSeconds:   getEnvAsInt("SNAPSHOT_INTERVAL_SECONDS", 60),
			ReflectionTradesThreshold: getEnvAsInt("REFLECTION_TRADES_THRESHOLD", 5),
			DailyReflection:           getEnv("DAILY_REFLECTION_SCHEDULE", "5 16 * * *"),
			WeeklyReflection:          getEnv("WEEKLY_REFLECTION_SCHEDULE", "30 16 * * FRI"),
			InitialPortfolioValue:     getEnvAsFloat("INITIAL_PORTFOLIO_VALUE", 0),
		},
		Market: MarketConfig{
			Timezone: getEnv("MARKET_TIMEZONE", market_hours.DefaultTimezone),
			Holidays: getEnvAsBool("MARKET_HOLIDAYS", false),
		},
		Execution: ExecutionConfig{
			OrderTimeout:      getEnvAsDuration("ORDER_TIMEOUT", 30*time.Second),
			OrderPollInterval: getEnvAsDuration("ORDER_POLL_INTERVAL", 500*time.Millisecond),
			PriceCooldown:     getEnvAsDuration("PRICE_COOLDOWN", 60*time.Minute),
		},
		Yahoo: YahooConfig{
			BaseURL:           getEnv("YAHOO_BASE_URL", ""),
			RequestsPerMinute: getEnvAsInt("YAHOO_RATE_LIMIT_PER_MINUTE", 60),
		},
	}

	if path := getEnv("AUTOPILOT_CONFIG", ""); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyFile overlays the YAML file at path onto the configuration
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	s := fc.Scheduler
	if s.TradingIntervalMinutes != 0 {
		c.Scheduler.TradingIntervalMinutes = s.TradingIntervalMinutes
	}
	if s.SnapshotIntervalSeconds != 0 {
		c.Scheduler.SnapshotIntervalSeconds = s.SnapshotIntervalSeconds
	}
	if s.ReflectionTradesThreshold != 0 {
		c.Scheduler.ReflectionTradesThreshold = s.ReflectionTradesThreshold
	}
	if s.DailyReflection != "" {
		c.Scheduler.DailyReflection = s.DailyReflection
	}
	if s.WeeklyReflection != "" {
		c.Scheduler.WeeklyReflection = s.WeeklyReflection
	}
	if s.InitialPortfolioValue != 0 {
		c.Scheduler.InitialPortfolioValue = s.InitialPortfolioValue
	}

	if fc.Market.Timezone != "" {
		c.Market.Timezone = fc.Market.Timezone
	}
	if fc.Market.Holidays {
		c.Market.Holidays = true
	}

	e := fc.Execution
	if e.OrderTimeout != 0 {
		c.Execution.OrderTimeout = e.OrderTimeout
	}
	if e.OrderPollInterval != 0 {
		c.Execution.OrderPollInterval = e.OrderPollInterval
	}
	if e.PriceCooldown != 0 {
		c.Execution.PriceCooldown = e.PriceCooldown
	}

	if fc.Yahoo.BaseURL != "" {
		c.Yahoo.BaseURL = fc.Yahoo.BaseURL
	}
	if fc.Yahoo.RequestsPerMinute != 0 {
		c.Yahoo.RequestsPerMinute = fc.Yahoo.RequestsPerMinute
	}

	return nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Scheduler.TradingIntervalMinutes <= 0 {
		return fmt.Errorf("trading interval must be positive, got %d minutes", c.Scheduler.TradingIntervalMinutes)
	}
	if c.Scheduler.SnapshotIntervalSeconds <= 0 {
		return fmt.Errorf("snapshot interval must be positive, got %d seconds", c.Scheduler.SnapshotIntervalSeconds)
	}
	if c.Scheduler.ReflectionTradesThreshold <= 0 {
		return fmt.Errorf("reflection trades threshold must be positive, got %d", c.Scheduler.ReflectionTradesThreshold)
	}
	if c.Execution.OrderTimeout <= 0 || c.Execution.OrderPollInterval <= 0 {
		return fmt.Errorf("order timeout and poll interval must be positive")
	}
	if _, err := time.LoadLocation(c.Market.Timezone); err != nil {
		return fmt.Errorf("invalid market timezone %q: %w", c.Market.Timezone, err)
	}
	// Broker credentials are optional: without them the bridge stays disconnected
	// and prices come from the fallback source.
	return nil
}

// TradingInterval returns the trading loop period
func (c *Config) TradingInterval() time.Duration {
	return time.Duration(c.Scheduler.TradingIntervalMinutes) * time.Minute
}

// SnapshotInterval returns the portfolio snapshot period
func (c *Config) SnapshotInterval() time.Duration {
	return time.Duration(c.Scheduler.SnapshotIntervalSeconds) * time.Second
}

// DatabasePath returns the SQLite file location
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "autopilot.db")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("45s") or a bare number of seconds
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
