package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Tickers      []string          `mapstructure:"tickers"`
	ThresholdPct float64           `mapstructure:"threshold_pct"`
	StateFile    string            `mapstructure:"state_file"`
	MarketHours  MarketHoursConfig `mapstructure:"market_hours"`
	Test         TestConfig        `mapstructure:"test"`
	News         NewsConfig        `mapstructure:"news"`
	Ntfy         NtfyConfig        `mapstructure:"ntfy"`
	Telegram     TelegramConfig    `mapstructure:"telegram"`
	History      HistoryConfig     `mapstructure:"history"`
	Company      CompanyConfig     `mapstructure:"company"`
	Market       MarketConfig      `mapstructure:"market"`
	Logging      LoggingConfig     `mapstructure:"logging"`
}

// MarketHoursConfig holds the trading-window gate configuration
type MarketHoursConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Timezone         string `mapstructure:"tz"`
	StartHour        int    `mapstructure:"start_hour"`
	EndHour          int    `mapstructure:"end_hour"`
	DaysMonToFriOnly bool   `mapstructure:"days_mon_to_fri_only"`
}

// TestConfig holds test-run overrides
type TestConfig struct {
	Enabled           bool     `mapstructure:"enabled"`
	BypassMarketHours bool     `mapstructure:"bypass_market_hours"`
	ForceDeltaPct     *float64 `mapstructure:"force_delta_pct"`
}

// NewsConfig holds headline enrichment configuration
type NewsConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Limit         int           `mapstructure:"limit"`
	LookbackHours int           `mapstructure:"lookback_hours"`
	Lang          string        `mapstructure:"lang"`
	Country       string        `mapstructure:"country"`
	Endpoint      string        `mapstructure:"endpoint"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// NtfyConfig holds push notification configuration
type NtfyConfig struct {
	Server         string        `mapstructure:"server"`
	Topic          string        `mapstructure:"topic"`
	Priority       string        `mapstructure:"priority"`
	Markdown       bool          `mapstructure:"markdown"`
	DryRun         bool          `mapstructure:"dry_run"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// TelegramConfig holds the optional Telegram mirror channel configuration
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// HistoryConfig holds the optional alert-history log configuration
type HistoryConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	DBPath    string `mapstructure:"db_path"`
	MaxAlerts int    `mapstructure:"max_alerts"`
}

// CompanyConfig holds the company-name resolver configuration
type CompanyConfig struct {
	CacheFile  string        `mapstructure:"cache_file"`
	Endpoint   string        `mapstructure:"endpoint"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// MarketConfig holds the price source configuration
type MarketConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	setDefaults(v)

	v.SetEnvPrefix("STOCKALERTS")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("threshold_pct", 3.0)
	v.SetDefault("state_file", "./data/alert-state.json")

	// Market hours defaults (Xetra/Tradegate window)
	v.SetDefault("market_hours.enabled", true)
	v.SetDefault("market_hours.tz", "Europe/Berlin")
	v.SetDefault("market_hours.start_hour", 8)
	v.SetDefault("market_hours.end_hour", 22)
	v.SetDefault("market_hours.days_mon_to_fri_only", true)

	// Test defaults
	v.SetDefault("test.enabled", false)
	v.SetDefault("test.bypass_market_hours", false)

	// News defaults
	v.SetDefault("news.enabled", true)
	v.SetDefault("news.limit", 2)
	v.SetDefault("news.lookback_hours", 12)
	v.SetDefault("news.lang", "de")
	v.SetDefault("news.country", "DE")
	v.SetDefault("news.endpoint", "https://news.google.com/rss/search")
	v.SetDefault("news.timeout", "5s")

	// Ntfy defaults
	v.SetDefault("ntfy.server", "https://ntfy.sh")
	v.SetDefault("ntfy.priority", "high")
	v.SetDefault("ntfy.markdown", true)
	v.SetDefault("ntfy.dry_run", false)
	v.SetDefault("ntfy.timeout", "20s")
	v.SetDefault("ntfy.max_retries", 3)
	v.SetDefault("ntfy.retry_delay_base", "1s")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// History defaults
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.db_path", "./data/history.db")
	v.SetDefault("history.max_alerts", 1000)

	// Company resolver defaults
	v.SetDefault("company.cache_file", "./data/company-cache.json")
	v.SetDefault("company.endpoint", "https://query1.finance.yahoo.com")
	v.SetDefault("company.timeout", "10s")
	v.SetDefault("company.max_retries", 2)

	// Market data defaults
	v.SetDefault("market.endpoint", "https://query1.finance.yahoo.com")
	v.SetDefault("market.timeout", "15s")
	v.SetDefault("market.max_retries", 3)
	v.SetDefault("market.retry_delay_base", "1s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if len(c.Tickers) == 0 {
		return fmt.Errorf("tickers must contain at least one symbol")
	}
	for _, t := range c.Tickers {
		if t == "" {
			return fmt.Errorf("tickers must not contain empty symbols")
		}
	}
	if c.ThresholdPct <= 0 {
		return fmt.Errorf("threshold_pct must be positive")
	}
	if c.StateFile == "" {
		return fmt.Errorf("state_file is required")
	}

	// Validate market hours config
	if c.MarketHours.Enabled {
		if _, err := time.LoadLocation(c.MarketHours.Timezone); err != nil {
			return fmt.Errorf("market_hours.tz is not a valid IANA timezone: %w", err)
		}
		if c.MarketHours.StartHour < 0 || c.MarketHours.StartHour > 23 {
			return fmt.Errorf("market_hours.start_hour must be between 0 and 23")
		}
		if c.MarketHours.EndHour < 1 || c.MarketHours.EndHour > 24 {
			return fmt.Errorf("market_hours.end_hour must be between 1 and 24")
		}
		if c.MarketHours.StartHour >= c.MarketHours.EndHour {
			return fmt.Errorf("market_hours.start_hour must be before end_hour")
		}
	}

	// Validate news config
	if c.News.Enabled {
		if c.News.Limit < 1 {
			return fmt.Errorf("news.limit must be at least 1")
		}
		if c.News.LookbackHours < 1 {
			return fmt.Errorf("news.lookback_hours must be at least 1")
		}
		if c.News.Lang == "" || c.News.Country == "" {
			return fmt.Errorf("news.lang and news.country are required when news is enabled")
		}
		if c.News.Endpoint == "" {
			return fmt.Errorf("news.endpoint is required when news is enabled")
		}
	}

	// Validate ntfy config
	if c.Ntfy.Server == "" {
		return fmt.Errorf("ntfy.server is required")
	}
	if c.Ntfy.Topic == "" && !c.Ntfy.DryRun {
		return fmt.Errorf("ntfy.topic is required unless ntfy.dry_run is set")
	}
	validPriorities := map[string]bool{"min": true, "low": true, "default": true, "high": true, "urgent": true}
	if !validPriorities[c.Ntfy.Priority] {
		return fmt.Errorf("ntfy.priority must be one of: min, low, default, high, urgent")
	}

	// Validate telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate history config
	if c.History.Enabled {
		if c.History.DBPath == "" {
			return fmt.Errorf("history.db_path is required when history is enabled")
		}
		if c.History.MaxAlerts < 1 {
			return fmt.Errorf("history.max_alerts must be at least 1")
		}
	}

	// Validate logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, console")
	}

	return nil
}
