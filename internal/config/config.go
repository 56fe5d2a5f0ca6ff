package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"skindrop/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Refresh  RefreshConfig  `mapstructure:"refresh"`
	Market   MarketConfig   `mapstructure:"market"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Referral ReferralConfig `mapstructure:"referral"`
	Purchase PurchaseConfig `mapstructure:"purchase"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the user ledger.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RefreshConfig governs the snapshot refresh cadence.
type RefreshConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
}

// MarketConfig captures upstream marketplace connectivity.
type MarketConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Secret         string        `mapstructure:"secret"`
	FeedTimeout    time.Duration `mapstructure:"feed_timeout"`
	BalanceTimeout time.Duration `mapstructure:"balance_timeout"`
	SubmitTimeout  time.Duration `mapstructure:"submit_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// CatalogConfig tunes item normalization.
type CatalogConfig struct {
	DataDir  string `mapstructure:"data_dir"`
	StarRate int64  `mapstructure:"star_rate"`
}

// ReferralConfig defines the gift eligibility rules.
type ReferralConfig struct {
	Threshold       int `mapstructure:"threshold"`
	CheapItemsCount int `mapstructure:"cheap_items_count"`
}

// PurchaseConfig bounds deal submission.
type PurchaseConfig struct {
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// AlertingConfig defines operator notification routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram delivery parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("SKINDROP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "skindrop")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("refresh.interval", "5m")
	v.SetDefault("refresh.startup_delay", "0s")

	v.SetDefault("market.base_url", "https://p2p.xpanda.pro/api/v1")
	v.SetDefault("market.feed_timeout", "45s")
	v.SetDefault("market.balance_timeout", "10s")
	v.SetDefault("market.submit_timeout", "30s")
	v.SetDefault("market.user_agent", "skindrop/1.0")

	v.SetDefault("catalog.data_dir", "data")
	v.SetDefault("catalog.star_rate", int64(45))

	v.SetDefault("referral.threshold", 3)
	v.SetDefault("referral.cheap_items_count", 5)

	v.SetDefault("purchase.cooldown", "60s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Refresh.Interval <= 0 {
		return fmt.Errorf("refresh.interval must be greater than zero")
	}
	if c.Market.BaseURL == "" {
		return fmt.Errorf("market.base_url is required")
	}
	if c.Catalog.StarRate <= 0 {
		return fmt.Errorf("catalog.star_rate must be greater than zero")
	}
	if c.Referral.Threshold <= 0 {
		return fmt.Errorf("referral.threshold must be greater than zero")
	}
	if c.Referral.CheapItemsCount <= 0 {
		return fmt.Errorf("referral.cheap_items_count must be greater than zero")
	}
	if c.Purchase.Cooldown <= 0 {
		return fmt.Errorf("purchase.cooldown must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram alerting is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram alerting is enabled")
		}
	}
	return nil
}
