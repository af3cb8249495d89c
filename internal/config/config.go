// Package config defines the top-level configuration for the fair-price bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/fairpricebot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by FAIRBOT_* environment
// variables.
type Config struct {
	Symbol    string          `toml:"symbol"`
	Exchange  ExchangeConfig  `toml:"exchange"`
	Book      BookConfig      `toml:"book"`
	FairPrice FairPriceConfig `toml:"fair_price"`
	Database  DatabaseConfig  `toml:"database"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Archive   ArchiveConfig   `toml:"archive"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ExchangeConfig holds the exchange endpoints.
type ExchangeConfig struct {
	RestHost string `toml:"rest_host"`
	WsHost   string `toml:"ws_host"`
	// VerifySymbol controls whether the symbol is checked against
	// exchangeInfo at startup.
	VerifySymbol bool `toml:"verify_symbol"`
}

// BookConfig holds order-book and synchronization parameters.
type BookConfig struct {
	// MaxDepth caps the number of levels kept per side. 0 keeps everything.
	MaxDepth int `toml:"max_depth"`
	// SnapshotLimit is the depth requested from the REST snapshot endpoint.
	SnapshotLimit int `toml:"snapshot_limit"`
	// BufferLimit bounds how many pre-snapshot events may accumulate before
	// the session is declared desynced.
	BufferLimit int `toml:"buffer_limit"`
}

// FairPriceConfig holds fair-price calculation parameters.
type FairPriceConfig struct {
	// Method selects the calculator: mid-price, volume-weighted, micro-price.
	Method string `toml:"method"`
	// Levels is how many book levels per side feed the volume metrics.
	Levels int `toml:"levels"`
	// ImbalanceThreshold is the |imbalance| above which a directional signal
	// is emitted.
	ImbalanceThreshold float64 `toml:"imbalance_threshold"`
	// AdjustFraction scales the imbalance-based adjustment of the
	// micro-price method.
	AdjustFraction float64 `toml:"adjust_fraction"`
	// ReferenceVolume is the top-of-book volume treated as full confidence
	// by the volume-weighted method.
	ReferenceVolume float64 `toml:"reference_volume"`
	// HistorySize is the rolling window of fair prices kept in memory for
	// volatility and trend stats.
	HistorySize int `toml:"history_size"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds cold-storage archival parameters. Archival only runs
// in full mode.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// NotifyConfig holds notification channel credentials and event filters.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration so TOML files can use "90s" / "5m" strings.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Defaults returns a Config with sensible development defaults. Secrets are
// intentionally left empty.
func Defaults() Config {
	return Config{
		Symbol: "BTCUSDT",
		Exchange: ExchangeConfig{
			RestHost:     "https://api.binance.com",
			WsHost:       "wss://stream.binance.com:9443",
			VerifySymbol: true,
		},
		Book: BookConfig{
			MaxDepth:      1000,
			SnapshotLimit: 1000,
			BufferLimit:   1000,
		},
		FairPrice: FairPriceConfig{
			Method:             string(domain.MethodMicroPrice),
			Levels:             10,
			ImbalanceThreshold: 0.3,
			AdjustFraction:     0.1,
			ReferenceVolume:    100.0,
			HistorySize:        1000,
		},
		Database: DatabaseConfig{
			Port:          5432,
			Database:      "fairpricebot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "fairbot-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 30,
			Interval:      duration{1 * time.Hour},
		},
		Notify: NotifyConfig{
			Events: []string{"desync", "resync", "feed_error"},
		},
		Mode:     "stream",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"stream": true,
	"record": true,
	"full":   true,
	"watch":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: stream, record, full, watch)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if strings.TrimSpace(c.Symbol) == "" {
		errs = append(errs, "symbol must not be empty")
	}

	// Exchange endpoints
	if c.Exchange.RestHost == "" {
		errs = append(errs, "exchange: rest_host must not be empty")
	}
	if c.Exchange.WsHost == "" {
		errs = append(errs, "exchange: ws_host must not be empty")
	}

	// Book
	if c.Book.MaxDepth < 0 {
		errs = append(errs, "book: max_depth must be >= 0")
	}
	if c.Book.SnapshotLimit < 1 {
		errs = append(errs, "book: snapshot_limit must be >= 1")
	}
	if c.Book.BufferLimit < 1 {
		errs = append(errs, "book: buffer_limit must be >= 1")
	}

	// Fair price
	if _, err := domain.ParseMethod(c.FairPrice.Method); err != nil {
		errs = append(errs, fmt.Sprintf("fair_price: %v", err))
	}
	if c.FairPrice.Levels < 1 {
		errs = append(errs, "fair_price: levels must be >= 1")
	}
	if c.FairPrice.ImbalanceThreshold < 0 || c.FairPrice.ImbalanceThreshold > 1 {
		errs = append(errs, "fair_price: imbalance_threshold must be in [0, 1]")
	}
	if c.FairPrice.AdjustFraction < 0 {
		errs = append(errs, "fair_price: adjust_fraction must be >= 0")
	}
	if c.FairPrice.ReferenceVolume <= 0 {
		errs = append(errs, "fair_price: reference_volume must be > 0")
	}
	if c.FairPrice.HistorySize < 1 {
		errs = append(errs, "fair_price: history_size must be >= 1")
	}

	// Database is only required in modes that persist results.
	needsDB := c.Mode == "record" || c.Mode == "full"
	if needsDB {
		if strings.TrimSpace(c.Database.DSN) == "" {
			if c.Database.Host == "" {
				errs = append(errs, "database: host must not be empty (or set database.dsn)")
			}
			if c.Database.Port <= 0 || c.Database.Port > 65535 {
				errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
			}
			if c.Database.Database == "" {
				errs = append(errs, "database: database must not be empty")
			}
		}
		if c.Database.PoolMaxConns < 1 {
			errs = append(errs, "database: pool_max_conns must be >= 1")
		}
		if c.Database.PoolMinConns < 0 {
			errs = append(errs, "database: pool_min_conns must be >= 0")
		}
		if c.Database.PoolMinConns > c.Database.PoolMaxConns {
			errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Archive needs S3 and a persistent store; only full mode runs it.
	if c.Archive.Enabled {
		if c.Mode != "full" {
			errs = append(errs, "archive: requires mode full")
		}
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration < time.Minute {
			errs = append(errs, "archive: interval must be >= 1m")
		}
	}

	// Notify — token and chat ID go together.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
