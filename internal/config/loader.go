package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies FAIRBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known FAIRBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Symbol, "FAIRBOT_SYMBOL")
	setStr(&cfg.Exchange.RestHost, "FAIRBOT_EXCHANGE_REST_HOST")
	setStr(&cfg.Exchange.WsHost, "FAIRBOT_EXCHANGE_WS_HOST")
	setBool(&cfg.Exchange.VerifySymbol, "FAIRBOT_EXCHANGE_VERIFY_SYMBOL")

	// ── Book ──
	setInt(&cfg.Book.MaxDepth, "FAIRBOT_BOOK_MAX_DEPTH")
	setInt(&cfg.Book.SnapshotLimit, "FAIRBOT_BOOK_SNAPSHOT_LIMIT")
	setInt(&cfg.Book.BufferLimit, "FAIRBOT_BOOK_BUFFER_LIMIT")

	// ── Fair price ──
	setStr(&cfg.FairPrice.Method, "FAIRBOT_FAIR_PRICE_METHOD")
	setInt(&cfg.FairPrice.Levels, "FAIRBOT_FAIR_PRICE_LEVELS")
	setFloat64(&cfg.FairPrice.ImbalanceThreshold, "FAIRBOT_FAIR_PRICE_IMBALANCE_THRESHOLD")
	setFloat64(&cfg.FairPrice.AdjustFraction, "FAIRBOT_FAIR_PRICE_ADJUST_FRACTION")
	setFloat64(&cfg.FairPrice.ReferenceVolume, "FAIRBOT_FAIR_PRICE_REFERENCE_VOLUME")
	setInt(&cfg.FairPrice.HistorySize, "FAIRBOT_FAIR_PRICE_HISTORY_SIZE")

	// ── Database ──
	setStr(&cfg.Database.DSN, "FAIRBOT_DATABASE_DSN")
	setStr(&cfg.Database.Host, "FAIRBOT_DATABASE_HOST")
	setInt(&cfg.Database.Port, "FAIRBOT_DATABASE_PORT")
	setStr(&cfg.Database.Database, "FAIRBOT_DATABASE_DATABASE")
	setStr(&cfg.Database.User, "FAIRBOT_DATABASE_USER")
	setStr(&cfg.Database.Password, "FAIRBOT_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "FAIRBOT_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "FAIRBOT_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "FAIRBOT_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "FAIRBOT_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "FAIRBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FAIRBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FAIRBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FAIRBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "FAIRBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "FAIRBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "FAIRBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "FAIRBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "FAIRBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "FAIRBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "FAIRBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "FAIRBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "FAIRBOT_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "FAIRBOT_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "FAIRBOT_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "FAIRBOT_ARCHIVE_INTERVAL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "FAIRBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "FAIRBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "FAIRBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "FAIRBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "FAIRBOT_MODE")
	setStr(&cfg.LogLevel, "FAIRBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
