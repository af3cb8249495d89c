package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	s3blob "github.com/alanyoungcy/fairpricebot/internal/blob/s3"
	"github.com/alanyoungcy/fairpricebot/internal/book"
	"github.com/alanyoungcy/fairpricebot/internal/cache/redis"
	"github.com/alanyoungcy/fairpricebot/internal/config"
	"github.com/alanyoungcy/fairpricebot/internal/domain"
	"github.com/alanyoungcy/fairpricebot/internal/fairprice"
	"github.com/alanyoungcy/fairpricebot/internal/notify"
	"github.com/alanyoungcy/fairpricebot/internal/platform/binance"
	"github.com/alanyoungcy/fairpricebot/internal/store/postgres"
	"github.com/alanyoungcy/fairpricebot/internal/syncer"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Binance    *binance.Client
	BookStore  *book.Store
	Syncer     *syncer.Synchronizer
	Calculator fairprice.Calculator
	History    *fairprice.History

	ResultCache domain.ResultCache
	SignalBus   domain.SignalBus

	ResultStore domain.ResultStore // nil outside record/full
	BlobWriter  domain.BlobWriter  // nil unless archive is enabled
	Archiver    domain.Archiver    // nil unless archive is enabled

	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that persist results.
func needsPostgres(mode string) bool {
	switch mode {
	case "record", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}
	symbol := strings.ToUpper(cfg.Symbol)

	// Watch mode only consumes the signal bus; it never talks to the
	// exchange or maintains a book.
	watchOnly := strings.EqualFold(cfg.Mode, "watch")

	if !watchOnly {
		// --- Exchange REST client ---
		deps.Binance = binance.NewClient(cfg.Exchange.RestHost)

		if err := verifyExchange(ctx, deps.Binance, symbol, cfg.Exchange.VerifySymbol, logger); err != nil {
			cleanup()
			return nil, nil, err
		}

		// --- Book, synchronizer, calculator ---
		deps.BookStore = book.NewStore(symbol, cfg.Book.MaxDepth)
		deps.Syncer = syncer.New(syncer.Config{
			Symbol:        symbol,
			SnapshotLimit: cfg.Book.SnapshotLimit,
			BufferLimit:   cfg.Book.BufferLimit,
		}, deps.BookStore, deps.Binance, logger)

		method, err := domain.ParseMethod(cfg.FairPrice.Method)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: %w", err)
		}
		deps.Calculator, err = fairprice.New(fairprice.Config{
			Method:             method,
			Levels:             cfg.FairPrice.Levels,
			ImbalanceThreshold: cfg.FairPrice.ImbalanceThreshold,
			AdjustFraction:     decimal.NewFromFloat(cfg.FairPrice.AdjustFraction),
			ReferenceVolume:    decimal.NewFromFloat(cfg.FairPrice.ReferenceVolume),
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: %w", err)
		}
		deps.History = fairprice.NewHistory(cfg.FairPrice.HistorySize)
	}

	// --- PostgreSQL (only for modes that persist results) ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Database.DSN,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.PoolMaxConns,
			MinConns: cfg.Database.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Database.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.ResultStore = postgres.NewResultStore(pgClient.Pool())
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.ResultCache = redis.NewResultCache(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage (only when archival is enabled) ---
	if cfg.Archive.Enabled && !watchOnly {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		if deps.ResultStore != nil {
			deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.ResultStore, logger)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// verifyExchange pings the exchange clock and optionally checks that the
// configured symbol exists and is trading.
func verifyExchange(ctx context.Context, client *binance.Client, symbol string, verifySymbol bool, logger *slog.Logger) error {
	serverTime, err := client.GetServerTime(ctx)
	if err != nil {
		return fmt.Errorf("wire: exchange unreachable: %w", err)
	}
	drift := time.Since(serverTime)
	if drift < 0 {
		drift = -drift
	}
	logger.InfoContext(ctx, "exchange reachable",
		slog.Time("server_time", serverTime),
		slog.Duration("clock_drift", drift),
	)

	if !verifySymbol {
		return nil
	}

	info, err := client.GetSymbolInfo(ctx, symbol)
	if err != nil {
		return fmt.Errorf("wire: verify symbol %s: %w", symbol, err)
	}
	if info.Status != "TRADING" {
		return fmt.Errorf("wire: symbol %s is not trading (status %s)", symbol, info.Status)
	}
	return nil
}
