package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/fairpricebot/internal/feed"
	"github.com/alanyoungcy/fairpricebot/internal/service"
)

// flushTimeout bounds the final result flush after the run group exits.
const flushTimeout = 10 * time.Second

// StreamMode synchronizes the book and publishes fair prices to Redis
// without persisting anything.
func (a *App) StreamMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting stream mode")
	return a.runPipeline(ctx, deps, false, false)
}

// RecordMode runs the stream pipeline and additionally persists every
// computed result to PostgreSQL. Retention is unbounded; archival belongs
// to full mode.
func (a *App) RecordMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting record mode")
	return a.runPipeline(ctx, deps, true, false)
}

// FullMode runs the record pipeline plus the periodic cold-storage archival
// loop.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	return a.runPipeline(ctx, deps, true, a.cfg.Archive.Enabled)
}

// WatchMode follows results published by a pipeline running elsewhere: it
// replays the stream backlog and tails the live channel, logging each result.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode")
	watcher := service.NewWatchService(deps.SignalBus, a.logger)
	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runPipeline wires the ticker service and feed runner and blocks until the
// context is cancelled or a goroutine fails.
func (a *App) runPipeline(ctx context.Context, deps *Dependencies, persist, archive bool) error {
	g, ctx := errgroup.WithContext(ctx)

	resultStore := deps.ResultStore
	if !persist {
		resultStore = nil
	}

	tickerSvc := service.NewTickerService(
		deps.BookStore,
		deps.Calculator,
		a.cfg.FairPrice.Levels,
		deps.Syncer,
		deps.ResultCache,
		deps.SignalBus,
		deps.History,
		resultStore,
		a.logger,
	)

	if persist {
		a.logResumePoint(ctx, tickerSvc)
	}

	runner := feed.NewRunner(
		a.cfg.Exchange.WsHost,
		a.cfg.Symbol,
		deps.Syncer,
		tickerSvc,
		deps.Notifier,
		a.logger,
	)
	g.Go(func() error {
		return runner.Run(ctx)
	})

	if archive && deps.Archiver != nil {
		g.Go(func() error {
			return a.archiveLoop(ctx, deps)
		})
	}

	err := g.Wait()

	// Flush buffered results with a fresh context; the group context is
	// already cancelled at this point.
	if persist {
		flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		if ferr := tickerSvc.Flush(flushCtx); ferr != nil {
			a.logger.Error("final flush failed", slog.String("error", ferr.Error()))
		}
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// logResumePoint notes where the persisted history left off, so operators
// can spot gaps across restarts.
func (a *App) logResumePoint(ctx context.Context, svc *service.TickerService) {
	recent, err := svc.Recent(ctx, 1)
	if err != nil {
		a.logger.WarnContext(ctx, "could not read persisted history",
			slog.String("error", err.Error()),
		)
		return
	}
	if len(recent) == 0 {
		a.logger.InfoContext(ctx, "no persisted results yet")
		return
	}
	a.logger.InfoContext(ctx, "resuming persisted history",
		slog.String("session_id", recent[0].SessionID),
		slog.Time("last_computed_at", recent[0].ComputedAt),
		slog.String("last_fair_price", recent[0].FairPrice.String()),
	)
}

// archiveLoop periodically moves results older than the retention window to
// cold storage.
func (a *App) archiveLoop(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Archive.Interval.Duration
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	a.logger.InfoContext(ctx, "archive loop started",
		slog.Duration("interval", interval),
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().Add(-retention)
			count, err := deps.Archiver.ArchiveResults(ctx, cutoff)
			if err != nil {
				a.logger.ErrorContext(ctx, "archive run failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if count > 0 {
				a.logger.InfoContext(ctx, "archive run complete",
					slog.Int64("archived", count),
				)
			}
		}
	}
}
