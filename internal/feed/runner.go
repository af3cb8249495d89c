// Package feed drives sync sessions against the exchange. A session is one
// snapshot plus one stream subscription; when the session desyncs or the
// stream drops, the runner tears it down, alerts, and starts a new one with a
// fresh snapshot after a backoff.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/fairpricebot/internal/domain"
	"github.com/alanyoungcy/fairpricebot/internal/notify"
	"github.com/alanyoungcy/fairpricebot/internal/platform/binance"
	"github.com/alanyoungcy/fairpricebot/internal/syncer"
)

const (
	// restartDelay is the base delay before starting a fresh session.
	restartDelay = 2 * time.Second

	// maxRestartDelay caps the exponential backoff between sessions.
	maxRestartDelay = 60 * time.Second
)

// Handler consumes events that the synchronizer accepted into the book.
type Handler interface {
	OnApplied(ctx context.Context, ev domain.DeltaEvent) error
}

// Conn is one live stream subscription. Events is closed on termination;
// Err then reports why.
type Conn interface {
	Events() <-chan domain.DeltaEvent
	Err() error
	Close() error
}

// DialFunc opens a stream subscription for one symbol.
type DialFunc func(ctx context.Context, wsHost, symbol string, logger *slog.Logger) (Conn, error)

// backoff is the restart ladder between sessions. A session that reached the
// synced phase restarts the ladder at the base delay.
type backoff struct {
	base time.Duration
	max  time.Duration
	next time.Duration
}

func (b *backoff) delay(reachedSync bool) time.Duration {
	if reachedSync || b.next == 0 {
		b.next = b.base
	}
	d := b.next
	if !reachedSync {
		b.next *= 2
		if b.next > b.max {
			b.next = b.max
		}
	}
	return d
}

// Runner owns the session lifecycle for one symbol.
type Runner struct {
	wsHost   string
	symbol   string
	sync     *syncer.Synchronizer
	handler  Handler
	notifier *notify.Notifier
	logger   *slog.Logger

	dial    DialFunc
	restart backoff
}

// NewRunner creates a Runner. handler may be nil when nothing downstream
// consumes applied events (record-only setups still want the book synced).
func NewRunner(wsHost, symbol string, sync *syncer.Synchronizer, handler Handler, notifier *notify.Notifier, logger *slog.Logger) *Runner {
	return &Runner{
		wsHost:   wsHost,
		symbol:   symbol,
		sync:     sync,
		handler:  handler,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "feed_runner"), slog.String("symbol", symbol)),
		dial: func(ctx context.Context, wsHost, symbol string, logger *slog.Logger) (Conn, error) {
			return binance.DialFeed(ctx, wsHost, symbol, logger)
		},
		restart: backoff{base: restartDelay, max: maxRestartDelay},
	}
}

// Run executes sync sessions until ctx is cancelled. A session that ends for
// any reason other than cancellation is restarted with exponential backoff;
// the backoff resets once a session reaches the synced phase.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("feed runner started")
	defer r.logger.Info("feed runner stopped")

	for {
		reachedSync, err := r.runSession(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			r.logger.Error("session ended",
				slog.String("session_id", r.sync.SessionID()),
				slog.String("error", err.Error()),
			)
		}

		delay := r.restart.delay(reachedSync)
		r.logger.Info("restarting session",
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		r.sync.Reset()
	}
}

// runSession runs one snapshot+stream session to completion. It reports
// whether the session ever reached the synced phase, which the caller uses to
// reset the restart backoff.
func (r *Runner) runSession(ctx context.Context) (bool, error) {
	// Connect the stream before fetching the snapshot so the buffered events
	// straddle the snapshot's sequence number.
	feed, err := r.dial(ctx, r.wsHost, r.symbol, r.logger)
	if err != nil {
		r.alert(ctx, notify.EventFeedError, "Feed connect failed", err.Error())
		return false, err
	}
	defer feed.Close()

	if err := r.sync.Initialize(ctx); err != nil {
		r.alert(ctx, notify.EventFeedError, "Snapshot failed", err.Error())
		return false, err
	}

	wasSynced := false
	for {
		select {
		case <-ctx.Done():
			return wasSynced, ctx.Err()
		case ev, ok := <-feed.Events():
			if !ok {
				err := feed.Err()
				if errors.Is(err, domain.ErrFeedClosed) {
					return wasSynced, nil
				}
				r.alert(ctx, notify.EventFeedError, "Stream disconnected",
					fmt.Sprintf("symbol=%s session=%s: %v", r.symbol, r.sync.SessionID(), err))
				return wasSynced, err
			}

			applied, err := r.sync.Process(ev)
			if err != nil {
				if errors.Is(err, domain.ErrDesynced) {
					r.alert(ctx, notify.EventDesync, "Book desynced",
						fmt.Sprintf("symbol=%s session=%s reason=%s last_applied=%d",
							r.symbol, r.sync.SessionID(), r.sync.Reason(), r.sync.LastAppliedID()))
					return wasSynced, err
				}
				return wasSynced, err
			}
			if !applied {
				continue
			}

			if !wasSynced && r.sync.Phase() == syncer.PhaseSynced {
				wasSynced = true
				r.logger.Info("session synced",
					slog.String("session_id", r.sync.SessionID()),
					slog.Uint64("last_applied", r.sync.LastAppliedID()),
				)
				r.alert(ctx, notify.EventResync, "Book synced",
					fmt.Sprintf("symbol=%s session=%s last_applied=%d",
						r.symbol, r.sync.SessionID(), r.sync.LastAppliedID()))
			}

			if r.handler != nil {
				if err := r.handler.OnApplied(ctx, ev); err != nil {
					r.logger.Warn("handler failed",
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}
}

func (r *Runner) alert(ctx context.Context, event, title, message string) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(ctx, event, title, message); err != nil {
		r.logger.Warn("notify failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
