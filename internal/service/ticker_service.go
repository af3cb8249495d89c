package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/fairpricebot/internal/book"
	"github.com/alanyoungcy/fairpricebot/internal/domain"
	"github.com/alanyoungcy/fairpricebot/internal/fairprice"
)

// PriceChannel is the pub/sub channel carrying one fair-price result per
// accepted delta event.
const PriceChannel = "fair_prices"

// PriceStream is the durable Redis stream mirroring PriceChannel for
// consumers that cannot afford to miss messages.
const PriceStream = "fair_prices:stream"

// insertBatchSize is how many results accumulate before a database flush.
const insertBatchSize = 50

// SessionSource exposes the identifier of the sync session a result was
// computed under.
type SessionSource interface {
	SessionID() string
}

// TickerService turns book updates into fair-price results and fans them out:
// latest-value cache, pub/sub channel, rolling in-memory history, and an
// optional persistent store.
type TickerService struct {
	store   *book.Store
	calc    fairprice.Calculator
	levels  int
	session SessionSource
	cache   domain.ResultCache
	bus     domain.SignalBus
	history *fairprice.History
	results domain.ResultStore // nil outside record mode
	logger  *slog.Logger

	mu      sync.Mutex
	pending []domain.FairPriceResult
}

// NewTickerService creates a TickerService. results may be nil, in which case
// nothing is persisted.
func NewTickerService(
	store *book.Store,
	calc fairprice.Calculator,
	levels int,
	session SessionSource,
	cache domain.ResultCache,
	bus domain.SignalBus,
	history *fairprice.History,
	results domain.ResultStore,
	logger *slog.Logger,
) *TickerService {
	return &TickerService{
		store:   store,
		calc:    calc,
		levels:  levels,
		session: session,
		cache:   cache,
		bus:     bus,
		history: history,
		results: results,
		logger:  logger.With(slog.String("component", "ticker_service")),
	}
}

// OnApplied recomputes the fair price after an accepted delta event and
// distributes the result. A price that is momentarily unavailable (an empty
// book side) is not an error for the pipeline.
func (s *TickerService) OnApplied(ctx context.Context, ev domain.DeltaEvent) error {
	view := s.store.View(s.levels)

	result, err := s.calc.Compute(view)
	if err != nil {
		s.logger.DebugContext(ctx, "price unavailable",
			slog.Uint64("last_update_id", view.LastUpdateID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	result.SessionID = s.session.SessionID()

	s.logger.InfoContext(ctx, result.Summary())

	if s.history != nil {
		s.history.Push(result.FairPrice)
	}

	if s.cache != nil {
		if err := s.cache.SetResult(ctx, result); err != nil {
			s.logger.WarnContext(ctx, "ticker_service: cache result failed",
				slog.String("error", err.Error()),
			)
		}
	}

	s.publish(ctx, result)

	if s.results != nil {
		if err := s.record(ctx, result); err != nil {
			return fmt.Errorf("ticker_service: record result: %w", err)
		}
	}

	return nil
}

// Latest returns the most recently cached result for symbol.
func (s *TickerService) Latest(ctx context.Context, symbol string) (domain.FairPriceResult, error) {
	if s.cache == nil {
		return domain.FairPriceResult{}, domain.ErrNotFound
	}
	return s.cache.GetResult(ctx, symbol)
}

// Recent returns the newest persisted results for this instrument, up to
// limit. Without a result store there is no history to report.
func (s *TickerService) Recent(ctx context.Context, limit int) ([]domain.FairPriceResult, error) {
	if s.results == nil {
		return nil, nil
	}
	results, err := s.results.ListBySymbol(ctx, s.store.Symbol(), domain.ListOpts{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("ticker_service: list recent results: %w", err)
	}
	return results, nil
}

// Stats reports rolling volatility and trend over the in-memory fair-price
// history. ok is false until the window has filled.
func (s *TickerService) Stats(window int) (volatility, trend float64, ok bool) {
	if s.history == nil {
		return 0, 0, false
	}
	volatility, ok = s.history.Volatility(window)
	if !ok {
		return 0, 0, false
	}
	trend, ok = s.history.Trend(window)
	return volatility, trend, ok
}

// Flush writes any buffered results to the store. Call on shutdown.
func (s *TickerService) Flush(ctx context.Context) error {
	if s.results == nil {
		return nil
	}

	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := s.results.InsertBatch(ctx, batch); err != nil {
		return fmt.Errorf("ticker_service: flush %d results: %w", len(batch), err)
	}
	return nil
}

func (s *TickerService) publish(ctx context.Context, result domain.FairPriceResult) {
	if s.bus == nil {
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		s.logger.WarnContext(ctx, "ticker_service: marshal result failed",
			slog.String("error", err.Error()),
		)
		return
	}

	if err := s.bus.Publish(ctx, PriceChannel, payload); err != nil {
		s.logger.WarnContext(ctx, "ticker_service: publish result failed",
			slog.String("error", err.Error()),
		)
	}

	// The stream is only appended when results are being recorded; pub/sub
	// alone covers stream mode.
	if s.results != nil {
		if err := s.bus.StreamAppend(ctx, PriceStream, payload); err != nil {
			s.logger.WarnContext(ctx, "ticker_service: stream append failed",
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *TickerService) record(ctx context.Context, result domain.FairPriceResult) error {
	s.mu.Lock()
	s.pending = append(s.pending, result)
	if len(s.pending) < insertBatchSize {
		s.mu.Unlock()
		return nil
	}
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	return s.results.InsertBatch(ctx, batch)
}
