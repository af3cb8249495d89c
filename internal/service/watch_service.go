package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/fairpricebot/internal/domain"
)

// watchBacklog is how many recent stream entries are replayed before
// following the live channel.
const watchBacklog = 10

// WatchService tails fair-price results published by a running pipeline:
// it replays the recent backlog from the durable stream, then follows the
// live pub/sub channel. It is the consumer side of the signal bus, meant
// for operating a bot fleet from a separate process.
type WatchService struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewWatchService creates a WatchService reading from bus.
func NewWatchService(bus domain.SignalBus, logger *slog.Logger) *WatchService {
	return &WatchService{
		bus:    bus,
		logger: logger.With(slog.String("component", "watch_service")),
	}
}

// Run blocks until ctx is cancelled or the subscription fails.
func (s *WatchService) Run(ctx context.Context) error {
	// A missing or empty stream is fine: the producer may be running in
	// stream mode, which publishes without appending.
	backlog, err := s.bus.StreamRead(ctx, PriceStream, "0", watchBacklog)
	if err != nil {
		s.logger.WarnContext(ctx, "watch_service: backlog read failed",
			slog.String("error", err.Error()),
		)
	}
	for _, msg := range backlog {
		s.logResult(ctx, msg.Payload, slog.String("stream_id", msg.ID))
	}

	ch, err := s.bus.Subscribe(ctx, PriceChannel)
	if err != nil {
		return fmt.Errorf("watch_service: subscribe %s: %w", PriceChannel, err)
	}
	s.logger.InfoContext(ctx, "following live results",
		slog.String("channel", PriceChannel),
		slog.Int("backlog", len(backlog)),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-ch:
			if !ok {
				return fmt.Errorf("watch_service: channel %s closed", PriceChannel)
			}
			s.logResult(ctx, payload)
		}
	}
}

func (s *WatchService) logResult(ctx context.Context, payload []byte, attrs ...slog.Attr) {
	var result domain.FairPriceResult
	if err := json.Unmarshal(payload, &result); err != nil {
		s.logger.WarnContext(ctx, "watch_service: malformed payload",
			slog.String("error", err.Error()),
		)
		return
	}
	args := make([]any, 0, len(attrs))
	for _, a := range attrs {
		args = append(args, a)
	}
	s.logger.InfoContext(ctx, result.Summary(), args...)
}
