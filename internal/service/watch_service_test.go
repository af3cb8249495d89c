package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/fairpricebot/internal/domain"
)

// captureHandler collects log messages so tests can observe what the
// watcher reported.
type captureHandler struct {
	mu   sync.Mutex
	msgs []string
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, r.Message)
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func (h *captureHandler) countMessage(msg string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, m := range h.msgs {
		if m == msg {
			n++
		}
	}
	return n
}

func watchResult(t *testing.T) (domain.FairPriceResult, []byte) {
	t.Helper()
	result := domain.FairPriceResult{
		Symbol:    "BTCUSDT",
		Method:    domain.MethodMidPrice,
		FairPrice: decimal.RequireFromString("100.05"),
		MidPrice:  decimal.RequireFromString("100.05"),
		Signal:    domain.SignalNeutral,
		SessionID: "sess-1",
	}
	payload, err := json.Marshal(result)
	require.NoError(t, err)
	return result, payload
}

func TestWatchReplaysBacklogThenFollowsLive(t *testing.T) {
	result, payload := watchResult(t)

	bus := &fakeBus{
		backlog: []domain.StreamMessage{
			{ID: "1-0", Payload: payload},
			{ID: "2-0", Payload: payload},
		},
		live: make(chan []byte, 4),
	}
	handler := &captureHandler{}
	svc := NewWatchService(bus, slog.New(handler))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	bus.live <- payload
	require.Eventually(t, func() bool {
		return handler.countMessage(result.Summary()) == 3
	}, 5*time.Second, 10*time.Millisecond, "two backlog entries plus one live result")

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}
}

func TestWatchSkipsMalformedPayloads(t *testing.T) {
	result, payload := watchResult(t)

	bus := &fakeBus{live: make(chan []byte, 4)}
	handler := &captureHandler{}
	svc := NewWatchService(bus, slog.New(handler))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	bus.live <- []byte("{not json")
	bus.live <- payload
	require.Eventually(t, func() bool {
		return handler.countMessage(result.Summary()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestWatchStopsWhenChannelCloses(t *testing.T) {
	bus := &fakeBus{live: make(chan []byte)}
	svc := NewWatchService(bus, slog.New(&captureHandler{}))

	done := make(chan error, 1)
	go func() { done <- svc.Run(context.Background()) }()

	close(bus.live)
	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "closed")
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop after channel close")
	}
}
