package feed

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/fairpricebot/internal/book"
	"github.com/alanyoungcy/fairpricebot/internal/domain"
	"github.com/alanyoungcy/fairpricebot/internal/syncer"
)

type stubProvider struct {
	snap domain.BookSnapshot
}

func (p *stubProvider) GetDepthSnapshot(context.Context, string, int) (domain.BookSnapshot, error) {
	return p.snap, nil
}

// scriptedConn is a stream subscription fed by the test.
type scriptedConn struct {
	events chan domain.DeltaEvent
	err    error
}

func newScriptedConn() *scriptedConn {
	return &scriptedConn{events: make(chan domain.DeltaEvent, 16)}
}

func (c *scriptedConn) Events() <-chan domain.DeltaEvent { return c.events }
func (c *scriptedConn) Err() error                       { return c.err }
func (c *scriptedConn) Close() error                     { return nil }

type recordingHandler struct {
	mu      sync.Mutex
	applied []domain.DeltaEvent
}

func (h *recordingHandler) OnApplied(_ context.Context, ev domain.DeltaEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.applied = append(h.applied, ev)
	return nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.applied)
}

func deltaEvent(first, last uint64) domain.DeltaEvent {
	return domain.DeltaEvent{
		Symbol:        "BTCUSDT",
		FirstUpdateID: first,
		LastUpdateID:  last,
		Bids: []domain.PriceLevel{{
			Price:    decimal.RequireFromString("100.00"),
			Quantity: decimal.NewFromInt(1),
		}},
	}
}

func newTestRunner(t *testing.T) (*Runner, *recordingHandler) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := book.NewStore("BTCUSDT", 0)
	provider := &stubProvider{snap: domain.BookSnapshot{
		Symbol:       "BTCUSDT",
		LastUpdateID: 100,
		Bids: []domain.PriceLevel{{
			Price:    decimal.RequireFromString("99.90"),
			Quantity: decimal.NewFromInt(2),
		}},
	}}
	sync := syncer.New(syncer.Config{Symbol: "BTCUSDT", SnapshotLimit: 1000, BufferLimit: 10}, store, provider, logger)

	handler := &recordingHandler{}
	r := NewRunner("wss://example", "BTCUSDT", sync, handler, nil, logger)
	r.restart = backoff{base: time.Millisecond, max: 4 * time.Millisecond}
	return r, handler
}

func TestRunnerRestartsAfterDesync(t *testing.T) {
	r, handler := newTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dials := 0
	r.dial = func(ctx context.Context, _, _ string, _ *slog.Logger) (Conn, error) {
		dials++
		if dials == 1 {
			conn := newScriptedConn()
			conn.events <- deltaEvent(101, 105) // bridges the snapshot
			conn.events <- deltaEvent(200, 210) // gap
			return conn, nil
		}
		// The desynced session came back for a fresh one; stop the test.
		cancel()
		return nil, ctx.Err()
	}

	err := r.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, dials)
	assert.Equal(t, 1, handler.count(), "only the bridging event reaches the handler")
}

func TestRunnerRestartsAfterCleanFeedClose(t *testing.T) {
	r, _ := newTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dials := 0
	r.dial = func(ctx context.Context, _, _ string, _ *slog.Logger) (Conn, error) {
		dials++
		if dials == 1 {
			conn := newScriptedConn()
			conn.events <- deltaEvent(101, 105)
			conn.err = domain.ErrFeedClosed
			close(conn.events)
			return conn, nil
		}
		cancel()
		return nil, ctx.Err()
	}

	err := r.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, dials)
}

func TestRunnerStopsBetweenEventsOnCancel(t *testing.T) {
	r, handler := newTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	delivered := make(chan struct{})
	r.handler = handlerFunc(func(hctx context.Context, ev domain.DeltaEvent) error {
		err := handler.OnApplied(hctx, ev)
		close(delivered)
		return err
	})
	r.dial = func(context.Context, string, string, *slog.Logger) (Conn, error) {
		conn := newScriptedConn()
		conn.events <- deltaEvent(101, 105)
		return conn, nil
	}

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	<-delivered
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop after cancellation")
	}
	assert.Equal(t, 1, handler.count())
}

type handlerFunc func(ctx context.Context, ev domain.DeltaEvent) error

func (f handlerFunc) OnApplied(ctx context.Context, ev domain.DeltaEvent) error { return f(ctx, ev) }

func TestBackoffLadderResetsAfterSyncedSession(t *testing.T) {
	b := backoff{base: 2 * time.Second, max: 8 * time.Second}

	assert.Equal(t, 2*time.Second, b.delay(false))
	assert.Equal(t, 4*time.Second, b.delay(false))
	assert.Equal(t, 8*time.Second, b.delay(false))
	assert.Equal(t, 8*time.Second, b.delay(false), "ladder is capped")

	assert.Equal(t, 2*time.Second, b.delay(true), "synced session resets the ladder")
	assert.Equal(t, 2*time.Second, b.delay(false), "first failure after a reset starts at the base delay")
	assert.Equal(t, 4*time.Second, b.delay(false))
}
