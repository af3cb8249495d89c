package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/fairpricebot/internal/domain"
)

const (
	// writeWait is the time allowed to write a control message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	handshakeTimeout = 15 * time.Second
)

// Feed is one non-restartable subscription to a symbol's diff-depth stream.
// Parsed events are delivered on Events in arrival order; when the stream
// terminates the channel is closed and Err reports why. The feed never
// reconnects on its own: a desynced session needs a fresh snapshot as well,
// so the restart decision belongs to the caller.
type Feed struct {
	symbol string
	conn   *websocket.Conn
	logger *slog.Logger

	events chan domain.DeltaEvent
	done   chan struct{}

	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

// DialFeed connects to the diff-depth stream for symbol and starts the read
// and ping loops.
func DialFeed(ctx context.Context, wsHost, symbol string, logger *slog.Logger) (*Feed, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	streamURL := StreamURL(wsHost, symbol)
	conn, _, err := dialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		return nil, fmt.Errorf("binance: dial %s: %w", streamURL, err)
	}

	f := &Feed{
		symbol: strings.ToUpper(symbol),
		conn:   conn,
		logger: logger.With(slog.String("component", "binance_feed"), slog.String("symbol", symbol)),
		events: make(chan domain.DeltaEvent, 256),
		done:   make(chan struct{}),
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go f.readLoop()
	go f.pingLoop()

	return f, nil
}

// Events returns the stream of parsed delta events. The channel is closed on
// termination; consult Err afterwards.
func (f *Feed) Events() <-chan domain.DeltaEvent {
	return f.events
}

// Err returns the terminal error after Events has been closed.
// domain.ErrFeedClosed means an orderly shutdown; anything else is a
// disconnect.
func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Close shuts the subscription down. Safe to call multiple times.
func (f *Feed) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.done)
		_ = f.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		err = f.conn.Close()
	})
	return err
}

// readLoop reads raw frames, parses depthUpdate events, and pushes them to
// the events channel. Parse failures are skipped and logged; they are data
// anomalies, not stream termination.
func (f *Feed) readLoop() {
	defer close(f.events)

	for {
		_, raw, err := f.conn.ReadMessage()
		if err != nil {
			select {
			case <-f.done:
				f.setErr(domain.ErrFeedClosed)
			default:
				f.setErr(fmt.Errorf("binance: read: %w: %w", domain.ErrWSDisconnect, err))
			}
			return
		}

		ev, ok := f.parse(raw)
		if !ok {
			continue
		}

		select {
		case f.events <- ev:
		case <-f.done:
			f.setErr(domain.ErrFeedClosed)
			return
		}
	}
}

// parse decodes one frame. Non-depthUpdate frames and events for other
// symbols are dropped silently; malformed depth updates are dropped with a
// warning.
func (f *Feed) parse(raw []byte) (domain.DeltaEvent, bool) {
	var msg DepthUpdateMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		f.logger.Warn("unparseable stream frame",
			slog.Int("len", len(raw)),
			slog.String("error", err.Error()),
		)
		return domain.DeltaEvent{}, false
	}
	if msg.EventType != "depthUpdate" {
		return domain.DeltaEvent{}, false
	}
	if !strings.EqualFold(msg.Symbol, f.symbol) {
		f.logger.Warn("depth update for unexpected symbol",
			slog.String("got", msg.Symbol),
		)
		return domain.DeltaEvent{}, false
	}

	ev, err := msg.ToDeltaEvent()
	if err != nil {
		f.logger.Warn("malformed depth update",
			slog.String("error", err.Error()),
		)
		return domain.DeltaEvent{}, false
	}
	return ev, true
}

// pingLoop keeps the connection alive until the feed is closed.
func (f *Feed) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			f.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := f.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (f *Feed) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = err
	}
}
