package domain

import "context"

// ResultCache provides fast access to the latest fair-price result per
// symbol.
type ResultCache interface {
	SetResult(ctx context.Context, result FairPriceResult) error
	GetResult(ctx context.Context, symbol string) (FairPriceResult, error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams. It is the boundary to the
// external publisher: one message per accepted delta event.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
