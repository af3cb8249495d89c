package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ResultStore persists fair-price history. History is an optional concern
// layered outside the core pipeline; the synchronizer and calculator never
// depend on it.
type ResultStore interface {
	InsertBatch(ctx context.Context, results []FairPriceResult) error
	ListBySymbol(ctx context.Context, symbol string, opts ListOpts) ([]FairPriceResult, error)
	// ListBefore returns all results computed strictly before the cutoff,
	// for archival.
	ListBefore(ctx context.Context, before time.Time) ([]FairPriceResult, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// SnapshotProvider fetches a point-in-time full order book plus the exchange
// sequence number it reflects.
type SnapshotProvider interface {
	GetDepthSnapshot(ctx context.Context, symbol string, limit int) (BookSnapshot, error)
}
