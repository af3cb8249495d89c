package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies which half of the order book a level belongs to.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// PriceLevel is a single price+quantity entry in an order book. A zero
// quantity means "remove this level".
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// BookSnapshot is a full point-in-time order book fetched over REST, together
// with the exchange sequence number it corresponds to.
type BookSnapshot struct {
	Symbol       string
	LastUpdateID uint64
	Bids         []PriceLevel
	Asks         []PriceLevel
}

// DeltaEvent is one incremental depth update from the diff stream. It covers
// the exchange sequence range [FirstUpdateID, LastUpdateID]. Levels with zero
// quantity delete the corresponding price.
type DeltaEvent struct {
	Symbol        string
	FirstUpdateID uint64
	LastUpdateID  uint64
	Bids          []PriceLevel
	Asks          []PriceLevel
	EventTime     time.Time
}

// BookView is an immutable, consistent read handle over the book store. It is
// copied out under the store's read lock, so a view never mixes levels from
// two different delta events.
type BookView struct {
	Symbol       string
	LastUpdateID uint64
	// Bids are ordered best (highest) first, Asks best (lowest) first.
	Bids []PriceLevel
	Asks []PriceLevel
	// HasBid/HasAsk report whether the respective side was non-empty at copy
	// time. An empty side is a valid state during initial fill.
	HasBid  bool
	HasAsk  bool
	BestBid PriceLevel
	BestAsk PriceLevel
	Taken   time.Time
}

// Spread returns best_ask - best_bid. It may be negative when the book is
// momentarily crossed; callers must not assume spread >= 0. The second return
// is false when either side is empty.
func (v BookView) Spread() (decimal.Decimal, bool) {
	if !v.HasBid || !v.HasAsk {
		return decimal.Decimal{}, false
	}
	return v.BestAsk.Price.Sub(v.BestBid.Price), true
}

// MidPrice returns (best_bid + best_ask) / 2, or false when either side is
// empty.
func (v BookView) MidPrice() (decimal.Decimal, bool) {
	if !v.HasBid || !v.HasAsk {
		return decimal.Decimal{}, false
	}
	return v.BestBid.Price.Add(v.BestAsk.Price).Div(decimal.NewFromInt(2)), true
}

// Crossed reports whether best_bid > best_ask. A crossed book is an
// observable condition, not an error.
func (v BookView) Crossed() bool {
	if !v.HasBid || !v.HasAsk {
		return false
	}
	return v.BestBid.Price.GreaterThan(v.BestAsk.Price)
}
