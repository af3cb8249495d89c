package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Method selects a fair-price calculation algorithm.
type Method string

const (
	MethodMidPrice       Method = "mid-price"
	MethodVolumeWeighted Method = "volume-weighted"
	MethodMicroPrice     Method = "micro-price"
)

// ParseMethod maps a configuration string to a Method.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodMidPrice, MethodVolumeWeighted, MethodMicroPrice:
		return Method(s), nil
	default:
		return "", fmt.Errorf("domain: unknown fair price method %q", s)
	}
}

// MarketSignal is the qualitative directional hint derived from order flow.
type MarketSignal string

const (
	SignalBuyPressure  MarketSignal = "buy_pressure"
	SignalSellPressure MarketSignal = "sell_pressure"
	SignalNeutral      MarketSignal = "neutral"
)

// FairPriceResult is the immutable output of one fair-price calculation,
// recomputed on every accepted delta event.
type FairPriceResult struct {
	Symbol    string          `json:"symbol"`
	Method    Method          `json:"method"`
	FairPrice decimal.Decimal `json:"fair_price"`
	MidPrice  decimal.Decimal `json:"mid_price"`
	BestBid   decimal.Decimal `json:"best_bid"`
	BestAsk   decimal.Decimal `json:"best_ask"`
	// Spread may be negative when the book is crossed.
	Spread    decimal.Decimal `json:"spread"`
	SpreadBps decimal.Decimal `json:"spread_bps"`
	// Confidence is in [0, 1].
	Confidence float64         `json:"confidence"`
	BidVolume  decimal.Decimal `json:"bid_volume"`
	AskVolume  decimal.Decimal `json:"ask_volume"`
	// Imbalance is (bid_vol - ask_vol) / (bid_vol + ask_vol) over the top
	// levels, in [-1, 1]; positive means buy pressure.
	Imbalance float64      `json:"imbalance"`
	Signal    MarketSignal `json:"signal"`
	// SessionID identifies the sync generation (snapshot + stream) the
	// result was computed from.
	SessionID    string    `json:"session_id"`
	LastUpdateID uint64    `json:"last_update_id"`
	ComputedAt   time.Time `json:"computed_at"`
}

// Summary renders a one-line human-readable form used by the stream-mode
// logger.
func (r FairPriceResult) Summary() string {
	return fmt.Sprintf(
		"%s fair=%s mid=%s bid=%s ask=%s spread=%s (%s bps) conf=%.2f flow=%+.2f signal=%s",
		r.Symbol,
		r.FairPrice.StringFixed(4),
		r.MidPrice.StringFixed(4),
		r.BestBid.StringFixed(4),
		r.BestAsk.StringFixed(4),
		r.Spread.StringFixed(4),
		r.SpreadBps.StringFixed(2),
		r.Confidence,
		r.Imbalance,
		r.Signal,
	)
}
