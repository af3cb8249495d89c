// Package fairprice derives fair-price estimates from read-only order book
// views. Calculators are pure: every call works from one immutable view and
// returns one immutable result.
package fairprice

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/fairpricebot/internal/domain"
)

// Config holds the calculation tunables shared by all methods.
type Config struct {
	Method domain.Method
	// Levels is the number of top levels per side examined for volumes and
	// the volume-weighted price.
	Levels int
	// ImbalanceThreshold is the |imbalance| above which a directional signal
	// is emitted.
	ImbalanceThreshold float64
	// AdjustFraction bounds the micro-price order-flow nudge as a fraction
	// of the spread.
	AdjustFraction decimal.Decimal
	// ReferenceVolume calibrates the volume-weighted confidence: examined
	// volume at or above the reference maps to confidence 1.0.
	ReferenceVolume decimal.Decimal
}

// Calculator computes one fair-price result from a book view. Compute returns
// domain.ErrPriceUnavailable when the book cannot support the method (e.g. an
// empty side); that is a valid condition the caller absorbs, not a failure.
type Calculator interface {
	Method() domain.Method
	Compute(view domain.BookView) (domain.FairPriceResult, error)
}

// New returns the calculator variant selected by cfg.Method.
func New(cfg Config) (Calculator, error) {
	switch cfg.Method {
	case domain.MethodMidPrice:
		return &MidPrice{cfg: cfg}, nil
	case domain.MethodVolumeWeighted:
		return &VolumeWeighted{cfg: cfg}, nil
	case domain.MethodMicroPrice:
		return &MicroPrice{cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("fairprice: unknown method %q", cfg.Method)
	}
}

// bookMetrics are the per-view aggregates shared by every method.
type bookMetrics struct {
	bidVolume   decimal.Decimal
	askVolume   decimal.Decimal
	totalVolume decimal.Decimal
	// weightedBid/weightedAsk are the per-side volume-weighted prices; zero
	// when the side has no volume.
	weightedBid decimal.Decimal
	weightedAsk decimal.Decimal
	// imbalance is (bidVol - askVol) / (bidVol + askVol), 0 when empty.
	imbalance float64
}

// computeMetrics aggregates the top `levels` price levels of each side.
func computeMetrics(view domain.BookView, levels int) bookMetrics {
	var m bookMetrics
	var bidNotional, askNotional decimal.Decimal

	for i, lvl := range view.Bids {
		if levels > 0 && i >= levels {
			break
		}
		m.bidVolume = m.bidVolume.Add(lvl.Quantity)
		bidNotional = bidNotional.Add(lvl.Price.Mul(lvl.Quantity))
	}
	for i, lvl := range view.Asks {
		if levels > 0 && i >= levels {
			break
		}
		m.askVolume = m.askVolume.Add(lvl.Quantity)
		askNotional = askNotional.Add(lvl.Price.Mul(lvl.Quantity))
	}

	m.totalVolume = m.bidVolume.Add(m.askVolume)
	if m.bidVolume.IsPositive() {
		m.weightedBid = bidNotional.Div(m.bidVolume)
	}
	if m.askVolume.IsPositive() {
		m.weightedAsk = askNotional.Div(m.askVolume)
	}
	if m.totalVolume.IsPositive() {
		m.imbalance, _ = m.bidVolume.Sub(m.askVolume).Div(m.totalVolume).Float64()
	}
	return m
}

// baseResult fills the fields every method reports identically: best bid/ask,
// mid, spread, spread bps, volumes, imbalance, and the directional signal.
// It returns domain.ErrPriceUnavailable when either side is empty.
func baseResult(view domain.BookView, cfg Config, m bookMetrics) (domain.FairPriceResult, error) {
	mid, ok := view.MidPrice()
	if !ok {
		return domain.FairPriceResult{}, fmt.Errorf("fairprice: %s: empty book side: %w",
			cfg.Method, domain.ErrPriceUnavailable)
	}
	spread, _ := view.Spread()

	return domain.FairPriceResult{
		Symbol:       view.Symbol,
		Method:       cfg.Method,
		MidPrice:     mid,
		BestBid:      view.BestBid.Price,
		BestAsk:      view.BestAsk.Price,
		Spread:       spread,
		SpreadBps:    spreadBps(spread, mid),
		BidVolume:    m.bidVolume,
		AskVolume:    m.askVolume,
		Imbalance:    m.imbalance,
		Signal:       signalFor(m.imbalance, cfg.ImbalanceThreshold),
		LastUpdateID: view.LastUpdateID,
		ComputedAt:   time.Now(),
	}, nil
}

// spreadBps is spread / mid * 10000. The spread may be negative on a crossed
// book, in which case the bps value is negative too.
func spreadBps(spread, mid decimal.Decimal) decimal.Decimal {
	if mid.IsZero() {
		return decimal.Decimal{}
	}
	return spread.Div(mid).Mul(decimal.NewFromInt(10_000))
}

// signalFor derives the qualitative directional hint from the imbalance sign
// and magnitude.
func signalFor(imbalance, threshold float64) domain.MarketSignal {
	switch {
	case imbalance > threshold:
		return domain.SignalBuyPressure
	case imbalance < -threshold:
		return domain.SignalSellPressure
	default:
		return domain.SignalNeutral
	}
}

// clamp01 bounds a confidence value to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
