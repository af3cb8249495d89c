package fairprice

import (
	"math"
	"sync"

	"github.com/shopspring/decimal"
)

// History keeps a bounded in-memory window of recent fair prices for
// volatility and trend estimation. It is safe for concurrent use so
// diagnostics can read while the pipeline appends.
type History struct {
	mu     sync.RWMutex
	prices []decimal.Decimal
	max    int
}

// NewHistory creates a History retaining at most max prices.
func NewHistory(max int) *History {
	if max <= 0 {
		max = 1000
	}
	return &History{max: max}
}

// Push appends a price, evicting the oldest entry once the window is full.
func (h *History) Push(price decimal.Decimal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prices = append(h.prices, price)
	if len(h.prices) > h.max {
		h.prices = h.prices[len(h.prices)-h.max:]
	}
}

// Len returns the number of retained prices.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.prices)
}

// Volatility returns the standard deviation of the most recent `window`
// prices, or false when fewer prices are available. Standard deviation is a
// diagnostic statistic, not a tradable price, so plain float math is fine
// here.
func (h *History) Volatility(window int) (float64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if window <= 0 || len(h.prices) < window {
		return 0, false
	}

	recent := h.prices[len(h.prices)-window:]
	var sum float64
	vals := make([]float64, len(recent))
	for i, p := range recent {
		vals[i], _ = p.Float64()
		sum += vals[i]
	}
	mean := sum / float64(len(vals))

	var variance float64
	for _, v := range vals {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(vals))
	return math.Sqrt(variance), true
}

// Trend returns the relative change between the oldest and newest price in
// the most recent `window` prices: positive is upward. False when fewer than
// two prices are available in the window.
func (h *History) Trend(window int) (float64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if window < 2 || len(h.prices) < window {
		return 0, false
	}

	recent := h.prices[len(h.prices)-window:]
	first := recent[0]
	last := recent[len(recent)-1]
	if first.IsZero() {
		return 0, false
	}
	trend, _ := last.Sub(first).Div(first).Float64()
	return trend, true
}
