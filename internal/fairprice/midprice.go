package fairprice

import (
	"github.com/alanyoungcy/fairpricebot/internal/domain"
)

// MidPrice reports (best_bid + best_ask) / 2. It is unavailable when either
// side of the book is empty.
type MidPrice struct {
	cfg Config
}

func (c *MidPrice) Method() domain.Method { return domain.MethodMidPrice }

func (c *MidPrice) Compute(view domain.BookView) (domain.FairPriceResult, error) {
	m := computeMetrics(view, c.cfg.Levels)
	res, err := baseResult(view, c.cfg, m)
	if err != nil {
		return domain.FairPriceResult{}, err
	}

	res.FairPrice = res.MidPrice
	res.Confidence = c.confidence(res, m)
	return res, nil
}

// confidence blends volume balance, total liquidity, and spread tightness.
// A zero-volume book yields confidence 0, a balanced liquid book with a tight
// spread approaches 1.
func (c *MidPrice) confidence(res domain.FairPriceResult, m bookMetrics) float64 {
	if !m.totalVolume.IsPositive() {
		return 0
	}

	diff, _ := m.bidVolume.Sub(m.askVolume).Abs().Div(m.totalVolume).Float64()
	volumeBalance := 1 - diff

	// Liquidity relative to the configured reference volume.
	var liquidity float64
	if c.cfg.ReferenceVolume.IsPositive() {
		liquidity, _ = m.totalVolume.Div(m.totalVolume.Add(c.cfg.ReferenceVolume)).Float64()
	}

	// Tighter spreads give more meaning to the midpoint. A crossed book
	// (negative spread) contributes nothing.
	var spreadFactor float64
	if res.Spread.IsPositive() && res.MidPrice.IsPositive() {
		rel, _ := res.Spread.Div(res.MidPrice).Float64()
		spreadFactor = 1 / (1 + rel*1000)
	}

	return clamp01(volumeBalance*0.4 + liquidity*0.3 + spreadFactor*0.3)
}
