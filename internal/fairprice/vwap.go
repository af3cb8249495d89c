package fairprice

import (
	"fmt"

	"github.com/alanyoungcy/fairpricebot/internal/domain"
)

// VolumeWeighted combines the per-side volume-weighted prices of the top N
// levels into a single fair price, weighting each side by its own volume so
// the heavier side pulls the estimate toward it.
type VolumeWeighted struct {
	cfg Config
}

func (c *VolumeWeighted) Method() domain.Method { return domain.MethodVolumeWeighted }

func (c *VolumeWeighted) Compute(view domain.BookView) (domain.FairPriceResult, error) {
	m := computeMetrics(view, c.cfg.Levels)
	res, err := baseResult(view, c.cfg, m)
	if err != nil {
		return domain.FairPriceResult{}, err
	}

	// A side that exists but carries no volume cannot be weighted; report
	// unavailable rather than dividing by zero.
	if !m.bidVolume.IsPositive() || !m.askVolume.IsPositive() {
		return domain.FairPriceResult{}, fmt.Errorf("fairprice: %s: zero volume side: %w",
			c.cfg.Method, domain.ErrPriceUnavailable)
	}

	weighted := m.weightedBid.Mul(m.bidVolume).Add(m.weightedAsk.Mul(m.askVolume))
	res.FairPrice = weighted.Div(m.totalVolume)

	// Confidence scales with how much volume was examined relative to the
	// configured reference volume.
	if c.cfg.ReferenceVolume.IsPositive() {
		ratio, _ := m.totalVolume.Div(c.cfg.ReferenceVolume).Float64()
		res.Confidence = clamp01(ratio)
	}
	return res, nil
}
