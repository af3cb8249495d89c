package fairprice

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/fairpricebot/internal/domain"
)

// MicroPrice weights the top-of-book prices by the opposite side's quantity,
// then nudges the estimate toward the order-flow pressure direction by a
// bounded fraction of the spread.
type MicroPrice struct {
	cfg Config
}

func (c *MicroPrice) Method() domain.Method { return domain.MethodMicroPrice }

func (c *MicroPrice) Compute(view domain.BookView) (domain.FairPriceResult, error) {
	m := computeMetrics(view, c.cfg.Levels)
	res, err := baseResult(view, c.cfg, m)
	if err != nil {
		return domain.FairPriceResult{}, err
	}

	bidQty := view.BestBid.Quantity
	askQty := view.BestAsk.Quantity
	topQty := bidQty.Add(askQty)

	// Degenerate book with no top-level volume: fall back to the midpoint
	// with zero confidence.
	if !topQty.IsPositive() {
		res.FairPrice = res.MidPrice
		res.Confidence = 0
		return res, nil
	}

	micro := res.BestAsk.Mul(bidQty).Add(res.BestBid.Mul(askQty)).Div(topQty)

	// Order-flow adjustment: up to AdjustFraction of the spread in the
	// direction of the imbalance.
	adjust := decimal.NewFromFloat(res.Imbalance).Mul(res.Spread).Mul(c.cfg.AdjustFraction)
	res.FairPrice = micro.Add(adjust)
	res.Confidence = c.confidence(res, bidQty, askQty, topQty)
	return res, nil
}

// confidence blends top-of-book quantity balance with spread tightness.
func (c *MicroPrice) confidence(res domain.FairPriceResult, bidQty, askQty, topQty decimal.Decimal) float64 {
	diff, _ := bidQty.Sub(askQty).Abs().Div(topQty).Float64()
	qtyBalance := 1 - diff

	var spreadTightness float64
	if res.MidPrice.IsPositive() && !res.Spread.IsNegative() {
		rel, _ := res.Spread.Div(res.MidPrice).Float64()
		spreadTightness = 1 / (1 + rel)
	}

	return clamp01(qtyBalance*0.7 + spreadTightness*0.3)
}
