package fairprice

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/fairpricebot/internal/domain"
)

func testConfig(method domain.Method) Config {
	return Config{
		Method:             method,
		Levels:             10,
		ImbalanceThreshold: 0.3,
		AdjustFraction:     decimal.RequireFromString("0.1"),
		ReferenceVolume:    decimal.NewFromInt(100),
	}
}

func lvl(price, qty string) domain.PriceLevel {
	return domain.PriceLevel{
		Price:    decimal.RequireFromString(price),
		Quantity: decimal.RequireFromString(qty),
	}
}

func view(bids, asks []domain.PriceLevel) domain.BookView {
	v := domain.BookView{
		Symbol:       "BTCUSDT",
		LastUpdateID: 42,
		Bids:         bids,
		Asks:         asks,
	}
	if len(bids) > 0 {
		v.HasBid = true
		v.BestBid = bids[0]
	}
	if len(asks) > 0 {
		v.HasAsk = true
		v.BestAsk = asks[0]
	}
	return v
}

func TestMidPriceFairValue(t *testing.T) {
	calc, err := New(testConfig(domain.MethodMidPrice))
	require.NoError(t, err)

	res, err := calc.Compute(view(
		[]domain.PriceLevel{lvl("100.00", "10")},
		[]domain.PriceLevel{lvl("100.10", "10")},
	))
	require.NoError(t, err)

	assert.True(t, res.FairPrice.Equal(decimal.RequireFromString("100.05")),
		"fair price %s", res.FairPrice)
	assert.True(t, res.Spread.Equal(decimal.RequireFromString("0.10")))

	bps, _ := res.SpreadBps.Float64()
	assert.InDelta(t, 9.995, bps, 0.01)

	// Perfectly balanced book with a tight spread carries real confidence.
	assert.Greater(t, res.Confidence, 0.5)
	assert.Equal(t, domain.SignalNeutral, res.Signal)
	assert.Equal(t, uint64(42), res.LastUpdateID)
}

func TestMidPriceEmptySideUnavailable(t *testing.T) {
	calc, err := New(testConfig(domain.MethodMidPrice))
	require.NoError(t, err)

	_, err = calc.Compute(view([]domain.PriceLevel{lvl("100.00", "10")}, nil))
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)

	_, err = calc.Compute(view(nil, nil))
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestMidPriceZeroVolumeConfidence(t *testing.T) {
	calc, err := New(testConfig(domain.MethodMidPrice))
	require.NoError(t, err)

	res, err := calc.Compute(view(
		[]domain.PriceLevel{lvl("100.00", "0")},
		[]domain.PriceLevel{lvl("100.10", "0")},
	))
	require.NoError(t, err)
	assert.Zero(t, res.Confidence)
}

func TestVolumeWeightedFairValue(t *testing.T) {
	calc, err := New(testConfig(domain.MethodVolumeWeighted))
	require.NoError(t, err)

	res, err := calc.Compute(view(
		[]domain.PriceLevel{lvl("100.00", "10")},
		[]domain.PriceLevel{lvl("101.00", "30")},
	))
	require.NoError(t, err)

	// (100*10 + 101*30) / 40 = 100.75
	assert.True(t, res.FairPrice.Equal(decimal.RequireFromString("100.75")),
		"fair price %s", res.FairPrice)

	// 40 of 100 reference volume examined.
	assert.InDelta(t, 0.4, res.Confidence, 1e-9)
}

func TestVolumeWeightedConfidenceClamped(t *testing.T) {
	cfg := testConfig(domain.MethodVolumeWeighted)
	cfg.ReferenceVolume = decimal.NewFromInt(10)
	calc, err := New(cfg)
	require.NoError(t, err)

	res, err := calc.Compute(view(
		[]domain.PriceLevel{lvl("100.00", "50")},
		[]domain.PriceLevel{lvl("100.10", "50")},
	))
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestVolumeWeightedZeroVolumeSideUnavailable(t *testing.T) {
	calc, err := New(testConfig(domain.MethodVolumeWeighted))
	require.NoError(t, err)

	_, err = calc.Compute(view(
		[]domain.PriceLevel{lvl("100.00", "0")},
		[]domain.PriceLevel{lvl("100.10", "5")},
	))
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestMicroPriceWeightsByOppositeQuantity(t *testing.T) {
	cfg := testConfig(domain.MethodMicroPrice)
	cfg.AdjustFraction = decimal.Zero
	calc, err := New(cfg)
	require.NoError(t, err)

	res, err := calc.Compute(view(
		[]domain.PriceLevel{lvl("100.00", "10")},
		[]domain.PriceLevel{lvl("100.10", "5")},
	))
	require.NoError(t, err)

	// (100.10*10 + 100.00*5) / 15 = 100.0666...
	fair, _ := res.FairPrice.Float64()
	assert.InDelta(t, 100.0667, fair, 0.0001)

	// Heavier bid side pulls the estimate above the midpoint.
	assert.True(t, res.FairPrice.GreaterThan(res.MidPrice))
}

func TestMicroPriceOrderFlowAdjustment(t *testing.T) {
	calc, err := New(testConfig(domain.MethodMicroPrice))
	require.NoError(t, err)

	res, err := calc.Compute(view(
		[]domain.PriceLevel{lvl("100.00", "10")},
		[]domain.PriceLevel{lvl("100.10", "5")},
	))
	require.NoError(t, err)

	// imbalance = 5/15, adjust = imbalance * 0.10 spread * 0.1 fraction.
	fair, _ := res.FairPrice.Float64()
	assert.InDelta(t, 100.0667+0.00333, fair, 0.0005)
	assert.InDelta(t, 1.0/3.0, res.Imbalance, 1e-9)
	assert.Equal(t, domain.SignalBuyPressure, res.Signal)
}

func TestMicroPriceZeroTopVolumeFallsBackToMid(t *testing.T) {
	calc, err := New(testConfig(domain.MethodMicroPrice))
	require.NoError(t, err)

	res, err := calc.Compute(view(
		[]domain.PriceLevel{lvl("100.00", "0")},
		[]domain.PriceLevel{lvl("100.10", "0")},
	))
	require.NoError(t, err)
	assert.True(t, res.FairPrice.Equal(res.MidPrice))
	assert.Zero(t, res.Confidence)
}

func TestSignalThresholds(t *testing.T) {
	calc, err := New(testConfig(domain.MethodMidPrice))
	require.NoError(t, err)

	tests := []struct {
		name   string
		bidQty string
		askQty string
		want   domain.MarketSignal
	}{
		{"heavy bids", "80", "20", domain.SignalBuyPressure},
		{"heavy asks", "20", "80", domain.SignalSellPressure},
		{"balanced", "55", "45", domain.SignalNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := calc.Compute(view(
				[]domain.PriceLevel{lvl("100.00", tt.bidQty)},
				[]domain.PriceLevel{lvl("100.10", tt.askQty)},
			))
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Signal)
		})
	}
}

func TestCrossedBookYieldsNegativeSpread(t *testing.T) {
	calc, err := New(testConfig(domain.MethodMidPrice))
	require.NoError(t, err)

	res, err := calc.Compute(view(
		[]domain.PriceLevel{lvl("100.20", "10")},
		[]domain.PriceLevel{lvl("100.00", "10")},
	))
	require.NoError(t, err)
	assert.True(t, res.Spread.IsNegative())
	assert.True(t, res.SpreadBps.IsNegative())
}

func TestMetricsRespectLevelLimit(t *testing.T) {
	cfg := testConfig(domain.MethodVolumeWeighted)
	cfg.Levels = 1
	calc, err := New(cfg)
	require.NoError(t, err)

	res, err := calc.Compute(view(
		[]domain.PriceLevel{lvl("100.00", "10"), lvl("99.90", "500")},
		[]domain.PriceLevel{lvl("100.10", "10"), lvl("100.20", "500")},
	))
	require.NoError(t, err)

	// Only the top level on each side counts.
	assert.True(t, res.BidVolume.Equal(decimal.NewFromInt(10)))
	assert.True(t, res.AskVolume.Equal(decimal.NewFromInt(10)))
}

func TestNewUnknownMethod(t *testing.T) {
	_, err := New(Config{Method: domain.Method("weighted-harmonic")})
	assert.Error(t, err)
}

func TestHistoryEvictsOldest(t *testing.T) {
	h := NewHistory(3)
	for i := 1; i <= 5; i++ {
		h.Push(decimal.NewFromInt(int64(i)))
	}
	assert.Equal(t, 3, h.Len())

	// Window now holds 3, 4, 5.
	trend, ok := h.Trend(3)
	require.True(t, ok)
	assert.InDelta(t, 2.0/3.0, trend, 1e-9)
}

func TestHistoryVolatility(t *testing.T) {
	h := NewHistory(10)

	_, ok := h.Volatility(3)
	assert.False(t, ok)

	for i := 0; i < 5; i++ {
		h.Push(decimal.NewFromInt(100))
	}
	vol, ok := h.Volatility(5)
	require.True(t, ok)
	assert.Zero(t, vol)
}

func TestHistoryTrend(t *testing.T) {
	h := NewHistory(10)
	h.Push(decimal.NewFromInt(100))
	h.Push(decimal.NewFromInt(105))
	h.Push(decimal.NewFromInt(110))

	trend, ok := h.Trend(3)
	require.True(t, ok)
	assert.InDelta(t, 0.1, trend, 1e-9)

	_, ok = h.Trend(4)
	assert.False(t, ok)
}
