package book

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/fairpricebot/internal/domain"
)

func lvl(price, qty string) domain.PriceLevel {
	return domain.PriceLevel{
		Price:    decimal.RequireFromString(price),
		Quantity: decimal.RequireFromString(qty),
	}
}

func snapshot(id uint64, bids, asks []domain.PriceLevel) domain.BookSnapshot {
	return domain.BookSnapshot{
		Symbol:       "BTCUSDT",
		LastUpdateID: id,
		Bids:         bids,
		Asks:         asks,
	}
}

func TestInitFromSnapshotDropsZeroQuantity(t *testing.T) {
	s := NewStore("BTCUSDT", 0)
	s.InitFromSnapshot(snapshot(100,
		[]domain.PriceLevel{lvl("100.00", "1"), lvl("99.90", "0")},
		[]domain.PriceLevel{lvl("100.10", "2"), lvl("100.20", "0")},
	))

	assert.Equal(t, 1, s.Depth(domain.SideBid))
	assert.Equal(t, 1, s.Depth(domain.SideAsk))
	assert.Equal(t, uint64(100), s.LastUpdateID())
}

func TestApplyZeroQuantityDeletesAndIsIdempotent(t *testing.T) {
	s := NewStore("BTCUSDT", 0)
	s.Apply(domain.SideBid, lvl("100.00", "5"))
	require.Equal(t, 1, s.Depth(domain.SideBid))

	s.Apply(domain.SideBid, lvl("100.00", "0"))
	assert.Equal(t, 0, s.Depth(domain.SideBid))

	// Deleting an absent price is a no-op, not an error.
	s.Apply(domain.SideBid, lvl("100.00", "0"))
	s.Apply(domain.SideBid, lvl("123.45", "0"))
	assert.Equal(t, 0, s.Depth(domain.SideBid))
}

func TestApplyUpsertsExistingPrice(t *testing.T) {
	s := NewStore("BTCUSDT", 0)
	s.Apply(domain.SideAsk, lvl("100.10", "5"))
	s.Apply(domain.SideAsk, lvl("100.10", "7"))

	best, ok := s.BestAsk()
	require.True(t, ok)
	assert.True(t, best.Quantity.Equal(decimal.RequireFromString("7")))
	assert.Equal(t, 1, s.Depth(domain.SideAsk))
}

func TestApplyNegativeQuantityPanics(t *testing.T) {
	s := NewStore("BTCUSDT", 0)
	assert.Panics(t, func() {
		s.Apply(domain.SideBid, lvl("100.00", "-1"))
	})
}

func TestTrimToDepthKeepsNearestBest(t *testing.T) {
	s := NewStore("BTCUSDT", 5)

	var bids, asks []domain.PriceLevel
	for _, p := range []string{"100.00", "99.90", "99.80", "99.70", "99.60", "99.50", "99.40"} {
		bids = append(bids, domain.PriceLevel{
			Price:    decimal.RequireFromString(p),
			Quantity: decimal.NewFromInt(1),
		})
	}
	for _, p := range []string{"100.10", "100.20", "100.30", "100.40", "100.50", "100.60", "100.70"} {
		asks = append(asks, domain.PriceLevel{
			Price:    decimal.RequireFromString(p),
			Quantity: decimal.NewFromInt(1),
		})
	}
	s.InitFromSnapshot(snapshot(1, bids, asks))

	require.Equal(t, 5, s.Depth(domain.SideBid))
	require.Equal(t, 5, s.Depth(domain.SideAsk))

	view := s.View(0)
	// Bids keep the 5 highest, asks the 5 lowest.
	assert.True(t, view.Bids[len(view.Bids)-1].Price.Equal(decimal.RequireFromString("99.60")))
	assert.True(t, view.Asks[len(view.Asks)-1].Price.Equal(decimal.RequireFromString("100.50")))
}

func TestViewOrderingAndTruncation(t *testing.T) {
	s := NewStore("BTCUSDT", 0)
	s.InitFromSnapshot(snapshot(7,
		[]domain.PriceLevel{lvl("99.80", "1"), lvl("100.00", "2"), lvl("99.90", "3")},
		[]domain.PriceLevel{lvl("100.30", "1"), lvl("100.10", "2"), lvl("100.20", "3")},
	))

	view := s.View(2)
	require.Len(t, view.Bids, 2)
	require.Len(t, view.Asks, 2)

	// Bids descend from the best, asks ascend.
	assert.True(t, view.Bids[0].Price.Equal(decimal.RequireFromString("100.00")))
	assert.True(t, view.Bids[1].Price.Equal(decimal.RequireFromString("99.90")))
	assert.True(t, view.Asks[0].Price.Equal(decimal.RequireFromString("100.10")))
	assert.True(t, view.Asks[1].Price.Equal(decimal.RequireFromString("100.20")))

	assert.True(t, view.HasBid)
	assert.True(t, view.HasAsk)
	assert.Equal(t, uint64(7), view.LastUpdateID)
}

func TestCrossedBookIsObservable(t *testing.T) {
	s := NewStore("BTCUSDT", 0)
	s.Apply(domain.SideBid, lvl("100.20", "1"))
	s.Apply(domain.SideAsk, lvl("100.00", "1"))

	view := s.View(0)
	assert.True(t, view.Crossed())

	spread, ok := view.Spread()
	require.True(t, ok)
	assert.True(t, spread.IsNegative())
}

func TestApplyBatchIsAtomicUnderConcurrentReads(t *testing.T) {
	s := NewStore("BTCUSDT", 0)
	s.InitFromSnapshot(snapshot(0,
		[]domain.PriceLevel{lvl("100.00", "1")},
		[]domain.PriceLevel{lvl("100.10", "1")},
	))

	// Each batch replaces both top quantities with the same sequence number,
	// so a consistent view must never mix quantities from two batches.
	const iterations = 500
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			view := s.View(1)
			if !view.HasBid || !view.HasAsk {
				continue
			}
			if !view.BestBid.Quantity.Equal(view.BestAsk.Quantity) {
				t.Error("observed half-applied batch")
				return
			}
		}
	}()

	for i := 1; i <= iterations; i++ {
		qty := decimal.NewFromInt(int64(i))
		s.ApplyBatch(
			[]domain.PriceLevel{{Price: decimal.RequireFromString("100.00"), Quantity: qty}},
			[]domain.PriceLevel{{Price: decimal.RequireFromString("100.10"), Quantity: qty}},
			uint64(i),
		)
	}
	close(done)
	wg.Wait()

	assert.Equal(t, uint64(iterations), s.LastUpdateID())
}

func TestMid(t *testing.T) {
	s := NewStore("BTCUSDT", 0)

	_, ok := s.Mid()
	assert.False(t, ok)

	s.Apply(domain.SideBid, lvl("100.00", "1"))
	s.Apply(domain.SideAsk, lvl("100.10", "1"))

	mid, ok := s.Mid()
	require.True(t, ok)
	assert.True(t, mid.Equal(decimal.RequireFromString("100.05")))
}
