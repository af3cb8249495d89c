// Package book holds the authoritative depth-limited order book for a single
// instrument. One writer (the synchronizer) mutates the store; any number of
// readers take consistent point-in-time views.
package book

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/fairpricebot/internal/domain"
)

// btreeDegree matches the small working set of a depth-limited book.
const btreeDegree = 2

// side is one half of the book, kept ordered by price ascending. Best bid is
// the tree max, best ask the tree min.
type side struct {
	tree *btree.BTreeG[domain.PriceLevel]
}

func newSide() *side {
	return &side{
		tree: btree.NewG(btreeDegree, func(a, b domain.PriceLevel) bool {
			return a.Price.LessThan(b.Price)
		}),
	}
}

// Store is the mutable dual-sided price-level map. All methods are safe for
// one concurrent writer plus any number of readers.
type Store struct {
	mu           sync.RWMutex
	symbol       string
	maxDepth     int
	lastUpdateID uint64
	bids         *side
	asks         *side
}

// NewStore creates an empty Store for one symbol. maxDepth bounds the number
// of levels retained per side after each batch.
func NewStore(symbol string, maxDepth int) *Store {
	return &Store{
		symbol:   symbol,
		maxDepth: maxDepth,
		bids:     newSide(),
		asks:     newSide(),
	}
}

// InitFromSnapshot resets both sides from a REST snapshot, drops zero-quantity
// levels, trims to depth, and records the snapshot's sequence number.
func (s *Store) InitFromSnapshot(snap domain.BookSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bids = newSide()
	s.asks = newSide()
	for _, lvl := range snap.Bids {
		if lvl.Quantity.IsPositive() {
			s.bids.tree.ReplaceOrInsert(lvl)
		}
	}
	for _, lvl := range snap.Asks {
		if lvl.Quantity.IsPositive() {
			s.asks.tree.ReplaceOrInsert(lvl)
		}
	}
	s.lastUpdateID = snap.LastUpdateID
	s.trimLocked()
}

// Apply upserts or deletes a single level. Zero quantity deletes the price;
// deleting an absent price is a no-op. A negative quantity can only reach the
// store through a synchronizer bug, so it fails loudly rather than corrupting
// state.
func (s *Store) Apply(bookSide domain.Side, lvl domain.PriceLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(bookSide, lvl)
}

func (s *Store) applyLocked(bookSide domain.Side, lvl domain.PriceLevel) {
	if lvl.Quantity.IsNegative() {
		panic(fmt.Sprintf("book: negative quantity %s at price %s on %s side of %s",
			lvl.Quantity, lvl.Price, bookSide, s.symbol))
	}

	tree := s.bids.tree
	if bookSide == domain.SideAsk {
		tree = s.asks.tree
	}
	if lvl.Quantity.IsZero() {
		tree.Delete(domain.PriceLevel{Price: lvl.Price})
		return
	}
	tree.ReplaceOrInsert(lvl)
}

// ApplyBatch applies all of one delta event's changes as a single logical
// unit and advances the book's sequence number. Readers never observe a
// partially applied batch.
func (s *Store) ApplyBatch(bids, asks []domain.PriceLevel, lastUpdateID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, lvl := range bids {
		s.applyLocked(domain.SideBid, lvl)
	}
	for _, lvl := range asks {
		s.applyLocked(domain.SideAsk, lvl)
	}
	s.lastUpdateID = lastUpdateID
}

// TrimToDepth drops levels beyond maxDepth from the best price on each side.
// The synchronizer calls it after every applied batch.
func (s *Store) TrimToDepth() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trimLocked()
}

func (s *Store) trimLocked() {
	if s.maxDepth <= 0 {
		return
	}
	// Bids: best is the max, so evict from the low end.
	for s.bids.tree.Len() > s.maxDepth {
		if min, ok := s.bids.tree.Min(); ok {
			s.bids.tree.Delete(min)
		}
	}
	// Asks: best is the min, so evict from the high end.
	for s.asks.tree.Len() > s.maxDepth {
		if max, ok := s.asks.tree.Max(); ok {
			s.asks.tree.Delete(max)
		}
	}
}

// BestBid returns the highest bid level, or false when the bid side is empty.
func (s *Store) BestBid() (domain.PriceLevel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bids.tree.Max()
}

// BestAsk returns the lowest ask level, or false when the ask side is empty.
func (s *Store) BestAsk() (domain.PriceLevel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.asks.tree.Min()
}

// Depth returns the number of levels currently held on one side.
func (s *Store) Depth(bookSide domain.Side) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if bookSide == domain.SideAsk {
		return s.asks.tree.Len()
	}
	return s.bids.tree.Len()
}

// Symbol returns the instrument this store tracks.
func (s *Store) Symbol() string {
	return s.symbol
}

// LastUpdateID returns the sequence number of the last applied batch.
func (s *Store) LastUpdateID() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdateID
}

// View copies out an immutable, consistent snapshot of the top n levels per
// side (n <= 0 copies everything). The critical section is only the copy
// itself; readers never block the writer beyond that.
func (s *Store) View(n int) domain.BookView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view := domain.BookView{
		Symbol:       s.symbol,
		LastUpdateID: s.lastUpdateID,
		Taken:        time.Now(),
	}

	take := func(count int) int {
		if n <= 0 || n > count {
			return count
		}
		return n
	}

	view.Bids = make([]domain.PriceLevel, 0, take(s.bids.tree.Len()))
	s.bids.tree.Descend(func(lvl domain.PriceLevel) bool {
		view.Bids = append(view.Bids, lvl)
		return n <= 0 || len(view.Bids) < n
	})
	view.Asks = make([]domain.PriceLevel, 0, take(s.asks.tree.Len()))
	s.asks.tree.Ascend(func(lvl domain.PriceLevel) bool {
		view.Asks = append(view.Asks, lvl)
		return n <= 0 || len(view.Asks) < n
	})

	if bb, ok := s.bids.tree.Max(); ok {
		view.HasBid = true
		view.BestBid = bb
	}
	if ba, ok := s.asks.tree.Min(); ok {
		view.HasAsk = true
		view.BestAsk = ba
	}
	return view
}

// Mid returns the current mid price without building a full view.
func (s *Store) Mid() (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bb, okB := s.bids.tree.Max()
	ba, okA := s.asks.tree.Min()
	if !okB || !okA {
		return decimal.Decimal{}, false
	}
	return bb.Price.Add(ba.Price).Div(decimal.NewFromInt(2)), true
}
