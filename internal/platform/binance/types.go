package binance

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/fairpricebot/internal/domain"
)

// depthSnapshotResponse is the REST /api/v3/depth payload. Prices and
// quantities arrive as decimal strings.
type depthSnapshotResponse struct {
	LastUpdateID uint64      `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

// DepthUpdateMessage is one depthUpdate event from the <symbol>@depth diff
// stream. U/u delimit the exchange sequence range the event covers.
type DepthUpdateMessage struct {
	EventType     string      `json:"e"`
	EventTime     int64       `json:"E"`
	Symbol        string      `json:"s"`
	FirstUpdateID uint64      `json:"U"`
	FinalUpdateID uint64      `json:"u"`
	Bids          [][2]string `json:"b"`
	Asks          [][2]string `json:"a"`
}

// SymbolInfo is the subset of /api/v3/exchangeInfo used for startup
// verification.
type SymbolInfo struct {
	Symbol     string `json:"symbol"`
	Status     string `json:"status"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
}

// exchangeInfoResponse is the envelope around SymbolInfo.
type exchangeInfoResponse struct {
	Symbols []SymbolInfo `json:"symbols"`
}

// serverTimeResponse is the /api/v3/time payload.
type serverTimeResponse struct {
	ServerTime int64 `json:"serverTime"`
}

// parseLevels converts exchange [price, quantity] string pairs to decimal
// price levels. Zero-quantity deletions are preserved as-is.
func parseLevels(raw [][2]string) ([]domain.PriceLevel, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	levels := make([]domain.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		price, err := decimal.NewFromString(pair[0])
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", pair[0], err)
		}
		qty, err := decimal.NewFromString(pair[1])
		if err != nil {
			return nil, fmt.Errorf("parse quantity %q: %w", pair[1], err)
		}
		levels = append(levels, domain.PriceLevel{Price: price, Quantity: qty})
	}
	return levels, nil
}

// toSnapshot converts a REST depth payload to the domain snapshot.
func (r depthSnapshotResponse) toSnapshot(symbol string) (domain.BookSnapshot, error) {
	bids, err := parseLevels(r.Bids)
	if err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("binance: snapshot bids: %w", err)
	}
	asks, err := parseLevels(r.Asks)
	if err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("binance: snapshot asks: %w", err)
	}
	return domain.BookSnapshot{
		Symbol:       symbol,
		LastUpdateID: r.LastUpdateID,
		Bids:         bids,
		Asks:         asks,
	}, nil
}

// ToDeltaEvent converts a stream depthUpdate to the domain delta event.
func (m DepthUpdateMessage) ToDeltaEvent() (domain.DeltaEvent, error) {
	bids, err := parseLevels(m.Bids)
	if err != nil {
		return domain.DeltaEvent{}, fmt.Errorf("binance: depth update bids: %w", err)
	}
	asks, err := parseLevels(m.Asks)
	if err != nil {
		return domain.DeltaEvent{}, fmt.Errorf("binance: depth update asks: %w", err)
	}
	return domain.DeltaEvent{
		Symbol:        m.Symbol,
		FirstUpdateID: m.FirstUpdateID,
		LastUpdateID:  m.FinalUpdateID,
		Bids:          bids,
		Asks:          asks,
		EventTime:     time.UnixMilli(m.EventTime),
	}, nil
}
