package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/fairpricebot/internal/domain"
)

// resultTTL bounds how long a cached result stays readable after the feed
// stops producing. A stale fair price is worse than none.
const resultTTL = 30 * time.Second

// ResultCache implements domain.ResultCache. The latest result per symbol is
// stored as a JSON blob at key "fairprice:{symbol}" with a short TTL.
type ResultCache struct {
	rdb *redis.Client
}

// NewResultCache creates a ResultCache backed by the given Client.
func NewResultCache(c *Client) *ResultCache {
	return &ResultCache{rdb: c.Underlying()}
}

func resultKey(symbol string) string {
	return "fairprice:" + symbol
}

// SetResult stores the latest fair-price result for its symbol.
func (rc *ResultCache) SetResult(ctx context.Context, result domain.FairPriceResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("redis: marshal result %s: %w", result.Symbol, err)
	}
	if err := rc.rdb.Set(ctx, resultKey(result.Symbol), payload, resultTTL).Err(); err != nil {
		return fmt.Errorf("redis: set result %s: %w", result.Symbol, err)
	}
	return nil
}

// GetResult retrieves the latest fair-price result for a symbol. It returns
// domain.ErrNotFound when no result has been cached or the TTL has expired.
func (rc *ResultCache) GetResult(ctx context.Context, symbol string) (domain.FairPriceResult, error) {
	raw, err := rc.rdb.Get(ctx, resultKey(symbol)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.FairPriceResult{}, domain.ErrNotFound
		}
		return domain.FairPriceResult{}, fmt.Errorf("redis: get result %s: %w", symbol, err)
	}

	var result domain.FairPriceResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return domain.FairPriceResult{}, fmt.Errorf("redis: decode result %s: %w", symbol, err)
	}
	return result, nil
}

// Compile-time interface check.
var _ domain.ResultCache = (*ResultCache)(nil)
