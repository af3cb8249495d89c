// Package binance implements the REST and WebSocket contracts with the
// exchange: depth snapshots, symbol verification, and the diff-event stream.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/fairpricebot/internal/domain"
)

// Client is the REST client for the exchange API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a REST client rooted at baseURL, e.g.
// "https://api.binance.com".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetDepthSnapshot fetches a full depth snapshot for the symbol. Failures are
// wrapped in domain.ErrSnapshotUnavailable so the synchronizer can classify
// them uniformly.
func (c *Client) GetDepthSnapshot(ctx context.Context, symbol string, limit int) (domain.BookSnapshot, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.get(ctx, "/api/v3/depth?"+params.Encode())
	if err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("binance: get depth snapshot: %w: %w",
			domain.ErrSnapshotUnavailable, err)
	}

	var resp depthSnapshotResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("binance: decode depth snapshot: %w: %w",
			domain.ErrSnapshotUnavailable, err)
	}
	return resp.toSnapshot(strings.ToUpper(symbol))
}

// GetSymbolInfo returns exchange metadata for one symbol. Used at startup to
// verify the configured symbol exists and is trading.
func (c *Client) GetSymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))

	body, err := c.get(ctx, "/api/v3/exchangeInfo?"+params.Encode())
	if err != nil {
		return SymbolInfo{}, fmt.Errorf("binance: get exchange info: %w", err)
	}

	var resp exchangeInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return SymbolInfo{}, fmt.Errorf("binance: decode exchange info: %w", err)
	}
	for _, s := range resp.Symbols {
		if strings.EqualFold(s.Symbol, symbol) {
			return s, nil
		}
	}
	return SymbolInfo{}, fmt.Errorf("binance: symbol %q: %w", symbol, domain.ErrNotFound)
}

// GetServerTime returns the exchange server time. Used as a lightweight
// connectivity health check.
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	body, err := c.get(ctx, "/api/v3/time")
	if err != nil {
		return time.Time{}, fmt.Errorf("binance: get server time: %w", err)
	}

	var resp serverTimeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return time.Time{}, fmt.Errorf("binance: decode server time: %w", err)
	}
	return time.UnixMilli(resp.ServerTime), nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 256))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// StreamURL builds the diff-depth stream endpoint for a symbol, e.g.
// "wss://stream.binance.com:9443/ws/btcusdt@depth@100ms".
func StreamURL(wsHost, symbol string) string {
	return strings.TrimRight(wsHost, "/") + "/ws/" + strings.ToLower(symbol) + "@depth@100ms"
}

// Compile-time interface check.
var _ domain.SnapshotProvider = (*Client)(nil)
