package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/fairpricebot/internal/domain"
)

func TestGetDepthSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/depth", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "500", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"lastUpdateId": 42, "bids": [["100.00","1"]], "asks": [["100.10","2"]]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	snap, err := client.GetDepthSnapshot(context.Background(), "BTCUSDT", 500)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), snap.LastUpdateID)
	assert.Len(t, snap.Bids, 1)
	assert.Len(t, snap.Asks, 1)
}

func TestGetDepthSnapshotServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":-1003,"msg":"Too many requests"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.GetDepthSnapshot(context.Background(), "BTCUSDT", 100)
	assert.ErrorIs(t, err, domain.ErrSnapshotUnavailable)
}

func TestGetSymbolInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/exchangeInfo", r.URL.Path)
		w.Write([]byte(`{"symbols": [
			{"symbol": "ETHUSDT", "status": "TRADING", "baseAsset": "ETH", "quoteAsset": "USDT"},
			{"symbol": "BTCUSDT", "status": "TRADING", "baseAsset": "BTC", "quoteAsset": "USDT"}
		]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)

	info, err := client.GetSymbolInfo(context.Background(), "btcusdt")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", info.Symbol)
	assert.Equal(t, "TRADING", info.Status)

	_, err = client.GetSymbolInfo(context.Background(), "DOGEUSDT")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetServerTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"serverTime": 1672515782136}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	ts, err := client.GetServerTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1672515782136), ts.UnixMilli())
}
