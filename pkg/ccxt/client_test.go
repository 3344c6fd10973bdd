package ccxt_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/irfndi/celebrum-arbwatch/internal/config"
	"github.com/irfndi/celebrum-arbwatch/pkg/ccxt"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *ccxt.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return ccxt.NewClient(&config.CCXTConfig{
		ServiceURL: server.URL + "/",
		Timeout:    5,
	})
}

func TestNewClient(t *testing.T) {
	cfg := &config.CCXTConfig{
		ServiceURL: "http://localhost:3001",
		Timeout:    0,
	}

	client := ccxt.NewClient(cfg)
	assert.NotNil(t, client)
	assert.Equal(t, cfg.ServiceURL, client.BaseURL)
	assert.Equal(t, ccxt.DefaultTimeout, client.Timeout())
	assert.Equal(t, ccxt.DefaultTimeout, client.HTTPClient.Timeout)
}

func TestClient_HealthCheck(t *testing.T) {
	tests := []struct {
		name           string
		responseStatus int
		responseBody   interface{}
		expectError    bool
	}{
		{
			name:           "successful health check",
			responseStatus: http.StatusOK,
			responseBody: ccxt.HealthResponse{
				Status:    "ok",
				Timestamp: time.Now().Format(time.RFC3339),
				Version:   "1.0.0",
			},
		},
		{
			name:           "server error",
			responseStatus: http.StatusInternalServerError,
			responseBody:   ccxt.ErrorResponse{Error: "Internal server error"},
			expectError:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/health", r.URL.Path)
				assert.Equal(t, http.MethodGet, r.Method)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.responseStatus)
				_ = json.NewEncoder(w).Encode(tt.responseBody)
			})

			resp, err := client.HealthCheck(context.Background())
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, resp)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ok", resp.Status)
		})
	}
}

func TestClient_GetTicker(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ticker/binance/BTC/USDT", r.URL.Path)
		assert.Equal(t, "/api/ticker/binance/BTC%2FUSDT", r.URL.RawPath)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"exchange": "binance",
			"symbol":   "BTC/USDT",
			"ticker": map[string]interface{}{
				"symbol":    "BTC/USDT",
				"bid":       "50000.5",
				"bidVolume": "1.2",
				"ask":       "50001",
				"askVolume": "0.8",
				"timestamp": 1700000000000,
			},
		})
	})

	resp, err := client.GetTicker(context.Background(), "binance", "BTC/USDT")
	require.NoError(t, err)

	assert.Equal(t, "binance", resp.Exchange)
	assert.True(t, decimal.RequireFromString("50000.5").Equal(resp.Ticker.Bid))
	assert.True(t, decimal.RequireFromString("50001").Equal(resp.Ticker.Ask))
	assert.Equal(t, time.UnixMilli(1700000000000), resp.Ticker.Time())
}

func TestClient_GetTicker_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(ccxt.ErrorResponse{Error: "symbol not found"})
	})

	resp, err := client.GetTicker(context.Background(), "okx", "FOO/BAR")
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.True(t, ccxt.IsNotFound(err))
	assert.Contains(t, err.Error(), "symbol not found")
}

func TestClient_NonJSONError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	})

	_, err := client.GetMarkets(context.Background(), "bybit")
	require.Error(t, err)
	assert.False(t, ccxt.IsNotFound(err))

	var apiErr *ccxt.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream down", apiErr.Message)
}

func TestClient_GetMarketsAndExchanges(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/markets/okx":
			_ = json.NewEncoder(w).Encode(ccxt.MarketsResponse{
				Exchange: "okx",
				Symbols:  []string{"BTC/USDT", "ETH/USDT"},
				Count:    2,
			})
		case "/api/exchanges":
			_ = json.NewEncoder(w).Encode(ccxt.ExchangesResponse{
				Exchanges: []ccxt.ExchangeInfo{{ID: "okx", Name: "OKX", HasSpot: true}},
				Count:     1,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	markets, err := client.GetMarkets(context.Background(), "okx")
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, markets.Symbols)

	exchanges, err := client.GetExchanges(context.Background())
	require.NoError(t, err)
	require.Len(t, exchanges.Exchanges, 1)
	assert.Equal(t, "okx", exchanges.Exchanges[0].ID)
	assert.NoError(t, client.Close())
}

func TestClient_ContextCancelled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.GetTicker(ctx, "binance", "BTC/USDT")
	assert.Error(t, err)
}
