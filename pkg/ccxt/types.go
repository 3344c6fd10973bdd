package ccxt

import (
	"time"

	"github.com/shopspring/decimal"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Uptime    string `json:"uptime,omitempty"`
	Version   string `json:"version,omitempty"`
}

// ErrorResponse represents an error response from the CCXT service
type ErrorResponse struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ExchangeInfo represents information about a supported exchange
type ExchangeInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	RateLimit int    `json:"rateLimit"`
	HasSpot   bool   `json:"hasSpot"`
	Status    string `json:"status"`
}

// ExchangesResponse represents the response from /api/exchanges
type ExchangesResponse struct {
	Exchanges []ExchangeInfo `json:"exchanges"`
	Count     int            `json:"count"`
}

// Ticker represents top-of-book ticker data from an exchange.
// Timestamp is milliseconds since the Unix epoch as reported by ccxt.
type Ticker struct {
	Symbol    string          `json:"symbol"`
	Bid       decimal.Decimal `json:"bid"`
	BidVolume decimal.Decimal `json:"bidVolume"`
	Ask       decimal.Decimal `json:"ask"`
	AskVolume decimal.Decimal `json:"askVolume"`
	Last      decimal.Decimal `json:"last"`
	Timestamp int64           `json:"timestamp"`
	Datetime  string          `json:"datetime"`
}

// Time converts the ticker timestamp, falling back to now when absent.
func (t Ticker) Time() time.Time {
	if t.Timestamp <= 0 {
		return time.Now()
	}
	return time.UnixMilli(t.Timestamp)
}

// TickerResponse represents the response from /api/ticker/{exchange}/{symbol}
type TickerResponse struct {
	Exchange string `json:"exchange"`
	Symbol   string `json:"symbol"`
	Ticker   Ticker `json:"ticker"`
}

// MarketsResponse represents the response from /api/markets/{exchange}
type MarketsResponse struct {
	Exchange string   `json:"exchange"`
	Symbols  []string `json:"symbols"`
	Count    int      `json:"count"`
}
