package models

import (
	"time"
)

// Quote is a point-in-time L1 snapshot for one symbol on one exchange
type Quote struct {
	Exchange  string    `json:"exchange"`
	Symbol    string    `json:"symbol"`
	BidPrice  float64   `json:"bid_price"`
	AskPrice  float64   `json:"ask_price"`
	BidSize   float64   `json:"bid_size"`
	AskSize   float64   `json:"ask_size"`
	Timestamp time.Time `json:"timestamp"`
}

// IsValid reports whether both sides of the book carry a positive price.
func (q *Quote) IsValid() bool {
	return q != nil && q.BidPrice > 0 && q.AskPrice > 0
}

// MidPrice returns (bid+ask)/2, or 0 when either side is missing.
func (q *Quote) MidPrice() float64 {
	if q == nil || q.BidPrice <= 0 || q.AskPrice <= 0 {
		return 0
	}
	return (q.BidPrice + q.AskPrice) / 2
}

// ConsolidatedMarketView is the consolidated best bid/offer across exchanges
type ConsolidatedMarketView struct {
	Symbol          string            `json:"symbol"`
	ExchangesData   map[string]*Quote `json:"exchanges_data"`
	CBBOBidExchange string            `json:"cbbo_bid_exchange"`
	CBBOAskExchange string            `json:"cbbo_ask_exchange"`
	CBBOBidPrice    float64           `json:"cbbo_bid_price"`
	CBBOAskPrice    float64           `json:"cbbo_ask_price"`
	Timestamp       time.Time         `json:"timestamp"`
}

// Spread returns ask minus bid of the consolidated book.
func (v *ConsolidatedMarketView) Spread() float64 {
	return v.CBBOAskPrice - v.CBBOBidPrice
}

// MidPrice returns the consolidated mid price.
func (v *ConsolidatedMarketView) MidPrice() float64 {
	return (v.CBBOBidPrice + v.CBBOAskPrice) / 2
}

// MonitorRequest starts monitoring for a symbol to exchanges mapping. An
// empty mapping reuses the configured one.
type MonitorRequest struct {
	Assets              map[string][]string `json:"assets"`
	MinProfitPercentage *float64            `json:"min_profit_percentage,omitempty"`
	MinProfitAbsolute   *float64            `json:"min_profit_absolute,omitempty"`
}
