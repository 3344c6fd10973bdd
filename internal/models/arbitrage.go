package models

import (
	"fmt"
	"time"
)

// ArbitrageOpportunity represents a detected price gap between two venues
type ArbitrageOpportunity struct {
	ID                  string    `json:"id,omitempty" db:"id"`
	Symbol              string    `json:"symbol" db:"symbol"`
	BuyExchange         string    `json:"buy_exchange" db:"buy_exchange"`
	SellExchange        string    `json:"sell_exchange" db:"sell_exchange"`
	BuyPrice            float64   `json:"buy_price" db:"buy_price"`
	SellPrice           float64   `json:"sell_price" db:"sell_price"`
	ProfitPercentage    float64   `json:"profit_percentage" db:"profit_percentage"`
	ProfitAbsolute      float64   `json:"profit_absolute" db:"profit_absolute"`
	Timestamp           time.Time `json:"timestamp" db:"timestamp"`
	ThresholdPercentage float64   `json:"threshold_percentage" db:"threshold_percentage"`
	ThresholdAbsolute   float64   `json:"threshold_absolute" db:"threshold_absolute"`
}

// Key returns the composite identity used by the active opportunity map.
func (o ArbitrageOpportunity) Key() string {
	return OpportunityKey(o.Symbol, o.BuyExchange, o.SellExchange)
}

// ExchangePair returns the "buy-sell" label used in statistics.
func (o ArbitrageOpportunity) ExchangePair() string {
	return fmt.Sprintf("%s-%s", o.BuyExchange, o.SellExchange)
}

// OpportunityKey builds the active map key for a symbol and exchange pair.
func OpportunityKey(symbol, buyExchange, sellExchange string) string {
	return fmt.Sprintf("%s_%s_%s", symbol, buyExchange, sellExchange)
}

// ArbitrageOpportunitiesResponse represents the response for arbitrage opportunities list
type ArbitrageOpportunitiesResponse struct {
	Opportunities []ArbitrageOpportunity `json:"opportunities"`
	Count         int                    `json:"count"`
	Timestamp     time.Time              `json:"timestamp"`
}

// ScanRequest is the body of a one-shot cross-exchange scan.
type ScanRequest struct {
	Symbol    string   `json:"symbol" binding:"required"`
	Exchanges []string `json:"exchanges" binding:"required"`
}

// SyntheticScanRequest is the body of a one-shot synthetic scan.
type SyntheticScanRequest struct {
	BaseAsset   string   `json:"base_asset" binding:"required"`
	QuoteAssets []string `json:"quote_assets" binding:"required"`
}
