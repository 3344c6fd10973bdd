package models

import "time"

// ArbitrageStatus is the arbitrage part of the service status report
type ArbitrageStatus struct {
	Monitoring               bool                `json:"monitoring"`
	MonitoredAssets          map[string][]string `json:"monitored_assets"`
	ActiveOpportunitiesCount int                 `json:"active_opportunities_count"`
	HistoryCount             int                 `json:"history_count"`
	LastUpdate               time.Time           `json:"last_update"`
	Thresholds               ThresholdConfig     `json:"thresholds"`
}

// MarketViewStatus is the market view part of the service status report
type MarketViewStatus struct {
	Monitoring             bool                `json:"monitoring"`
	MonitoredSymbols       map[string][]string `json:"monitored_symbols"`
	LatestDataCount        int                 `json:"latest_data_count"`
	ConsolidatedViewsCount int                 `json:"consolidated_views_count"`
	LastUpdate             time.Time           `json:"last_update"`
}

// ServiceStatus combines both monitoring services
type ServiceStatus struct {
	Arbitrage  ArbitrageStatus  `json:"arbitrage"`
	MarketView MarketViewStatus `json:"market_view"`
	Timestamp  time.Time        `json:"timestamp"`
}
