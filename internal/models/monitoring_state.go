package models

import "time"

// ArbitrageMonitoringState is the persisted arbitrage monitoring intent
type ArbitrageMonitoringState struct {
	Active     bool                `json:"active"`
	Assets     map[string][]string `json:"assets"`
	Thresholds ThresholdConfig     `json:"thresholds"`
	StartTime  *time.Time          `json:"start_time"`
}

// MarketViewMonitoringState is the persisted market view monitoring intent
type MarketViewMonitoringState struct {
	Active    bool                `json:"active"`
	Symbols   map[string][]string `json:"symbols"`
	StartTime *time.Time          `json:"start_time"`
}

// MonitoringState is the document written by the persistence layer
type MonitoringState struct {
	Arbitrage   ArbitrageMonitoringState  `json:"arbitrage_monitoring"`
	MarketView  MarketViewMonitoringState `json:"market_view_monitoring"`
	LastUpdated *time.Time                `json:"last_updated"`
}

// DefaultMonitoringState returns the state used when nothing has been persisted.
func DefaultMonitoringState() MonitoringState {
	return MonitoringState{
		Arbitrage: ArbitrageMonitoringState{
			Assets:     map[string][]string{},
			Thresholds: DefaultThresholds(),
		},
		MarketView: MarketViewMonitoringState{
			Symbols: map[string][]string{},
		},
	}
}
