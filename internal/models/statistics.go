package models

import "time"

// ArbitrageStatistics aggregates recorded opportunities over a time window
type ArbitrageStatistics struct {
	TotalOpportunities          int            `json:"total_opportunities"`
	AverageSpread               float64        `json:"average_spread"`
	MaxSpread                   float64        `json:"max_spread"`
	SpreadTrend                 float64        `json:"spread_trend"`
	OpportunitiesBySymbol       map[string]int `json:"opportunities_by_symbol"`
	OpportunitiesByExchangePair map[string]int `json:"opportunities_by_exchange_pair"`
	StartTime                   time.Time      `json:"start_time"`
	EndTime                     time.Time      `json:"end_time"`
}

// EmptyStatistics returns a zero-valued aggregate for the given window.
func EmptyStatistics(start, end time.Time) *ArbitrageStatistics {
	return &ArbitrageStatistics{
		OpportunitiesBySymbol:       map[string]int{},
		OpportunitiesByExchangePair: map[string]int{},
		StartTime:                   start,
		EndTime:                     end,
	}
}
