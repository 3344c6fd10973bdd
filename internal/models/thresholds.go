package models

// ThresholdConfig holds the minimum profit an opportunity must clear
type ThresholdConfig struct {
	MinProfitPercentage float64 `json:"percentage"`
	MinProfitAbsolute   float64 `json:"absolute"`
}

// DefaultThresholds returns the thresholds used when nothing is configured.
func DefaultThresholds() ThresholdConfig {
	return ThresholdConfig{
		MinProfitPercentage: 0.5,
		MinProfitAbsolute:   1.0,
	}
}

// ThresholdUpdate carries an optional partial threshold change.
type ThresholdUpdate struct {
	Percentage *float64 `json:"percentage,omitempty"`
	Absolute   *float64 `json:"absolute,omitempty"`
}
