package models

import (
	"slices"
	"time"
)

const (
	DefaultUserMaxMonitors     = 10
	MaxUserMonitors            = 50
	DefaultUserUpdateFrequency = 30
	DefaultSignificantChange   = 0.1
)

// Alert frequencies and message formats accepted in UserPreferences.
var (
	AlertFrequencies = []string{"immediate", "hourly", "daily"}
	MessageFormats   = []string{"simple", "detailed"}
)

// UserArbitrageConfig is a chat's saved arbitrage monitoring setup.
type UserArbitrageConfig struct {
	Assets              []string `json:"assets"`
	Exchanges           []string `json:"exchanges"`
	ThresholdPercentage float64  `json:"threshold_percentage"`
	ThresholdAbsolute   float64  `json:"threshold_absolute"`
	MaxMonitors         int      `json:"max_monitors"`
	Enabled             bool     `json:"enabled"`
}

// UserMarketViewConfig is a chat's saved market view setup. UpdateFrequency
// is in seconds and SignificantChangeThreshold in percent.
type UserMarketViewConfig struct {
	Symbols                    []string `json:"symbols"`
	Exchanges                  []string `json:"exchanges"`
	UpdateFrequency            int      `json:"update_frequency"`
	SignificantChangeThreshold float64  `json:"significant_change_threshold"`
	Enabled                    bool     `json:"enabled"`
}

type UserPreferences struct {
	AlertFrequency string `json:"alert_frequency"`
	MessageFormat  string `json:"message_format"`
	Timezone       string `json:"timezone"`
}

// UserConfig groups everything a chat can configure through the bot.
type UserConfig struct {
	Arbitrage   UserArbitrageConfig  `json:"arbitrage"`
	MarketView  UserMarketViewConfig `json:"market_view"`
	Preferences UserPreferences      `json:"preferences"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// Clone returns a deep copy.
func (c UserConfig) Clone() UserConfig {
	out := c
	out.Arbitrage.Assets = slices.Clone(c.Arbitrage.Assets)
	out.Arbitrage.Exchanges = slices.Clone(c.Arbitrage.Exchanges)
	out.MarketView.Symbols = slices.Clone(c.MarketView.Symbols)
	out.MarketView.Exchanges = slices.Clone(c.MarketView.Exchanges)
	return out
}
