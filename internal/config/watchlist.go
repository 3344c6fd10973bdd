package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Watchlist holds default symbol to exchanges mappings for both monitors.
//
//	[arbitrage]
//	"BTC-USDT" = ["binance", "okx"]
//
//	[market_view]
//	"ETH-USDT" = ["binance", "bybit"]
type Watchlist struct {
	Arbitrage  map[string][]string `toml:"arbitrage"`
	MarketView map[string][]string `toml:"market_view"`
}

// LoadWatchlist decodes a TOML watchlist. An empty path yields an empty watchlist.
func LoadWatchlist(path string) (*Watchlist, error) {
	wl := &Watchlist{
		Arbitrage:  map[string][]string{},
		MarketView: map[string][]string{},
	}
	if path == "" {
		return wl, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read watchlist %s: %w", path, err)
	}
	if _, err := toml.Decode(string(data), wl); err != nil {
		return nil, fmt.Errorf("failed to decode watchlist %s: %w", path, err)
	}

	wl.Arbitrage = normalizeAssets(wl.Arbitrage)
	wl.MarketView = normalizeAssets(wl.MarketView)
	return wl, nil
}

func normalizeAssets(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for symbol, exchanges := range in {
		normalized := make([]string, 0, len(exchanges))
		for _, ex := range exchanges {
			ex = strings.ToLower(strings.TrimSpace(ex))
			if ex != "" {
				normalized = append(normalized, ex)
			}
		}
		out[strings.ToUpper(strings.TrimSpace(symbol))] = normalized
	}
	return out
}
