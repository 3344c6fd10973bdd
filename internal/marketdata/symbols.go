package marketdata

import (
	"strings"
)

// ToExchangeSymbol converts a canonical BASE-QUOTE symbol into the unified
// BASE/QUOTE form the ccxt sidecar expects.
func ToExchangeSymbol(symbol string) string {
	return strings.Replace(strings.ToUpper(strings.TrimSpace(symbol)), "-", "/", 1)
}

// ToCanonicalSymbol converts a unified BASE/QUOTE symbol into BASE-QUOTE.
// Derivative symbols (settlement suffix after ':') are not spot markets and
// yield false.
func ToCanonicalSymbol(symbol string) (string, bool) {
	if strings.Contains(symbol, ":") {
		return "", false
	}
	base, quote, ok := strings.Cut(symbol, "/")
	if !ok || base == "" || quote == "" {
		return "", false
	}
	return strings.ToUpper(base) + "-" + strings.ToUpper(quote), true
}

// SplitSymbol returns the base and quote assets of a canonical symbol.
func SplitSymbol(symbol string) (base, quote string, ok bool) {
	base, quote, ok = strings.Cut(strings.ToUpper(strings.TrimSpace(symbol)), "-")
	if !ok || base == "" || quote == "" {
		return "", "", false
	}
	return base, quote, true
}
