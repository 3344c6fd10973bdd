package ccxt

import (
	"context"
)

// CCXTClient defines the interface for low-level CCXT HTTP operations
type CCXTClient interface {
	// Health and status
	HealthCheck(ctx context.Context) (*HealthResponse, error)

	// Exchange operations
	GetExchanges(ctx context.Context) (*ExchangesResponse, error)

	// Market data operations
	GetTicker(ctx context.Context, exchange, symbol string) (*TickerResponse, error)
	GetMarkets(ctx context.Context, exchange string) (*MarketsResponse, error)

	// Lifecycle
	Close() error
}

// Ensure our implementation satisfies the interface
var _ CCXTClient = (*Client)(nil)
