// Package marketdata adapts the ccxt sidecar into the L1 quote and symbol
// source consumed by the arbitrage and market-view services.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/irfndi/celebrum-arbwatch/internal/metrics"
	"github.com/irfndi/celebrum-arbwatch/internal/models"
	"github.com/irfndi/celebrum-arbwatch/internal/telemetry"
	"github.com/irfndi/celebrum-arbwatch/internal/utils"
	"github.com/irfndi/celebrum-arbwatch/pkg/ccxt"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultRequestTimeout bounds a single gateway call.
const DefaultRequestTimeout = 10 * time.Second

// Gateway supplies point-in-time L1 quotes and symbol lists per exchange.
type Gateway interface {
	// GetL1MarketData returns the latest quote, or nil with no error when the
	// symbol is not listed on the exchange. Errors wrap utils.ErrTransportFailure.
	GetL1MarketData(ctx context.Context, exchange, symbol string) (*models.Quote, error)
	// GetAllSymbols returns canonical symbols per exchange. Exchanges that
	// fail are omitted rather than reported.
	GetAllSymbols(ctx context.Context) (map[string][]string, error)
}

// CCXTGateway implements Gateway on top of the ccxt sidecar client.
type CCXTGateway struct {
	client    ccxt.CCXTClient
	exchanges []string
	timeout   time.Duration
	breakers  *breakerSet
	cache     SymbolCache
	metrics   *metrics.Collector
	logger    *logrus.Logger
	tracer    trace.Tracer
}

// Option customises a CCXTGateway.
type Option func(*CCXTGateway)

// WithSymbolCache caches symbol lists between GetAllSymbols calls.
func WithSymbolCache(cache SymbolCache) Option {
	return func(g *CCXTGateway) { g.cache = cache }
}

// WithMetrics records latency and failures on the collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(g *CCXTGateway) { g.metrics = collector }
}

// WithTimeout overrides DefaultRequestTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(g *CCXTGateway) {
		if timeout > 0 {
			g.timeout = timeout
		}
	}
}

// WithCircuitBreaker overrides the per-exchange breaker configuration.
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(g *CCXTGateway) { g.breakers = newBreakerSet(config, g.logger) }
}

// NewCCXTGateway creates a gateway for the given supported exchanges.
func NewCCXTGateway(client ccxt.CCXTClient, exchanges []string, logger *logrus.Logger, opts ...Option) *CCXTGateway {
	normalized := make([]string, 0, len(exchanges))
	for _, exchange := range exchanges {
		if exchange = strings.ToLower(strings.TrimSpace(exchange)); exchange != "" {
			normalized = append(normalized, exchange)
		}
	}

	g := &CCXTGateway{
		client:    client,
		exchanges: normalized,
		timeout:   DefaultRequestTimeout,
		logger:    logger,
		tracer:    telemetry.Tracer("marketdata"),
	}
	g.breakers = newBreakerSet(CircuitBreakerConfig{}, logger)
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SupportedExchanges returns the exchanges this gateway polls.
func (g *CCXTGateway) SupportedExchanges() []string {
	out := make([]string, len(g.exchanges))
	copy(out, g.exchanges)
	return out
}

// UnsupportedExchanges returns the configured exchanges the sidecar does not
// offer with spot markets.
func (g *CCXTGateway) UnsupportedExchanges(ctx context.Context) ([]string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.GetExchanges(reqCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: list exchanges: %w", utils.ErrTransportFailure, err)
	}

	offered := make(map[string]struct{}, len(resp.Exchanges))
	for _, info := range resp.Exchanges {
		if info.HasSpot {
			offered[strings.ToLower(info.ID)] = struct{}{}
		}
	}

	var missing []string
	for _, exchange := range g.exchanges {
		if _, ok := offered[exchange]; !ok {
			missing = append(missing, exchange)
		}
	}
	return missing, nil
}

// BreakerStates reports the circuit breaker state per exchange seen so far.
func (g *CCXTGateway) BreakerStates() map[string]string {
	return g.breakers.states()
}

// GetL1MarketData fetches the top of book for symbol on exchange.
func (g *CCXTGateway) GetL1MarketData(ctx context.Context, exchange, symbol string) (*models.Quote, error) {
	exchange = strings.ToLower(strings.TrimSpace(exchange))
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if exchange == "" || symbol == "" {
		return nil, utils.NewValidationError("exchange and symbol are required")
	}

	ctx, span := g.tracer.Start(ctx, "marketdata.GetL1MarketData", trace.WithAttributes(
		attribute.String("exchange", exchange),
		attribute.String("symbol", symbol),
	))
	defer span.End()

	breaker := g.breakers.get(exchange)
	if !breaker.Allow() {
		g.metrics.RecordGatewayFailure(exchange)
		span.SetStatus(codes.Error, ErrCircuitOpen.Error())
		return nil, fmt.Errorf("%w: %s: %w", utils.ErrTransportFailure, exchange, ErrCircuitOpen)
	}

	reqCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.client.GetTicker(reqCtx, exchange, ToExchangeSymbol(symbol))
	g.metrics.ObserveQuoteLatency(exchange, time.Since(start))

	if err != nil {
		if ccxt.IsNotFound(err) {
			breaker.Success()
			span.SetAttributes(attribute.Bool("not_found", true))
			return nil, nil
		}
		breaker.Failure()
		g.metrics.RecordGatewayFailure(exchange)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: ticker %s on %s: %w", utils.ErrTransportFailure, symbol, exchange, err)
	}
	breaker.Success()

	return tickerToQuote(exchange, symbol, resp.Ticker), nil
}

// GetAllSymbols lists canonical spot symbols for every supported exchange.
func (g *CCXTGateway) GetAllSymbols(ctx context.Context) (map[string][]string, error) {
	result := make(map[string][]string, len(g.exchanges))

	for _, exchange := range g.exchanges {
		if g.cache != nil {
			if symbols, ok := g.cache.Get(ctx, exchange); ok {
				result[exchange] = symbols
				continue
			}
		}

		symbols, err := g.fetchSymbols(ctx, exchange)
		if err != nil {
			g.logger.WithError(err).WithField("exchange", exchange).Warn("Failed to get symbols from exchange")
			continue
		}
		if len(symbols) == 0 {
			continue
		}

		result[exchange] = symbols
		if g.cache != nil {
			g.cache.Set(ctx, exchange, symbols)
		}
	}

	return result, nil
}

func (g *CCXTGateway) fetchSymbols(ctx context.Context, exchange string) ([]string, error) {
	breaker := g.breakers.get(exchange)
	if !breaker.Allow() {
		return nil, ErrCircuitOpen
	}

	reqCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.GetMarkets(reqCtx, exchange)
	if err != nil {
		var apiErr *ccxt.APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode >= 500 {
			breaker.Failure()
			g.metrics.RecordGatewayFailure(exchange)
		}
		return nil, err
	}
	breaker.Success()

	seen := make(map[string]struct{}, len(resp.Symbols))
	symbols := make([]string, 0, len(resp.Symbols))
	for _, raw := range resp.Symbols {
		canonical, ok := ToCanonicalSymbol(raw)
		if !ok {
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		symbols = append(symbols, canonical)
	}
	sort.Strings(symbols)
	return symbols, nil
}

func tickerToQuote(exchange, symbol string, t ccxt.Ticker) *models.Quote {
	bid, _ := t.Bid.Float64()
	ask, _ := t.Ask.Float64()
	bidSize, _ := t.BidVolume.Float64()
	askSize, _ := t.AskVolume.Float64()

	return &models.Quote{
		Exchange:  exchange,
		Symbol:    symbol,
		BidPrice:  bid,
		AskPrice:  ask,
		BidSize:   bidSize,
		AskSize:   askSize,
		Timestamp: t.Time().UTC(),
	}
}
