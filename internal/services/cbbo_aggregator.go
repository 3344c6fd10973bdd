package services

import (
	"context"
	"sync"
	"time"

	"github.com/irfndi/celebrum-arbwatch/internal/marketdata"
	"github.com/irfndi/celebrum-arbwatch/internal/metrics"
	"github.com/irfndi/celebrum-arbwatch/internal/models"
	"github.com/irfndi/celebrum-arbwatch/internal/telemetry"
	"github.com/irfndi/celebrum-arbwatch/internal/utils"
	"github.com/sirupsen/logrus"
)

// CBBOAggregator computes the consolidated best bid and offer for a symbol and
// caches the latest view and quotes for cheap reads between polling cycles.
type CBBOAggregator struct {
	gateway            marketdata.Gateway
	supportedExchanges []string
	metrics            *metrics.Collector
	logger             *logrus.Logger
	tracer             *telemetry.BusinessTracer

	mu         sync.RWMutex
	views      map[string]*models.ConsolidatedMarketView
	latest     map[string]*models.Quote
	lastUpdate time.Time
}

// NewCBBOAggregator creates an aggregator. supportedExchanges is used by
// GetCBBO when no cached view exists.
func NewCBBOAggregator(gateway marketdata.Gateway, supportedExchanges []string, collector *metrics.Collector, logger *logrus.Logger) *CBBOAggregator {
	return &CBBOAggregator{
		gateway:            gateway,
		supportedExchanges: normalizeExchanges(supportedExchanges),
		metrics:            collector,
		logger:             logger,
		tracer:             telemetry.NewBusinessTracer(),
		views:              make(map[string]*models.ConsolidatedMarketView),
		latest:             make(map[string]*models.Quote),
	}
}

// GetConsolidatedView fetches one quote per exchange and computes the CBBO.
// It returns nil with no error when no exchange produced a valid quote.
func (a *CBBOAggregator) GetConsolidatedView(ctx context.Context, symbol string, exchanges []string) (*models.ConsolidatedMarketView, error) {
	symbol = normalizeSymbol(symbol)
	exchanges = normalizeExchanges(exchanges)
	if symbol == "" {
		return nil, utils.NewFieldError("symbol", "symbol is required")
	}
	if len(exchanges) == 0 {
		return nil, utils.NewFieldError("exchanges", "at least one exchange is required")
	}

	ctx, span := a.tracer.TraceCBBOAggregation(ctx, symbol, exchanges)
	defer span.End()

	batch := fetchQuotes(ctx, a.gateway, a.logger, symbol, exchanges)
	view := ConsolidateQuotes(symbol, exchanges, batch.quotes)
	a.tracer.RecordOpportunityCount(span, batch.valid(), 0)
	if view == nil {
		a.logger.WithField("symbol", symbol).Warn("No valid market data for consolidated view")
		return nil, nil
	}

	a.mu.Lock()
	a.views[symbol] = view
	for exchange, quote := range view.ExchangesData {
		a.latest[latestKey(exchange, symbol)] = quote
	}
	a.lastUpdate = view.Timestamp
	a.mu.Unlock()

	if view.CBBOBidPrice > 0 && view.CBBOAskPrice > 0 {
		a.metrics.SetCBBOSpread(symbol, view.Spread())
	}
	return view, nil
}

// GetCBBO returns the cached view for symbol, or computes a fresh one across
// all supported exchanges.
func (a *CBBOAggregator) GetCBBO(ctx context.Context, symbol string) (*models.ConsolidatedMarketView, error) {
	if view, ok := a.CachedView(symbol); ok {
		return view, nil
	}
	return a.GetConsolidatedView(ctx, symbol, a.supportedExchanges)
}

// CachedView returns the last computed view for symbol without any I/O.
func (a *CBBOAggregator) CachedView(symbol string) (*models.ConsolidatedMarketView, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	view, ok := a.views[normalizeSymbol(symbol)]
	return view, ok
}

// ConsolidatedViews returns a copy of the view cache keyed by symbol.
func (a *CBBOAggregator) ConsolidatedViews() map[string]*models.ConsolidatedMarketView {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]*models.ConsolidatedMarketView, len(a.views))
	for symbol, view := range a.views {
		out[symbol] = view
	}
	return out
}

// LatestDataCount is the number of (exchange, symbol) quotes held.
func (a *CBBOAggregator) LatestDataCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.latest)
}

// ConsolidatedViewsCount is the number of cached views.
func (a *CBBOAggregator) ConsolidatedViewsCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.views)
}

// LastUpdate is the time of the most recent successful aggregation.
func (a *CBBOAggregator) LastUpdate() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastUpdate
}

// ConsolidateQuotes computes the CBBO over quotes aligned with exchanges.
// The first exchange reaching the best price wins ties. Returns nil when no
// quote is valid.
func ConsolidateQuotes(symbol string, exchanges []string, quotes []*models.Quote) *models.ConsolidatedMarketView {
	view := &models.ConsolidatedMarketView{
		Symbol:        symbol,
		ExchangesData: make(map[string]*models.Quote),
	}

	for i, exchange := range exchanges {
		if i >= len(quotes) || !quotes[i].IsValid() {
			continue
		}
		quote := quotes[i]
		view.ExchangesData[exchange] = quote

		if usablePrice(quote.BidPrice) && quote.BidPrice > view.CBBOBidPrice {
			view.CBBOBidPrice = quote.BidPrice
			view.CBBOBidExchange = exchange
		}
		if usablePrice(quote.AskPrice) && (view.CBBOAskPrice == 0 || quote.AskPrice < view.CBBOAskPrice) {
			view.CBBOAskPrice = quote.AskPrice
			view.CBBOAskExchange = exchange
		}
	}

	if len(view.ExchangesData) == 0 {
		return nil
	}
	view.Timestamp = time.Now().UTC()
	return view
}

func latestKey(exchange, symbol string) string {
	return exchange + "|" + symbol
}
