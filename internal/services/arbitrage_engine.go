package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/irfndi/celebrum-arbwatch/internal/marketdata"
	"github.com/irfndi/celebrum-arbwatch/internal/models"
	"github.com/irfndi/celebrum-arbwatch/internal/telemetry"
	"github.com/irfndi/celebrum-arbwatch/internal/utils"
	"github.com/sirupsen/logrus"
)

// ArbitrageEngine detects price gaps between exchanges for one symbol, and
// between quote-currency variants of one base asset on a single exchange.
// It holds no per-scan state; callers store the results.
type ArbitrageEngine struct {
	gateway            marketdata.Gateway
	thresholds         *ThresholdModel
	supportedExchanges []string
	logger             *logrus.Logger
	tracer             *telemetry.BusinessTracer
}

// NewArbitrageEngine creates an engine. supportedExchanges is the exchange set
// scanned by FindSyntheticOpportunities.
func NewArbitrageEngine(gateway marketdata.Gateway, thresholds *ThresholdModel, supportedExchanges []string, logger *logrus.Logger) *ArbitrageEngine {
	if thresholds == nil {
		thresholds = NewThresholdModel(models.DefaultThresholds())
	}
	return &ArbitrageEngine{
		gateway:            gateway,
		thresholds:         thresholds,
		supportedExchanges: normalizeExchanges(supportedExchanges),
		logger:             logger,
		tracer:             telemetry.NewBusinessTracer(),
	}
}

// SetThresholds applies a partial threshold update.
func (e *ArbitrageEngine) SetThresholds(percentage, absolute *float64) error {
	if err := e.thresholds.Set(percentage, absolute); err != nil {
		return err
	}
	current := e.thresholds.Get()
	e.logger.WithFields(logrus.Fields{
		"min_profit_percentage": current.MinProfitPercentage,
		"min_profit_absolute":   current.MinProfitAbsolute,
	}).Info("Arbitrage thresholds updated")
	return nil
}

// GetThresholds returns the thresholds currently applied to new scans.
func (e *ArbitrageEngine) GetThresholds() models.ThresholdConfig {
	return e.thresholds.Get()
}

// SupportedExchanges returns the exchanges used by synthetic scans.
func (e *ArbitrageEngine) SupportedExchanges() []string {
	out := make([]string, len(e.supportedExchanges))
	copy(out, e.supportedExchanges)
	return out
}

// FindOpportunities fetches one quote per exchange and evaluates every ordered
// (buy, sell) pair, buying at the ask and selling at the bid.
//
// Parameters:
//   - ctx: Bounds the gateway calls.
//   - exchanges: Exchanges to compare; at least one is required.
//   - symbol: Canonical BASE-QUOTE symbol.
//
// Returns:
//   - Opportunities clearing both thresholds, possibly empty.
//   - A validation error for bad arguments. Gateway failures are logged and
//     never returned.
func (e *ArbitrageEngine) FindOpportunities(ctx context.Context, exchanges []string, symbol string) ([]models.ArbitrageOpportunity, error) {
	symbol = normalizeSymbol(symbol)
	exchanges = normalizeExchanges(exchanges)
	if symbol == "" {
		return nil, utils.NewFieldError("symbol", "symbol is required")
	}
	if len(exchanges) == 0 {
		return nil, utils.NewFieldError("exchanges", "at least one exchange is required")
	}

	ctx, span := e.tracer.TraceArbitrageDetection(ctx, symbol, exchanges)
	defer span.End()

	thresholds := e.thresholds.Get()
	batch := fetchQuotes(ctx, e.gateway, e.logger, symbol, exchanges)
	if batch.failures == len(exchanges) {
		err := fmt.Errorf("%w: no exchange reachable for %s", utils.ErrTransportFailure, symbol)
		e.tracer.RecordError(span, err)
		e.logger.WithError(err).WithField("symbol", symbol).Error("Arbitrage scan skipped")
		return []models.ArbitrageOpportunity{}, nil
	}

	opportunities := make([]models.ArbitrageOpportunity, 0)
	for i, buyExchange := range exchanges {
		buyQuote := batch.quotes[i]
		if buyQuote == nil {
			continue
		}
		for j, sellExchange := range exchanges {
			sellQuote := batch.quotes[j]
			if i == j || sellQuote == nil {
				continue
			}
			opp, ok := e.evaluateCrossExchange(symbol, buyExchange, sellExchange, buyQuote, sellQuote, thresholds)
			if ok {
				opportunities = append(opportunities, opp)
			}
		}
	}

	e.tracer.RecordOpportunityCount(span, batch.valid(), len(opportunities))
	if len(opportunities) > 0 {
		e.logger.WithFields(logrus.Fields{
			"symbol":        symbol,
			"opportunities": len(opportunities),
		}).Info("Found arbitrage opportunities")
	}
	return opportunities, nil
}

func (e *ArbitrageEngine) evaluateCrossExchange(symbol, buyExchange, sellExchange string, buyQuote, sellQuote *models.Quote, thresholds models.ThresholdConfig) (models.ArbitrageOpportunity, bool) {
	buyPrice := buyQuote.AskPrice
	sellPrice := sellQuote.BidPrice
	if !usablePrice(buyPrice) || !usablePrice(sellPrice) {
		e.logger.WithFields(logrus.Fields{
			"symbol":        symbol,
			"buy_exchange":  buyExchange,
			"sell_exchange": sellExchange,
		}).Warn("Skipping pair with invalid price data")
		return models.ArbitrageOpportunity{}, false
	}
	if sellPrice <= buyPrice {
		return models.ArbitrageOpportunity{}, false
	}

	profitAbsolute := sellPrice - buyPrice
	profitPercentage := profitAbsolute / buyPrice * 100
	if !clearsThresholds(profitPercentage, profitAbsolute, thresholds) {
		return models.ArbitrageOpportunity{}, false
	}

	return models.ArbitrageOpportunity{
		Symbol:              symbol,
		BuyExchange:         buyExchange,
		SellExchange:        sellExchange,
		BuyPrice:            buyPrice,
		SellPrice:           sellPrice,
		ProfitPercentage:    profitPercentage,
		ProfitAbsolute:      profitAbsolute,
		Timestamp:           quoteTime(buyQuote),
		ThresholdPercentage: thresholds.MinProfitPercentage,
		ThresholdAbsolute:   thresholds.MinProfitAbsolute,
	}, true
}

// FindSyntheticOpportunities compares BASE-Q1 against BASE-Q2 on each supported
// exchange using mid prices, for every unordered quote pair.
func (e *ArbitrageEngine) FindSyntheticOpportunities(ctx context.Context, baseAsset string, quoteAssets []string) ([]models.ArbitrageOpportunity, error) {
	baseAsset = normalizeSymbol(baseAsset)
	quotes := make([]string, 0, len(quoteAssets))
	for _, q := range quoteAssets {
		if q = normalizeSymbol(q); q != "" {
			quotes = append(quotes, q)
		}
	}
	if baseAsset == "" {
		return nil, utils.NewFieldError("base_asset", "base asset is required")
	}
	if len(quotes) == 0 {
		return nil, utils.NewFieldError("quote_assets", "at least one quote asset is required")
	}

	ctx, span := e.tracer.TraceSyntheticDetection(ctx, baseAsset, quotes)
	defer span.End()

	thresholds := e.thresholds.Get()
	opportunities := make([]models.ArbitrageOpportunity, 0)
	for i := 0; i < len(quotes); i++ {
		for j := i + 1; j < len(quotes); j++ {
			pair1 := baseAsset + "-" + quotes[i]
			pair2 := baseAsset + "-" + quotes[j]
			opportunities = append(opportunities, e.compareSyntheticPair(ctx, pair1, pair2, thresholds)...)
		}
	}

	e.tracer.RecordOpportunityCount(span, 0, len(opportunities))
	e.logger.WithFields(logrus.Fields{
		"base_asset":    baseAsset,
		"opportunities": len(opportunities),
	}).Info("Synthetic arbitrage scan completed")
	return opportunities, nil
}

func (e *ArbitrageEngine) compareSyntheticPair(ctx context.Context, pair1, pair2 string, thresholds models.ThresholdConfig) []models.ArbitrageOpportunity {
	first := fetchQuotes(ctx, e.gateway, e.logger, pair1, e.supportedExchanges)
	second := fetchQuotes(ctx, e.gateway, e.logger, pair2, e.supportedExchanges)

	var out []models.ArbitrageOpportunity
	for i, exchange := range e.supportedExchanges {
		q1, q2 := first.quotes[i], second.quotes[i]
		if q1 == nil || q2 == nil {
			continue
		}

		price1, price2 := q1.MidPrice(), q2.MidPrice()
		if !usablePrice(price1) || !usablePrice(price2) {
			e.logger.WithFields(logrus.Fields{
				"exchange": exchange,
				"pair1":    pair1,
				"pair2":    pair2,
			}).Debug("Skipping synthetic pair without mid prices")
			continue
		}

		profitPercentage := math.Abs(price1/price2-1) * 100
		profitAbsolute := math.Abs(price1 - price2)
		if !clearsThresholds(profitPercentage, profitAbsolute, thresholds) {
			continue
		}

		out = append(out, models.ArbitrageOpportunity{
			Symbol:              pair1 + " vs " + pair2,
			BuyExchange:         exchange,
			SellExchange:        exchange,
			BuyPrice:            price1,
			SellPrice:           price2,
			ProfitPercentage:    profitPercentage,
			ProfitAbsolute:      profitAbsolute,
			Timestamp:           quoteTime(q1),
			ThresholdPercentage: thresholds.MinProfitPercentage,
			ThresholdAbsolute:   thresholds.MinProfitAbsolute,
		})
	}
	return out
}

func clearsThresholds(percentage, absolute float64, thresholds models.ThresholdConfig) bool {
	return percentage >= thresholds.MinProfitPercentage && absolute >= thresholds.MinProfitAbsolute
}

func usablePrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

func quoteTime(q *models.Quote) time.Time {
	if q.Timestamp.IsZero() {
		return time.Now().UTC()
	}
	return q.Timestamp
}
