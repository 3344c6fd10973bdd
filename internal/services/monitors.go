package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/irfndi/celebrum-arbwatch/internal/metrics"
	"github.com/irfndi/celebrum-arbwatch/internal/models"
	"github.com/sirupsen/logrus"
)

// Service names used in status reports, metrics and IsServiceRunning.
const (
	ServiceArbitrage  = "arbitrage"
	ServiceMarketView = "market_view"
)

// OpportunityListener is notified of every opportunity a monitoring cycle emits.
type OpportunityListener interface {
	OnOpportunity(ctx context.Context, opportunity models.ArbitrageOpportunity)
}

// OpportunityListenerFunc adapts a function to OpportunityListener.
type OpportunityListenerFunc func(ctx context.Context, opportunity models.ArbitrageOpportunity)

func (f OpportunityListenerFunc) OnOpportunity(ctx context.Context, opportunity models.ArbitrageOpportunity) {
	f(ctx, opportunity)
}

// MarketViewListener is notified of every consolidated view a cycle computes.
type MarketViewListener interface {
	OnMarketView(ctx context.Context, view *models.ConsolidatedMarketView)
}

// MarketViewListenerFunc adapts a function to MarketViewListener.
type MarketViewListenerFunc func(ctx context.Context, view *models.ConsolidatedMarketView)

func (f MarketViewListenerFunc) OnMarketView(ctx context.Context, view *models.ConsolidatedMarketView) {
	f(ctx, view)
}

// ArbitrageMonitor runs the arbitrage engine over a symbol to exchanges map on
// its own scheduler and writes results into the opportunity store.
type ArbitrageMonitor struct {
	engine    *ArbitrageEngine
	store     *OpportunityStore
	metrics   *metrics.Collector
	logger    *logrus.Logger
	scheduler *Scheduler

	mu        sync.RWMutex
	assets    map[string][]string
	listeners []OpportunityListener
}

// NewArbitrageMonitor creates a stopped arbitrage monitor.
func NewArbitrageMonitor(engine *ArbitrageEngine, store *OpportunityStore, config SchedulerConfig, collector *metrics.Collector, logger *logrus.Logger) *ArbitrageMonitor {
	m := &ArbitrageMonitor{
		engine:  engine,
		store:   store,
		metrics: collector,
		logger:  logger,
		assets:  map[string][]string{},
	}
	config.Name = ServiceArbitrage
	m.scheduler = NewScheduler(config, m.cycle, collector, logger)
	return m
}

// AddListener registers a listener for emitted opportunities.
func (m *ArbitrageMonitor) AddListener(listener OpportunityListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, listener)
}

// Start begins monitoring assets. It returns false when already running.
func (m *ArbitrageMonitor) Start(assets map[string][]string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.scheduler.IsRunning() {
		return false
	}
	m.assets = normalizeAssets(assets)
	return m.scheduler.Start()
}

// Stop halts the loop within the scheduler stop timeout and clears the
// monitored assets.
func (m *ArbitrageMonitor) Stop() bool {
	exited := m.scheduler.Stop()

	m.mu.Lock()
	m.assets = map[string][]string{}
	m.mu.Unlock()
	return exited
}

// IsRunning reports whether the monitoring loop is running.
func (m *ArbitrageMonitor) IsRunning() bool {
	return m.scheduler.IsRunning()
}

// Scheduler exposes the underlying scheduler.
func (m *ArbitrageMonitor) Scheduler() *Scheduler {
	return m.scheduler
}

// Assets returns a copy of the monitored symbol to exchanges map.
func (m *ArbitrageMonitor) Assets() map[string][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyAssets(m.assets)
}

// SetAssets replaces the configured assets while stopped, used to restore
// persisted configuration without resuming the loop.
func (m *ArbitrageMonitor) SetAssets(assets map[string][]string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scheduler.IsRunning() {
		return false
	}
	m.assets = normalizeAssets(assets)
	return true
}

func (m *ArbitrageMonitor) cycle(ctx context.Context) error {
	m.mu.RLock()
	assets := copyAssets(m.assets)
	listeners := append([]OpportunityListener(nil), m.listeners...)
	m.mu.RUnlock()

	var errs []error
	for _, symbol := range sortedKeys(assets) {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		opportunities, err := m.engine.FindOpportunities(ctx, assets[symbol], symbol)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(opportunities) == 0 {
			continue
		}

		m.store.Add(opportunities...)
		for _, opp := range opportunities {
			if err := m.store.RecordForStatistics(ctx, opp); err != nil {
				m.logger.WithError(err).WithField("key", opp.Key()).Warn("Failed to record opportunity for statistics")
			}
			m.metrics.RecordOpportunity(opp.Symbol)
			for _, listener := range listeners {
				listener.OnOpportunity(ctx, opp)
			}
		}
	}
	return errors.Join(errs...)
}

// MarketViewMonitor runs the CBBO aggregator over a symbol to exchanges map
// on its own scheduler.
type MarketViewMonitor struct {
	aggregator *CBBOAggregator
	logger     *logrus.Logger
	scheduler  *Scheduler

	mu        sync.RWMutex
	symbols   map[string][]string
	listeners []MarketViewListener
}

// NewMarketViewMonitor creates a stopped market view monitor.
func NewMarketViewMonitor(aggregator *CBBOAggregator, config SchedulerConfig, collector *metrics.Collector, logger *logrus.Logger) *MarketViewMonitor {
	m := &MarketViewMonitor{
		aggregator: aggregator,
		logger:     logger,
		symbols:    map[string][]string{},
	}
	config.Name = ServiceMarketView
	m.scheduler = NewScheduler(config, m.cycle, collector, logger)
	return m
}

// AddListener registers a listener for computed views.
func (m *MarketViewMonitor) AddListener(listener MarketViewListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, listener)
}

// Start begins monitoring symbols. It returns false when already running.
func (m *MarketViewMonitor) Start(symbols map[string][]string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.scheduler.IsRunning() {
		return false
	}
	m.symbols = normalizeAssets(symbols)
	return m.scheduler.Start()
}

// Stop halts the loop and clears the monitored symbols.
func (m *MarketViewMonitor) Stop() bool {
	exited := m.scheduler.Stop()

	m.mu.Lock()
	m.symbols = map[string][]string{}
	m.mu.Unlock()
	return exited
}

// IsRunning reports whether the monitoring loop is running.
func (m *MarketViewMonitor) IsRunning() bool {
	return m.scheduler.IsRunning()
}

// Scheduler exposes the underlying scheduler.
func (m *MarketViewMonitor) Scheduler() *Scheduler {
	return m.scheduler
}

// Symbols returns a copy of the monitored symbol to exchanges map.
func (m *MarketViewMonitor) Symbols() map[string][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyAssets(m.symbols)
}

// SetSymbols replaces the configured symbols while stopped.
func (m *MarketViewMonitor) SetSymbols(symbols map[string][]string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scheduler.IsRunning() {
		return false
	}
	m.symbols = normalizeAssets(symbols)
	return true
}

func (m *MarketViewMonitor) cycle(ctx context.Context) error {
	m.mu.RLock()
	symbols := copyAssets(m.symbols)
	listeners := append([]MarketViewListener(nil), m.listeners...)
	m.mu.RUnlock()

	var errs []error
	for _, symbol := range sortedKeys(symbols) {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		view, err := m.aggregator.GetConsolidatedView(ctx, symbol, symbols[symbol])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if view == nil {
			continue
		}
		for _, listener := range listeners {
			listener.OnMarketView(ctx, view)
		}
	}
	return errors.Join(errs...)
}

func normalizeAssets(assets map[string][]string) map[string][]string {
	out := make(map[string][]string, len(assets))
	for symbol, exchanges := range assets {
		symbol = normalizeSymbol(symbol)
		if symbol == "" {
			continue
		}
		out[symbol] = normalizeExchanges(exchanges)
	}
	return out
}

func copyAssets(assets map[string][]string) map[string][]string {
	out := make(map[string][]string, len(assets))
	for symbol, exchanges := range assets {
		out[symbol] = append([]string(nil), exchanges...)
	}
	return out
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// startTimePtr returns a pointer to t in UTC, or nil for the zero time.
func startTimePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}
