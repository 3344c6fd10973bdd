package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/irfndi/celebrum-arbwatch/internal/models"
	"github.com/irfndi/celebrum-arbwatch/internal/utils"
	"github.com/sirupsen/logrus"
)

// StateStore persists the monitoring configuration document.
type StateStore interface {
	Load() models.MonitoringState
	Save(state models.MonitoringState) error
	Clear() error
}

// ServiceController coordinates the two monitors and keeps the persisted
// monitoring state in step with every start and stop.
type ServiceController struct {
	engine     *ArbitrageEngine
	store      *OpportunityStore
	aggregator *CBBOAggregator
	arbitrage  *ArbitrageMonitor
	marketView *MarketViewMonitor
	state      StateStore
	logger     *logrus.Logger

	// mu serialises transitions; status reads do not take it.
	mu sync.Mutex
}

// ControllerDeps groups the collaborators of a ServiceController
type ControllerDeps struct {
	Engine     *ArbitrageEngine
	Store      *OpportunityStore
	Aggregator *CBBOAggregator
	Arbitrage  *ArbitrageMonitor
	MarketView *MarketViewMonitor
	State      StateStore
	Logger     *logrus.Logger
}

// NewServiceController loads the persisted state and restores its thresholds
// and monitored sets as configuration. Monitoring loops are not resumed.
func NewServiceController(deps ControllerDeps) *ServiceController {
	c := &ServiceController{
		engine:     deps.Engine,
		store:      deps.Store,
		aggregator: deps.Aggregator,
		arbitrage:  deps.Arbitrage,
		marketView: deps.MarketView,
		state:      deps.State,
		logger:     deps.Logger,
	}

	c.restoreConfiguration(c.state.Load())
	return c
}

func (c *ServiceController) restoreConfiguration(state models.MonitoringState) {
	th := state.Arbitrage.Thresholds
	if err := c.engine.SetThresholds(&th.MinProfitPercentage, &th.MinProfitAbsolute); err != nil {
		c.logger.WithError(err).Warn("Ignoring invalid persisted thresholds")
	}
	c.arbitrage.SetAssets(state.Arbitrage.Assets)
	c.marketView.SetSymbols(state.MarketView.Symbols)

	c.logger.WithFields(logrus.Fields{
		"arbitrage_was_active":   state.Arbitrage.Active,
		"arbitrage_assets":       len(state.Arbitrage.Assets),
		"market_view_was_active": state.MarketView.Active,
		"market_view_symbols":    len(state.MarketView.Symbols),
	}).Info("Restored monitoring configuration")
}

// StartArbitrageMonitoring starts the arbitrage loop, applying any supplied
// thresholds first. An empty assets map reuses the configured assets. It
// returns false when monitoring is already running. A refused or invalid
// start leaves the thresholds unchanged.
func (c *ServiceController) StartArbitrageMonitoring(assets map[string][]string, percentage, absolute *float64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.arbitrage.IsRunning() {
		return false, nil
	}

	if len(assets) == 0 {
		assets = c.arbitrage.Assets()
	}
	if err := validateAssets(assets); err != nil {
		return false, err
	}

	previous := c.engine.GetThresholds()
	if percentage != nil || absolute != nil {
		if err := c.engine.SetThresholds(percentage, absolute); err != nil {
			return false, err
		}
	}

	if !c.arbitrage.Start(assets) {
		if err := c.engine.SetThresholds(&previous.MinProfitPercentage, &previous.MinProfitAbsolute); err != nil {
			c.logger.WithError(err).Warn("Failed to restore thresholds after refused start")
		}
		return false, nil
	}

	c.persistLocked()
	c.logger.WithField("assets", len(assets)).Info("Arbitrage monitoring started")
	return true, nil
}

// StopArbitrageMonitoring stops the arbitrage loop, clears its assets and
// persists the inactive state. It returns true when monitoring is stopped.
func (c *ServiceController) StopArbitrageMonitoring() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.arbitrage.IsRunning() {
		return true
	}
	if !c.arbitrage.Stop() {
		c.logger.Warn("Arbitrage loop still draining after stop timeout")
	}

	c.persistLocked()
	c.logger.Info("Arbitrage monitoring stopped")
	return true
}

// StartMarketViewMonitoring starts the CBBO loop over symbols. An empty map
// reuses the configured symbols.
func (c *ServiceController) StartMarketViewMonitoring(symbols map[string][]string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.marketView.IsRunning() {
		return false, nil
	}
	if len(symbols) == 0 {
		symbols = c.marketView.Symbols()
	}
	if err := validateAssets(symbols); err != nil {
		return false, err
	}

	if !c.marketView.Start(symbols) {
		return false, nil
	}

	c.persistLocked()
	c.logger.WithField("symbols", len(symbols)).Info("Market view monitoring started")
	return true, nil
}

// StopMarketViewMonitoring stops the CBBO loop and persists the inactive state.
func (c *ServiceController) StopMarketViewMonitoring() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.marketView.IsRunning() {
		return true
	}
	if !c.marketView.Stop() {
		c.logger.Warn("Market view loop still draining after stop timeout")
	}

	c.persistLocked()
	c.logger.Info("Market view monitoring stopped")
	return true
}

// StopAllServices stops both loops.
func (c *ServiceController) StopAllServices() {
	c.StopArbitrageMonitoring()
	c.StopMarketViewMonitoring()
}

// IsServiceRunning reports whether the named service loop is running.
func (c *ServiceController) IsServiceRunning(name string) bool {
	switch name {
	case ServiceArbitrage:
		return c.arbitrage.IsRunning()
	case ServiceMarketView:
		return c.marketView.IsRunning()
	default:
		return false
	}
}

// SetThresholds applies a partial threshold update and persists it.
func (c *ServiceController) SetThresholds(percentage, absolute *float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.engine.SetThresholds(percentage, absolute); err != nil {
		return err
	}
	c.persistLocked()
	return nil
}

// GetThresholds returns the active thresholds.
func (c *ServiceController) GetThresholds() models.ThresholdConfig {
	return c.engine.GetThresholds()
}

// Engine exposes the arbitrage engine for one-shot scans.
func (c *ServiceController) Engine() *ArbitrageEngine {
	return c.engine
}

// Store exposes the opportunity store for queries.
func (c *ServiceController) Store() *OpportunityStore {
	return c.store
}

// Aggregator exposes the CBBO aggregator for queries.
func (c *ServiceController) Aggregator() *CBBOAggregator {
	return c.aggregator
}

// GetActiveOpportunities returns active opportunities, best first.
func (c *ServiceController) GetActiveOpportunities(maxAge time.Duration) []models.ArbitrageOpportunity {
	return c.store.ActiveOpportunities(maxAge)
}

// GetOpportunityHistory returns up to limit recent opportunities.
func (c *ServiceController) GetOpportunityHistory(limit int) []models.ArbitrageOpportunity {
	return c.store.History(limit)
}

// GetHistoricalStatistics aggregates recorded opportunities.
func (c *ServiceController) GetHistoricalStatistics(ctx context.Context, symbol string, hours int) (*models.ArbitrageStatistics, error) {
	return c.store.GetStatistics(ctx, symbol, hours)
}

// GetServiceStatus combines running flags, monitored sets and store sizes.
func (c *ServiceController) GetServiceStatus() models.ServiceStatus {
	return models.ServiceStatus{
		Arbitrage: models.ArbitrageStatus{
			Monitoring:               c.arbitrage.IsRunning(),
			MonitoredAssets:          c.arbitrage.Assets(),
			ActiveOpportunitiesCount: c.store.ActiveCount(),
			HistoryCount:             c.store.HistoryCount(),
			LastUpdate:               c.store.LastUpdate(),
			Thresholds:               c.engine.GetThresholds(),
		},
		MarketView: models.MarketViewStatus{
			Monitoring:             c.marketView.IsRunning(),
			MonitoredSymbols:       c.marketView.Symbols(),
			LatestDataCount:        c.aggregator.LatestDataCount(),
			ConsolidatedViewsCount: c.aggregator.ConsolidatedViewsCount(),
			LastUpdate:             c.aggregator.LastUpdate(),
		},
		Timestamp: time.Now().UTC(),
	}
}

// ResetState stops both loops, restores the default thresholds, empties the
// monitored sets and resets the persisted document.
func (c *ServiceController) ResetState() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.arbitrage.Stop() {
		c.logger.Warn("Arbitrage loop still draining after stop timeout")
	}
	if !c.marketView.Stop() {
		c.logger.Warn("Market view loop still draining after stop timeout")
	}

	defaults := models.DefaultMonitoringState()
	th := defaults.Arbitrage.Thresholds
	if err := c.engine.SetThresholds(&th.MinProfitPercentage, &th.MinProfitAbsolute); err != nil {
		return err
	}
	c.arbitrage.SetAssets(nil)
	c.marketView.SetSymbols(nil)

	if err := c.state.Clear(); err != nil {
		return fmt.Errorf("reset monitoring state: %w", err)
	}
	c.logger.Info("Monitoring state reset to defaults")
	return nil
}

// CurrentState builds the monitoring state document from live components.
func (c *ServiceController) CurrentState() models.MonitoringState {
	state := models.DefaultMonitoringState()

	state.Arbitrage.Active = c.arbitrage.IsRunning()
	state.Arbitrage.Assets = c.arbitrage.Assets()
	state.Arbitrage.Thresholds = c.engine.GetThresholds()
	if state.Arbitrage.Active {
		state.Arbitrage.StartTime = startTimePtr(c.arbitrage.Scheduler().StartedAt())
	}

	state.MarketView.Active = c.marketView.IsRunning()
	state.MarketView.Symbols = c.marketView.Symbols()
	if state.MarketView.Active {
		state.MarketView.StartTime = startTimePtr(c.marketView.Scheduler().StartedAt())
	}
	return state
}

// SaveState persists the current state; used by the auto-save loop.
func (c *ServiceController) SaveState() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Save(c.CurrentState())
}

// persistLocked writes the current state. Failures are logged and never undo
// the transition that triggered them.
func (c *ServiceController) persistLocked() {
	if err := c.state.Save(c.CurrentState()); err != nil {
		c.logger.WithError(err).Error("Failed to persist monitoring state")
	}
}

func validateAssets(assets map[string][]string) error {
	if len(assets) == 0 {
		return utils.NewFieldError("assets", "at least one symbol with exchanges is required")
	}
	for symbol, exchanges := range assets {
		if normalizeSymbol(symbol) == "" {
			return utils.NewFieldError("assets", "symbol must not be empty")
		}
		if len(normalizeExchanges(exchanges)) == 0 {
			return utils.NewFieldError("assets", "no exchanges given for "+symbol)
		}
	}
	return nil
}
