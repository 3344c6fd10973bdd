package services

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/irfndi/celebrum-arbwatch/internal/models"
	"github.com/irfndi/celebrum-arbwatch/internal/utils"
	"github.com/sirupsen/logrus"
)

var userSymbolPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// UserConfigStore persists one configuration document per chat.
type UserConfigStore interface {
	Get(ctx context.Context, userID int64) (models.UserConfig, bool, error)
	Put(ctx context.Context, userID int64, cfg models.UserConfig) error
	Delete(ctx context.Context, userID int64) error
}

// UserConfigManager validates and stores per-chat monitoring preferences.
// Chats without a stored document see the defaults.
type UserConfigManager struct {
	store     UserConfigStore
	exchanges []string
	supported map[string]bool
	defaults  models.ThresholdConfig
	logger    *logrus.Logger
	now       func() time.Time

	// mu serialises read-modify-write cycles.
	mu sync.Mutex
}

func NewUserConfigManager(store UserConfigStore, exchanges []string, thresholds models.ThresholdConfig, logger *logrus.Logger) *UserConfigManager {
	normalized := normalizeExchanges(exchanges)
	supported := make(map[string]bool, len(normalized))
	for _, ex := range normalized {
		supported[ex] = true
	}
	return &UserConfigManager{
		store:     store,
		exchanges: normalized,
		supported: supported,
		defaults:  thresholds,
		logger:    logger,
		now:       time.Now,
	}
}

// Defaults returns the configuration a new chat starts with.
func (m *UserConfigManager) Defaults() models.UserConfig {
	return models.UserConfig{
		Arbitrage: models.UserArbitrageConfig{
			Assets:              []string{},
			Exchanges:           slices.Clone(m.exchanges),
			ThresholdPercentage: m.defaults.MinProfitPercentage,
			ThresholdAbsolute:   m.defaults.MinProfitAbsolute,
			MaxMonitors:         models.DefaultUserMaxMonitors,
		},
		MarketView: models.UserMarketViewConfig{
			Symbols:                    []string{},
			Exchanges:                  slices.Clone(m.exchanges),
			UpdateFrequency:            models.DefaultUserUpdateFrequency,
			SignificantChangeThreshold: models.DefaultSignificantChange,
		},
		Preferences: models.UserPreferences{
			AlertFrequency: "immediate",
			MessageFormat:  "detailed",
			Timezone:       "UTC",
		},
	}
}

// Get returns the stored configuration for userID, or the defaults.
func (m *UserConfigManager) Get(ctx context.Context, userID int64) (models.UserConfig, error) {
	cfg, ok, err := m.store.Get(ctx, userID)
	if err != nil {
		return models.UserConfig{}, err
	}
	if !ok {
		return m.Defaults(), nil
	}
	return cfg, nil
}

// Update applies fn to the current configuration, validates the result and
// stores it. Nothing is stored when fn or validation fails.
func (m *UserConfigManager) Update(ctx context.Context, userID int64, fn func(*models.UserConfig) error) (models.UserConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, err := m.Get(ctx, userID)
	if err != nil {
		return models.UserConfig{}, err
	}
	if err := fn(&cfg); err != nil {
		return models.UserConfig{}, err
	}
	m.normalize(&cfg)
	if err := m.Validate(cfg); err != nil {
		return models.UserConfig{}, err
	}

	cfg.UpdatedAt = m.now().UTC()
	if err := m.store.Put(ctx, userID, cfg); err != nil {
		return models.UserConfig{}, err
	}
	m.logger.WithField("user_id", userID).Info("Updated user configuration")
	return cfg, nil
}

// Reset drops the stored configuration so the chat sees the defaults again.
func (m *UserConfigManager) Reset(ctx context.Context, userID int64) (models.UserConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Delete(ctx, userID); err != nil {
		return models.UserConfig{}, err
	}
	m.logger.WithField("user_id", userID).Info("Reset user configuration")
	return m.Defaults(), nil
}

// RecordArbitrage saves a started arbitrage session as the chat's setup.
func (m *UserConfigManager) RecordArbitrage(ctx context.Context, userID int64, assets map[string][]string, thresholds models.ThresholdConfig) error {
	_, err := m.Update(ctx, userID, func(cfg *models.UserConfig) error {
		cfg.Arbitrage.Assets = sortedKeys(assets)
		cfg.Arbitrage.Exchanges = unionExchanges(assets)
		cfg.Arbitrage.ThresholdPercentage = thresholds.MinProfitPercentage
		cfg.Arbitrage.ThresholdAbsolute = thresholds.MinProfitAbsolute
		cfg.Arbitrage.Enabled = true
		return nil
	})
	return err
}

// RecordMarketView saves a started market view session as the chat's setup.
func (m *UserConfigManager) RecordMarketView(ctx context.Context, userID int64, symbols map[string][]string) error {
	_, err := m.Update(ctx, userID, func(cfg *models.UserConfig) error {
		cfg.MarketView.Symbols = sortedKeys(symbols)
		cfg.MarketView.Exchanges = unionExchanges(symbols)
		cfg.MarketView.Enabled = true
		return nil
	})
	return err
}

// SetEnabled flips the enabled flag of the named service for userID.
func (m *UserConfigManager) SetEnabled(ctx context.Context, userID int64, service string, enabled bool) error {
	_, err := m.Update(ctx, userID, func(cfg *models.UserConfig) error {
		switch service {
		case ServiceArbitrage:
			cfg.Arbitrage.Enabled = enabled
		case ServiceMarketView:
			cfg.MarketView.Enabled = enabled
		default:
			return utils.NewFieldError("service", "unknown service "+service)
		}
		return nil
	})
	return err
}

// Validate checks every field against the supported exchanges and limits.
func (m *UserConfigManager) Validate(cfg models.UserConfig) error {
	arb := cfg.Arbitrage
	if err := m.validateExchangeList("arbitrage.exchanges", arb.Exchanges); err != nil {
		return err
	}
	if err := validateSymbolList("arbitrage.assets", arb.Assets); err != nil {
		return err
	}
	if err := validateThreshold("percentage", arb.ThresholdPercentage); err != nil {
		return err
	}
	if err := validateThreshold("absolute", arb.ThresholdAbsolute); err != nil {
		return err
	}
	if arb.MaxMonitors < 0 || arb.MaxMonitors > models.MaxUserMonitors {
		return utils.NewFieldError("arbitrage.max_monitors", fmt.Sprintf("must be between 0 and %d", models.MaxUserMonitors))
	}
	if len(arb.Assets) > arb.MaxMonitors {
		return utils.NewFieldError("arbitrage.assets", fmt.Sprintf("at most %d assets, raise max_monitors first", arb.MaxMonitors))
	}

	mv := cfg.MarketView
	if err := m.validateExchangeList("market_view.exchanges", mv.Exchanges); err != nil {
		return err
	}
	if err := validateSymbolList("market_view.symbols", mv.Symbols); err != nil {
		return err
	}
	if mv.UpdateFrequency < 1 {
		return utils.NewFieldError("market_view.update_frequency", "must be at least 1 second")
	}
	if err := validateThreshold("significant_change", mv.SignificantChangeThreshold); err != nil {
		return err
	}

	prefs := cfg.Preferences
	if !slices.Contains(models.AlertFrequencies, prefs.AlertFrequency) {
		return utils.NewFieldError("alert_frequency", "must be one of "+strings.Join(models.AlertFrequencies, ", "))
	}
	if !slices.Contains(models.MessageFormats, prefs.MessageFormat) {
		return utils.NewFieldError("message_format", "must be one of "+strings.Join(models.MessageFormats, ", "))
	}
	if _, err := time.LoadLocation(prefs.Timezone); err != nil || prefs.Timezone == "" {
		return utils.NewFieldError("timezone", fmt.Sprintf("unknown timezone %q", prefs.Timezone))
	}
	return nil
}

// ArbitrageAssets expands the saved assets over the saved exchanges. It
// returns nil when the setup cannot be compared.
func ArbitrageAssets(cfg models.UserArbitrageConfig) map[string][]string {
	if len(cfg.Assets) == 0 || len(cfg.Exchanges) < 2 {
		return nil
	}
	out := make(map[string][]string, len(cfg.Assets))
	for _, symbol := range cfg.Assets {
		out[symbol] = slices.Clone(cfg.Exchanges)
	}
	return out
}

// MarketViewSymbols expands the saved symbols over the saved exchanges.
func MarketViewSymbols(cfg models.UserMarketViewConfig) map[string][]string {
	if len(cfg.Symbols) == 0 || len(cfg.Exchanges) == 0 {
		return nil
	}
	out := make(map[string][]string, len(cfg.Symbols))
	for _, symbol := range cfg.Symbols {
		out[symbol] = slices.Clone(cfg.Exchanges)
	}
	return out
}

func (m *UserConfigManager) normalize(cfg *models.UserConfig) {
	cfg.Arbitrage.Exchanges = normalizeExchanges(cfg.Arbitrage.Exchanges)
	cfg.Arbitrage.Assets = normalizeSymbols(cfg.Arbitrage.Assets)
	cfg.MarketView.Exchanges = normalizeExchanges(cfg.MarketView.Exchanges)
	cfg.MarketView.Symbols = normalizeSymbols(cfg.MarketView.Symbols)
	cfg.Preferences.AlertFrequency = strings.ToLower(strings.TrimSpace(cfg.Preferences.AlertFrequency))
	cfg.Preferences.MessageFormat = strings.ToLower(strings.TrimSpace(cfg.Preferences.MessageFormat))
	cfg.Preferences.Timezone = strings.TrimSpace(cfg.Preferences.Timezone)
}

func (m *UserConfigManager) validateExchangeList(field string, exchanges []string) error {
	for _, ex := range exchanges {
		if !m.supported[ex] {
			return utils.NewFieldError(field, fmt.Sprintf("unsupported exchange %q, supported: %s", ex, strings.Join(m.exchanges, ", ")))
		}
	}
	return nil
}

func validateSymbolList(field string, symbols []string) error {
	for _, symbol := range symbols {
		if !userSymbolPattern.MatchString(symbol) {
			return utils.NewFieldError(field, fmt.Sprintf("invalid symbol %q", symbol))
		}
	}
	return nil
}

func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = normalizeSymbol(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func unionExchanges(assets map[string][]string) []string {
	var all []string
	for _, exchanges := range assets {
		all = append(all, exchanges...)
	}
	out := normalizeExchanges(all)
	sort.Strings(out)
	return out
}
