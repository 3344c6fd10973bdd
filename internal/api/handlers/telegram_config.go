package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/irfndi/celebrum-arbwatch/internal/models"
	"github.com/irfndi/celebrum-arbwatch/internal/services"
	"github.com/irfndi/celebrum-arbwatch/internal/utils"
)

const (
	telegramSymbolsShown = 20
	telegramAlertsShown  = 5
)

const userConfigUnavailable = "Per-user configuration is not available."

// savedArbitrage returns the chat's saved arbitrage setup with its
// thresholds, falling back to the watchlist.
func (h *TelegramHandler) savedArbitrage(ctx context.Context, chatID int64) (map[string][]string, *float64, *float64) {
	if h.users != nil {
		cfg, err := h.users.Get(ctx, chatID)
		if err != nil {
			h.logger.WithError(err).WithField("chat_id", chatID).Warn("Failed to load user configuration")
		} else if assets := services.ArbitrageAssets(cfg.Arbitrage); assets != nil {
			pct, abs := cfg.Arbitrage.ThresholdPercentage, cfg.Arbitrage.ThresholdAbsolute
			return assets, &pct, &abs
		}
	}
	return h.watchlist.Arbitrage, nil, nil
}

func (h *TelegramHandler) savedMarketView(ctx context.Context, chatID int64) map[string][]string {
	if h.users != nil {
		cfg, err := h.users.Get(ctx, chatID)
		if err != nil {
			h.logger.WithError(err).WithField("chat_id", chatID).Warn("Failed to load user configuration")
		} else if symbols := services.MarketViewSymbols(cfg.MarketView); symbols != nil {
			return symbols
		}
	}
	return h.watchlist.MarketView
}

func (h *TelegramHandler) disableUserService(ctx context.Context, chatID int64, service string) {
	if h.users == nil {
		return
	}
	if err := h.users.SetEnabled(ctx, chatID, service, false); err != nil {
		h.logger.WithError(err).WithField("chat_id", chatID).Warn("Failed to save disabled service")
	}
}

// preferences returns the chat's preferences, or the defaults when none can
// be loaded.
func (h *TelegramHandler) preferences(ctx context.Context, chatID int64) models.UserPreferences {
	if h.users == nil {
		return models.UserPreferences{MessageFormat: "detailed", Timezone: "UTC"}
	}
	cfg, err := h.users.Get(ctx, chatID)
	if err != nil {
		return h.users.Defaults().Preferences
	}
	return cfg.Preferences
}

func (h *TelegramHandler) handleListSymbols(ctx context.Context, args []string) string {
	if h.symbols == nil {
		return "Symbol listing is not available."
	}
	if len(args) > 1 && strings.ToLower(args[1]) != "spot" {
		return "Only the spot market type is supported."
	}

	all, err := h.symbols.GetAllSymbols(ctx)
	if err != nil {
		return h.userError(err)
	}

	if len(args) == 0 {
		var b strings.Builder
		b.WriteString("*Available spot symbols*\n\n")
		for _, exchange := range h.controller.Engine().SupportedExchanges() {
			fmt.Fprintf(&b, "%s: %d\n", h.exchangeName(exchange), len(all[exchange]))
		}
		b.WriteString("\nUse `/list_symbols <exchange> spot` for the list.")
		return b.String()
	}

	exchanges, err := h.validateExchanges(args[:1])
	if err != nil {
		return h.userError(err)
	}
	exchange := exchanges[0]
	symbols := all[exchange]
	if len(symbols) == 0 {
		return fmt.Sprintf("No symbols found for %s spot market.", h.exchangeName(exchange))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Available symbols for %s SPOT*\n\n", escapeMarkdown(strings.ToUpper(exchange)))
	for i, symbol := range symbols {
		if i == telegramSymbolsShown {
			fmt.Fprintf(&b, "\n... and %d more symbols.", len(symbols)-telegramSymbolsShown)
			break
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, escapeMarkdown(symbol))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (h *TelegramHandler) handleAlerts(ctx context.Context, chatID int64, args []string) string {
	if len(args) > 0 {
		switch strings.ToLower(args[0]) {
		case "on":
			h.alerts.Subscribe(chatID)
			return "Alerts enabled."
		case "off":
			h.alerts.Unsubscribe(chatID)
			return "Alerts disabled."
		case "clear":
			h.alerts.ClearAlertHistory()
			return "Alert history cleared."
		default:
			return "Usage: `/alerts [on|off|clear]`"
		}
	}

	loc := time.UTC
	if tz := h.preferences(ctx, chatID).Timezone; tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}

	var b strings.Builder
	b.WriteString("*Alert Settings*\n\n")
	if h.alerts.IsSubscribed(chatID) {
		b.WriteString("Status: enabled\n")
	} else {
		b.WriteString("Status: disabled\n")
	}

	history := h.alerts.AlertHistory(telegramAlertsShown)
	if len(history) == 0 {
		b.WriteString("\nNo alerts sent yet.")
		return b.String()
	}
	b.WriteString("\nRecent alerts:\n")
	for i := len(history) - 1; i >= 0; i-- {
		rec := history[i]
		fmt.Fprintf(&b, "  %s %s %s\n", rec.Timestamp.In(loc).Format(telegramTimeLayout),
			escapeMarkdown(rec.Type), escapeMarkdown(rec.Key))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (h *TelegramHandler) handleConfig(ctx context.Context, chatID int64, args []string) string {
	if h.users == nil {
		return userConfigUnavailable
	}

	switch {
	case len(args) == 0:
		cfg, err := h.users.Get(ctx, chatID)
		if err != nil {
			return h.userError(err)
		}
		return formatUserConfig(cfg)
	case len(args) == 1 && strings.ToLower(args[0]) == "reset":
		if _, err := h.users.Reset(ctx, chatID); err != nil {
			return h.userError(err)
		}
		return "Configuration reset to defaults."
	case len(args) == 2:
		key, value := strings.ToLower(args[0]), args[1]
		cfg, err := h.users.Update(ctx, chatID, func(cfg *models.UserConfig) error {
			switch key {
			case "alert_frequency":
				cfg.Preferences.AlertFrequency = value
			case "message_format":
				cfg.Preferences.MessageFormat = value
			case "timezone":
				cfg.Preferences.Timezone = value
			default:
				return utils.NewFieldError("key", "use alert_frequency, message_format or timezone")
			}
			return nil
		})
		if err != nil {
			return h.userError(err)
		}
		return "Preferences updated.\n\n" + formatPreferences(cfg.Preferences)
	default:
		return "Usage: `/config`, `/config reset` or `/config <alert_frequency|message_format|timezone> <value>`"
	}
}

func (h *TelegramHandler) handleConfigArbitrage(ctx context.Context, chatID int64, args []string) string {
	if h.users == nil {
		return userConfigUnavailable
	}
	if len(args) == 0 {
		cfg, err := h.users.Get(ctx, chatID)
		if err != nil {
			return h.userError(err)
		}
		return formatArbitrageConfig(cfg.Arbitrage)
	}
	if len(args) < 2 {
		return "Usage: `/config_arb <assets|exchanges|threshold|max_monitors|enabled> <value...>`"
	}

	key, values := strings.ToLower(args[0]), args[1:]
	cfg, err := h.users.Update(ctx, chatID, func(cfg *models.UserConfig) error {
		arb := &cfg.Arbitrage
		switch key {
		case "assets":
			arb.Assets = values
		case "exchanges":
			arb.Exchanges = values
		case "threshold":
			if len(values) != 2 {
				return utils.NewFieldError("threshold", "give a percentage and an absolute value")
			}
			pct, err := parseThreshold("percentage", values[0])
			if err != nil {
				return err
			}
			abs, err := parseThreshold("absolute", values[1])
			if err != nil {
				return err
			}
			arb.ThresholdPercentage, arb.ThresholdAbsolute = pct, abs
		case "max_monitors":
			n, err := parseCount("max_monitors", values[0])
			if err != nil {
				return err
			}
			arb.MaxMonitors = n
		case "enabled":
			enabled, err := parseToggle(values[0])
			if err != nil {
				return err
			}
			arb.Enabled = enabled
		default:
			return utils.NewFieldError("key", "use assets, exchanges, threshold, max_monitors or enabled")
		}
		return nil
	})
	if err != nil {
		return h.userError(err)
	}
	return "Arbitrage configuration updated.\n\n" + formatArbitrageConfig(cfg.Arbitrage)
}

func (h *TelegramHandler) handleConfigMarket(ctx context.Context, chatID int64, args []string) string {
	if h.users == nil {
		return userConfigUnavailable
	}
	if len(args) == 0 {
		cfg, err := h.users.Get(ctx, chatID)
		if err != nil {
			return h.userError(err)
		}
		return formatMarketViewConfig(cfg.MarketView)
	}
	if len(args) < 2 {
		return "Usage: `/config_market <symbols|exchanges|frequency|change|enabled> <value...>`"
	}

	key, values := strings.ToLower(args[0]), args[1:]
	cfg, err := h.users.Update(ctx, chatID, func(cfg *models.UserConfig) error {
		mv := &cfg.MarketView
		switch key {
		case "symbols":
			mv.Symbols = values
		case "exchanges":
			mv.Exchanges = values
		case "frequency":
			n, err := parseCount("frequency", values[0])
			if err != nil {
				return err
			}
			mv.UpdateFrequency = n
		case "change":
			v, err := parseThreshold("significant_change", values[0])
			if err != nil {
				return err
			}
			mv.SignificantChangeThreshold = v
		case "enabled":
			enabled, err := parseToggle(values[0])
			if err != nil {
				return err
			}
			mv.Enabled = enabled
		default:
			return utils.NewFieldError("key", "use symbols, exchanges, frequency, change or enabled")
		}
		return nil
	})
	if err != nil {
		return h.userError(err)
	}
	return "Market view configuration updated.\n\n" + formatMarketViewConfig(cfg.MarketView)
}

func formatUserConfig(cfg models.UserConfig) string {
	return strings.Join([]string{
		"*User Configuration*",
		formatArbitrageConfig(cfg.Arbitrage),
		formatMarketViewConfig(cfg.MarketView),
		formatPreferences(cfg.Preferences),
	}, "\n\n")
}

func formatArbitrageConfig(arb models.UserArbitrageConfig) string {
	var b strings.Builder
	b.WriteString("*Arbitrage*\n")
	fmt.Fprintf(&b, "Assets: %s\n", escapeMarkdown(listOrNone(arb.Assets)))
	fmt.Fprintf(&b, "Exchanges: %s\n", escapeMarkdown(listOrNone(arb.Exchanges)))
	fmt.Fprintf(&b, "Threshold: %.4g%% and %.4g\n", arb.ThresholdPercentage, arb.ThresholdAbsolute)
	fmt.Fprintf(&b, "Max monitors: %d\n", arb.MaxMonitors)
	fmt.Fprintf(&b, "Enabled: %s", yesNo(arb.Enabled))
	return b.String()
}

func formatMarketViewConfig(mv models.UserMarketViewConfig) string {
	var b strings.Builder
	b.WriteString("*Market View*\n")
	fmt.Fprintf(&b, "Symbols: %s\n", escapeMarkdown(listOrNone(mv.Symbols)))
	fmt.Fprintf(&b, "Exchanges: %s\n", escapeMarkdown(listOrNone(mv.Exchanges)))
	fmt.Fprintf(&b, "Update frequency: %ds\n", mv.UpdateFrequency)
	fmt.Fprintf(&b, "Significant change: %.4g%%\n", mv.SignificantChangeThreshold)
	fmt.Fprintf(&b, "Enabled: %s", yesNo(mv.Enabled))
	return b.String()
}

func formatPreferences(prefs models.UserPreferences) string {
	return fmt.Sprintf("*Preferences*\nAlert frequency: %s\nMessage format: %s\nTimezone: %s",
		escapeMarkdown(prefs.AlertFrequency), escapeMarkdown(prefs.MessageFormat), escapeMarkdown(prefs.Timezone))
}

func parseCount(field, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, utils.NewFieldError(field, fmt.Sprintf("%q is not a whole number", raw))
	}
	return n, nil
}

func parseToggle(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "on", "true", "yes":
		return true, nil
	case "off", "false", "no":
		return false, nil
	}
	return false, utils.NewFieldError("enabled", "use on or off")
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
