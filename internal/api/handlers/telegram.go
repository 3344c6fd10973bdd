package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/irfndi/celebrum-arbwatch/internal/config"
	"github.com/irfndi/celebrum-arbwatch/internal/services"
	"github.com/irfndi/celebrum-arbwatch/internal/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	telegramTopOpportunities = 5
	telegramStatsHours       = 24
	telegramStatsRows        = 10
	telegramTimeLayout       = "2006-01-02 15:04:05"
)

// TelegramHandler answers bot commands by driving the service controller and
// the alert subscriber list.
type TelegramHandler struct {
	controller *services.ServiceController
	alerts     *services.AlertManager
	messenger  services.Messenger
	users      *services.UserConfigManager
	symbols    SymbolSource
	watchlist  *config.Watchlist
	supported  map[string]bool
	title      cases.Caser
	logger     *logrus.Logger
}

// TelegramDeps groups the collaborators of a TelegramHandler. Users and
// Symbols may be nil; the commands that need them then report so.
type TelegramDeps struct {
	Controller *services.ServiceController
	Alerts     *services.AlertManager
	Messenger  services.Messenger
	Users      *services.UserConfigManager
	Symbols    SymbolSource
	// Watchlist supplies the default sets for /monitor_arb and /view_market
	// when neither arguments nor a saved setup exist.
	Watchlist *config.Watchlist
	Logger    *logrus.Logger
}

// NewTelegramHandler creates a command handler.
func NewTelegramHandler(deps TelegramDeps) *TelegramHandler {
	watchlist := deps.Watchlist
	if watchlist == nil {
		watchlist = &config.Watchlist{}
	}
	supported := make(map[string]bool)
	for _, ex := range deps.Controller.Engine().SupportedExchanges() {
		supported[ex] = true
	}

	return &TelegramHandler{
		controller: deps.Controller,
		alerts:     deps.Alerts,
		messenger:  deps.Messenger,
		users:      deps.Users,
		symbols:    deps.Symbols,
		watchlist:  watchlist,
		supported:  supported,
		title:      cases.Title(language.English),
		logger:     deps.Logger,
	}
}

// HandleWebhook processes incoming Telegram webhook requests
func (h *TelegramHandler) HandleWebhook(c *gin.Context) {
	var update tgmodels.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		h.logger.WithError(err).Warn("Failed to parse Telegram update")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := h.processUpdate(ctx, &update); err != nil {
			h.logger.WithError(err).Warn("Failed to process Telegram update")
		}
	}()

	// Always acknowledge so Telegram does not redeliver.
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// BotHandler is the default handler for long-polling mode.
func (h *TelegramHandler) BotHandler(ctx context.Context, _ *bot.Bot, update *tgmodels.Update) {
	if err := h.processUpdate(ctx, update); err != nil {
		h.logger.WithError(err).Warn("Failed to process Telegram update")
	}
}

func (h *TelegramHandler) processUpdate(ctx context.Context, update *tgmodels.Update) error {
	if update.Message == nil {
		return nil
	}
	message := update.Message
	if message.Chat.ID == 0 {
		return errors.New("invalid message: missing chat")
	}

	text := strings.TrimSpace(message.Text)
	reply := "I work with commands. Try /help to see what I can do."
	if strings.HasPrefix(text, "/") {
		reply = h.HandleCommand(ctx, message.Chat.ID, text)
	}

	_, err := h.messenger.Send(ctx, message.Chat.ID, reply)
	return err
}

// HandleCommand executes a bot command for chatID and returns the reply.
func (h *TelegramHandler) HandleCommand(ctx context.Context, chatID int64, text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return h.helpText()
	}
	command := strings.ToLower(fields[0])
	if at := strings.Index(command, "@"); at > 0 {
		command = command[:at]
	}
	args := fields[1:]

	h.logger.WithFields(logrus.Fields{"chat_id": chatID, "command": command}).Debug("Telegram command")

	switch command {
	case "/start":
		h.alerts.Subscribe(chatID)
		return "*Welcome to Arbwatch!*\n\nYou are subscribed to arbitrage and market view alerts.\n\n" + h.helpText()
	case "/help":
		return h.helpText()
	case "/stop":
		h.alerts.Unsubscribe(chatID)
		return "Alerts paused. Use /start to subscribe again."
	case "/status":
		return h.statusText()
	case "/threshold":
		return h.handleThreshold(args)
	case "/arbitrage":
		return h.handleArbitrage(ctx, chatID)
	case "/monitor_arb":
		return h.handleMonitorArbitrage(ctx, chatID, args)
	case "/stop_arb":
		h.controller.StopArbitrageMonitoring()
		h.disableUserService(ctx, chatID, services.ServiceArbitrage)
		return "Arbitrage monitoring stopped."
	case "/status_arb":
		return h.arbitrageStatusText()
	case "/arb_stats":
		return h.handleStatistics(ctx, args)
	case "/view_market":
		return h.handleViewMarket(ctx, chatID, args)
	case "/stop_market":
		h.controller.StopMarketViewMonitoring()
		h.disableUserService(ctx, chatID, services.ServiceMarketView)
		return "Market view monitoring stopped."
	case "/get_cbbo":
		return h.handleGetCBBO(ctx, args)
	case "/status_market":
		return h.marketStatusText()
	case "/list_symbols":
		return h.handleListSymbols(ctx, args)
	case "/alerts":
		return h.handleAlerts(ctx, chatID, args)
	case "/config":
		return h.handleConfig(ctx, chatID, args)
	case "/config_arb":
		return h.handleConfigArbitrage(ctx, chatID, args)
	case "/config_market":
		return h.handleConfigMarket(ctx, chatID, args)
	default:
		return "Unknown command. Use /help to see available commands."
	}
}

func (h *TelegramHandler) helpText() string {
	return strings.Join([]string{
		"*Commands*",
		"`/start` subscribe to alerts",
		"`/stop` unsubscribe from alerts",
		"`/status` service status",
		"`/threshold [percent absolute]` show or set thresholds",
		"`/arbitrage` top active opportunities",
		"`/monitor_arb SYMBOL_on_EXCHANGE ... [percent]` start arbitrage monitoring",
		"`/monitor_arb SYMBOL exchange1 exchange2 ...` same, one symbol",
		"`/stop_arb` stop arbitrage monitoring",
		"`/status_arb` arbitrage monitoring status",
		"`/arb_stats [SYMBOL]` statistics for the last 24 hours",
		"`/view_market SYMBOL exchange1 exchange2 ...` start market view monitoring",
		"`/stop_market` stop market view monitoring",
		"`/get_cbbo SYMBOL` consolidated best bid and offer",
		"`/status_market` market view status",
		"`/list_symbols [exchange] [spot]` symbols available per exchange",
		"`/alerts [on|off|clear]` alert subscription and recent alerts",
		"`/config [reset|key value]` your saved configuration and preferences",
		"`/config_arb [key value]` your saved arbitrage setup",
		"`/config_market [key value]` your saved market view setup",
	}, "\n")
}

func (h *TelegramHandler) handleThreshold(args []string) string {
	if len(args) == 0 {
		th := h.controller.GetThresholds()
		return fmt.Sprintf("*Current thresholds*\nMinimum profit: %.4g%% and %.4g", th.MinProfitPercentage, th.MinProfitAbsolute)
	}
	if len(args) != 2 {
		return "Usage: `/threshold <percent> <absolute>`\nExample: `/threshold 1.0 2.0`"
	}

	pct, err := parseThreshold("percentage", args[0])
	if err != nil {
		return h.userError(err)
	}
	abs, err := parseThreshold("absolute", args[1])
	if err != nil {
		return h.userError(err)
	}
	if err := h.controller.SetThresholds(&pct, &abs); err != nil {
		return h.userError(err)
	}
	return fmt.Sprintf("Thresholds updated: minimum profit %.4g%% and %.4g", pct, abs)
}

func (h *TelegramHandler) handleArbitrage(ctx context.Context, chatID int64) string {
	active := h.controller.GetActiveOpportunities(0)
	if len(active) == 0 {
		return "No active arbitrage opportunities found."
	}
	simple := h.preferences(ctx, chatID).MessageFormat == "simple"

	var b strings.Builder
	fmt.Fprintf(&b, "*Active Arbitrage Opportunities* (%d found)\n\n", len(active))
	for i, opp := range active {
		if i == telegramTopOpportunities {
			fmt.Fprintf(&b, "... and %d more", len(active)-telegramTopOpportunities)
			break
		}
		if simple {
			fmt.Fprintf(&b, "%d. %s %s -> %s %.2f%%\n", i+1, escapeMarkdown(opp.Symbol),
				h.exchangeName(opp.BuyExchange), h.exchangeName(opp.SellExchange), opp.ProfitPercentage)
			continue
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, escapeMarkdown(opp.Symbol))
		fmt.Fprintf(&b, "   Buy on %s at %.4f\n", h.exchangeName(opp.BuyExchange), opp.BuyPrice)
		fmt.Fprintf(&b, "   Sell on %s at %.4f\n", h.exchangeName(opp.SellExchange), opp.SellPrice)
		fmt.Fprintf(&b, "   Profit: %.2f%% (%.4f)\n", opp.ProfitPercentage, opp.ProfitAbsolute)
		fmt.Fprintf(&b, "   Seen: %s\n\n", opp.Timestamp.UTC().Format(telegramTimeLayout))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (h *TelegramHandler) handleMonitorArbitrage(ctx context.Context, chatID int64, args []string) string {
	h.alerts.Subscribe(chatID)

	var (
		assets map[string][]string
		pct    *float64
		abs    *float64
		err    error
	)
	if len(args) == 0 {
		assets, pct, abs = h.savedArbitrage(ctx, chatID)
	} else {
		assets, pct, err = h.parseAssetArgs(args)
		if err != nil {
			return h.userError(err)
		}
	}

	started, err := h.controller.StartArbitrageMonitoring(assets, pct, abs)
	if err != nil {
		return h.userError(err)
	}
	if !started {
		return "Arbitrage monitoring is already running. Use /stop\\_arb first."
	}

	status := h.controller.GetServiceStatus().Arbitrage
	if h.users != nil {
		if err := h.users.RecordArbitrage(ctx, chatID, status.MonitoredAssets, status.Thresholds); err != nil {
			h.logger.WithError(err).WithField("chat_id", chatID).Warn("Failed to save arbitrage setup")
		}
	}
	return fmt.Sprintf("Started arbitrage monitoring for %s\nThreshold: %.4g%% and %.4g",
		escapeMarkdown(strings.Join(sortedSymbols(status.MonitoredAssets), ", ")),
		status.Thresholds.MinProfitPercentage, status.Thresholds.MinProfitAbsolute)
}

func (h *TelegramHandler) handleViewMarket(ctx context.Context, chatID int64, args []string) string {
	h.alerts.Subscribe(chatID)

	var symbols map[string][]string
	if len(args) == 0 {
		symbols = h.savedMarketView(ctx, chatID)
	} else {
		if len(args) < 2 {
			return "Usage: `/view_market SYMBOL exchange1 exchange2 ...`\nExample: `/view_market BTC-USDT binance okx bybit`"
		}
		exchanges, err := h.validateExchanges(args[1:])
		if err != nil {
			return h.userError(err)
		}
		symbols = map[string][]string{strings.ToUpper(args[0]): exchanges}
	}

	started, err := h.controller.StartMarketViewMonitoring(symbols)
	if err != nil {
		return h.userError(err)
	}
	if !started {
		return "Market view monitoring is already running. Use /stop\\_market first."
	}

	status := h.controller.GetServiceStatus().MarketView
	if h.users != nil {
		if err := h.users.RecordMarketView(ctx, chatID, status.MonitoredSymbols); err != nil {
			h.logger.WithError(err).WithField("chat_id", chatID).Warn("Failed to save market view setup")
		}
	}
	return "Started market view monitoring for " + escapeMarkdown(strings.Join(sortedSymbols(status.MonitoredSymbols), ", "))
}

func (h *TelegramHandler) handleGetCBBO(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return "Usage: `/get_cbbo SYMBOL`\nExample: `/get_cbbo BTC-USDT`"
	}

	view, err := h.controller.Aggregator().GetCBBO(ctx, args[0])
	if err != nil {
		return h.userError(err)
	}
	if view == nil {
		return "No market data available for " + escapeMarkdown(strings.ToUpper(args[0]))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Consolidated Best Bid/Offer for %s*\n", escapeMarkdown(view.Symbol))
	fmt.Fprintf(&b, "Updated: %s UTC\n\n", view.Timestamp.UTC().Format(telegramTimeLayout))
	fmt.Fprintf(&b, "Best Bid: %.4f on %s\n", view.CBBOBidPrice, h.exchangeName(view.CBBOBidExchange))
	fmt.Fprintf(&b, "Best Ask: %.4f on %s\n", view.CBBOAskPrice, h.exchangeName(view.CBBOAskExchange))
	fmt.Fprintf(&b, "Spread: %.4f\n", view.Spread())
	fmt.Fprintf(&b, "Exchanges: %d reporting", len(view.ExchangesData))
	return b.String()
}

func (h *TelegramHandler) handleStatistics(ctx context.Context, args []string) string {
	symbol := ""
	if len(args) > 0 {
		symbol = strings.ToUpper(args[0])
	}

	stats, err := h.controller.GetHistoricalStatistics(ctx, symbol, telegramStatsHours)
	if err != nil {
		return h.userError(err)
	}

	var b strings.Builder
	if symbol != "" {
		fmt.Fprintf(&b, "*Arbitrage Statistics for %s (Last 24 Hours)*\n\n", escapeMarkdown(symbol))
	} else {
		b.WriteString("*Overall Arbitrage Statistics (Last 24 Hours)*\n\n")
	}
	fmt.Fprintf(&b, "Total Opportunities: %d\n", stats.TotalOpportunities)
	fmt.Fprintf(&b, "Average Spread: %.4f\n", stats.AverageSpread)
	fmt.Fprintf(&b, "Maximum Spread: %.4f\n", stats.MaxSpread)
	if stats.TotalOpportunities > 0 {
		fmt.Fprintf(&b, "Spread Trend: %.4f\n", stats.SpreadTrend)
	}

	if symbol == "" && len(stats.OpportunitiesBySymbol) > 0 {
		b.WriteString("\nBy symbol:\n")
		for _, row := range topCounts(stats.OpportunitiesBySymbol, telegramStatsRows) {
			fmt.Fprintf(&b, "  %s: %d\n", escapeMarkdown(row.key), row.count)
		}
	}
	if len(stats.OpportunitiesByExchangePair) > 0 {
		b.WriteString("\nBy exchange pair:\n")
		for _, row := range topCounts(stats.OpportunitiesByExchangePair, telegramStatsRows) {
			fmt.Fprintf(&b, "  %s: %d\n", escapeMarkdown(row.key), row.count)
		}
	}

	fmt.Fprintf(&b, "\nPeriod: %s to %s UTC",
		stats.StartTime.UTC().Format(telegramTimeLayout), stats.EndTime.UTC().Format(telegramTimeLayout))
	return b.String()
}

func (h *TelegramHandler) statusText() string {
	status := h.controller.GetServiceStatus()
	return fmt.Sprintf("*Service Status*\n\nArbitrage monitoring: %s (%d assets, %d active opportunities)\nMarket view monitoring: %s (%d symbols)\nAlert subscribers: %d",
		onOff(status.Arbitrage.Monitoring), len(status.Arbitrage.MonitoredAssets), status.Arbitrage.ActiveOpportunitiesCount,
		onOff(status.MarketView.Monitoring), len(status.MarketView.MonitoredSymbols),
		len(h.alerts.Subscribers()))
}

func (h *TelegramHandler) arbitrageStatusText() string {
	status := h.controller.GetServiceStatus().Arbitrage

	var b strings.Builder
	b.WriteString("*Arbitrage Monitoring Status*\n\n")
	fmt.Fprintf(&b, "Status: %s\n", onOff(status.Monitoring))
	fmt.Fprintf(&b, "Thresholds: %.4g%% and %.4g\n", status.Thresholds.MinProfitPercentage, status.Thresholds.MinProfitAbsolute)
	fmt.Fprintf(&b, "Active opportunities: %d\n", status.ActiveOpportunitiesCount)
	fmt.Fprintf(&b, "History entries: %d\n", status.HistoryCount)
	writeAssets(&b, status.MonitoredAssets, h.exchangeName)
	if !status.LastUpdate.IsZero() {
		fmt.Fprintf(&b, "Last update: %s UTC", status.LastUpdate.UTC().Format(telegramTimeLayout))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (h *TelegramHandler) marketStatusText() string {
	status := h.controller.GetServiceStatus().MarketView

	var b strings.Builder
	b.WriteString("*Market View Status*\n\n")
	fmt.Fprintf(&b, "Status: %s\n", onOff(status.Monitoring))
	fmt.Fprintf(&b, "Latest quotes: %d\n", status.LatestDataCount)
	fmt.Fprintf(&b, "Consolidated views: %d\n", status.ConsolidatedViewsCount)
	writeAssets(&b, status.MonitoredSymbols, h.exchangeName)
	if !status.LastUpdate.IsZero() {
		fmt.Fprintf(&b, "Last update: %s UTC", status.LastUpdate.UTC().Format(telegramTimeLayout))
	}
	return strings.TrimRight(b.String(), "\n")
}

// parseAssetArgs accepts either SYMBOL_on_EXCHANGE tokens or a symbol
// followed by exchanges. A trailing number is the percentage threshold.
func (h *TelegramHandler) parseAssetArgs(args []string) (map[string][]string, *float64, error) {
	var pct *float64
	if len(args) > 1 {
		last := args[len(args)-1]
		if _, err := strconv.ParseFloat(last, 64); err == nil {
			v, err := parseThreshold("percentage", last)
			if err != nil {
				return nil, nil, err
			}
			pct = &v
			args = args[:len(args)-1]
		}
	}

	assets := make(map[string][]string)
	if strings.Contains(args[0], "_on_") {
		for _, token := range args {
			symbol, exchange, ok := strings.Cut(token, "_on_")
			if !ok || symbol == "" || exchange == "" {
				return nil, nil, utils.NewFieldError("assets", fmt.Sprintf("invalid asset %q, use SYMBOL_on_EXCHANGE", token))
			}
			exchanges, err := h.validateExchanges([]string{exchange})
			if err != nil {
				return nil, nil, err
			}
			symbol = strings.ToUpper(symbol)
			assets[symbol] = append(assets[symbol], exchanges...)
		}
	} else {
		if len(args) < 2 {
			return nil, nil, utils.NewValidationError("give a symbol and at least two exchanges, e.g. BTC-USDT binance okx")
		}
		exchanges, err := h.validateExchanges(args[1:])
		if err != nil {
			return nil, nil, err
		}
		assets[strings.ToUpper(args[0])] = exchanges
	}

	for symbol, exchanges := range assets {
		if len(exchanges) < 2 {
			return nil, nil, utils.NewFieldError("assets", symbol+" needs at least two exchanges to compare")
		}
	}
	return assets, pct, nil
}

func (h *TelegramHandler) validateExchanges(names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	for _, name := range names {
		ex := strings.ToLower(strings.TrimSpace(name))
		if !h.supported[ex] {
			return nil, utils.NewFieldError("exchange", fmt.Sprintf("unsupported exchange %q, supported: %s", name, strings.Join(h.controller.Engine().SupportedExchanges(), ", ")))
		}
		out = append(out, ex)
	}
	return out, nil
}

// userError renders validation failures verbatim and hides everything else.
func (h *TelegramHandler) userError(err error) string {
	if utils.IsUserFacing(err) {
		return "Error: " + escapeMarkdown(err.Error())
	}
	h.logger.WithError(err).Error("Telegram command failed")
	return "Something went wrong, please try again later."
}

func (h *TelegramHandler) exchangeName(exchange string) string {
	if exchange == "" {
		return "n/a"
	}
	return escapeMarkdown(h.title.String(exchange))
}

func parseThreshold(field, raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, utils.NewFieldError(field, fmt.Sprintf("%q is not a number", raw))
	}
	return v, nil
}

type countRow struct {
	key   string
	count int
}

func topCounts(counts map[string]int, limit int) []countRow {
	rows := make([]countRow, 0, len(counts))
	for k, v := range counts {
		rows = append(rows, countRow{key: k, count: v})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		return rows[i].key < rows[j].key
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

func writeAssets(b *strings.Builder, assets map[string][]string, name func(string) string) {
	if len(assets) == 0 {
		b.WriteString("Monitored: none\n")
		return
	}
	b.WriteString("Monitored:\n")
	for _, symbol := range sortedSymbols(assets) {
		names := make([]string, 0, len(assets[symbol]))
		for _, ex := range assets[symbol] {
			names = append(names, name(ex))
		}
		fmt.Fprintf(b, "  %s: %s\n", escapeMarkdown(symbol), strings.Join(names, ", "))
	}
}

func sortedSymbols(assets map[string][]string) []string {
	out := make([]string, 0, len(assets))
	for s := range assets {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func onOff(running bool) string {
	if running {
		return "running"
	}
	return "stopped"
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// escapeMarkdown escapes Telegram legacy Markdown control characters.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
