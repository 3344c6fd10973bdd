package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/irfndi/celebrum-arbwatch/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	// maxAlertHistory caps the in-memory alert history.
	maxAlertHistory = 100
	alertTimeLayout = "2006-01-02 15:04:05 UTC"
)

// Messenger delivers chat messages to subscribers.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, text string) error
}

// AlertRecord is one entry of the alert history
type AlertRecord struct {
	Type      string    `json:"type"`
	Key       string    `json:"key"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertConfig controls alert pacing
type AlertConfig struct {
	RateLimit          time.Duration
	MarketViewInterval time.Duration
	QueueSize          int
}

type alertJob struct {
	opportunity *models.ArbitrageOpportunity
	view        *models.ConsolidatedMarketView
}

type sentAlert struct {
	messageIDs map[int64]int
	text       string
}

// AlertManager formats opportunities and market views and pushes them to
// chat subscribers, editing the previous message for the same key rather
// than sending a new one.
type AlertManager struct {
	messenger Messenger
	config    AlertConfig
	logger    *logrus.Logger
	printer   *message.Printer
	upper     cases.Caser
	now       func() time.Time

	mu          sync.Mutex
	subscribers map[int64]struct{}
	sent        map[string]*sentAlert
	history     []AlertRecord
	lastMarket  map[string]time.Time

	sendMu   sync.Mutex
	lastSend time.Time

	queue chan alertJob
	wg    sync.WaitGroup
}

// NewAlertManager creates an alert manager with the given initial subscribers.
func NewAlertManager(messenger Messenger, config AlertConfig, subscribers []int64, logger *logrus.Logger) *AlertManager {
	if config.RateLimit < 0 {
		config.RateLimit = 0
	}
	if config.MarketViewInterval <= 0 {
		config.MarketViewInterval = time.Minute
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}

	am := &AlertManager{
		messenger:   messenger,
		config:      config,
		logger:      logger,
		printer:     message.NewPrinter(language.English),
		upper:       cases.Upper(language.Und),
		now:         time.Now,
		subscribers: make(map[int64]struct{}),
		sent:        make(map[string]*sentAlert),
		lastMarket:  make(map[string]time.Time),
		queue:       make(chan alertJob, config.QueueSize),
	}
	for _, chatID := range subscribers {
		am.subscribers[chatID] = struct{}{}
	}
	return am
}

// Start runs the delivery worker until ctx is cancelled.
func (am *AlertManager) Start(ctx context.Context) {
	am.wg.Add(1)
	go func() {
		defer am.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case job := <-am.queue:
				switch {
				case job.opportunity != nil:
					am.UpdateArbitrageAlert(ctx, *job.opportunity)
				case job.view != nil:
					am.UpdateMarketViewAlert(ctx, job.view)
				}
			}
		}
	}()
}

// Wait blocks until the delivery worker has exited.
func (am *AlertManager) Wait() {
	am.wg.Wait()
}

// Subscribe adds chatID; returns false if it was already subscribed.
func (am *AlertManager) Subscribe(chatID int64) bool {
	am.mu.Lock()
	defer am.mu.Unlock()
	if _, ok := am.subscribers[chatID]; ok {
		return false
	}
	am.subscribers[chatID] = struct{}{}
	am.logger.WithField("chat_id", chatID).Info("Added alert subscriber")
	return true
}

// Unsubscribe removes chatID; returns false if it was not subscribed.
func (am *AlertManager) Unsubscribe(chatID int64) bool {
	am.mu.Lock()
	defer am.mu.Unlock()
	if _, ok := am.subscribers[chatID]; !ok {
		return false
	}
	delete(am.subscribers, chatID)
	am.logger.WithField("chat_id", chatID).Info("Removed alert subscriber")
	return true
}

// IsSubscribed reports whether chatID receives alerts.
func (am *AlertManager) IsSubscribed(chatID int64) bool {
	am.mu.Lock()
	defer am.mu.Unlock()
	_, ok := am.subscribers[chatID]
	return ok
}

// Subscribers returns the subscribed chat IDs in ascending order.
func (am *AlertManager) Subscribers() []int64 {
	am.mu.Lock()
	defer am.mu.Unlock()
	out := make([]int64, 0, len(am.subscribers))
	for id := range am.subscribers {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// OnOpportunity queues an arbitrage alert without blocking the caller.
func (am *AlertManager) OnOpportunity(_ context.Context, opportunity models.ArbitrageOpportunity) {
	am.enqueue(alertJob{opportunity: &opportunity})
}

// OnMarketView queues a market view alert at most once per interval per symbol.
func (am *AlertManager) OnMarketView(_ context.Context, view *models.ConsolidatedMarketView) {
	if view == nil {
		return
	}
	now := am.now()

	am.mu.Lock()
	last, seen := am.lastMarket[view.Symbol]
	if seen && now.Sub(last) < am.config.MarketViewInterval {
		am.mu.Unlock()
		return
	}
	am.lastMarket[view.Symbol] = now
	am.mu.Unlock()

	am.enqueue(alertJob{view: view})
}

func (am *AlertManager) enqueue(job alertJob) {
	select {
	case am.queue <- job:
	default:
		am.logger.Warn("Alert queue full, dropping alert")
	}
}

// SendArbitrageAlert sends a new alert for opportunity to every subscriber and
// returns the message id per chat.
func (am *AlertManager) SendArbitrageAlert(ctx context.Context, opportunity models.ArbitrageOpportunity) map[int64]int {
	return am.sendNew(ctx, "arbitrage", ArbitrageAlertKey(opportunity), am.FormatArbitrageAlert(opportunity))
}

// SendMarketViewAlert sends a new market view alert to every subscriber.
func (am *AlertManager) SendMarketViewAlert(ctx context.Context, view *models.ConsolidatedMarketView) map[int64]int {
	return am.sendNew(ctx, "market_view", MarketViewAlertKey(view.Symbol), am.FormatMarketViewAlert(view))
}

// UpdateArbitrageAlert edits the previous alert for the same key, or sends a
// new one when none exists. It returns the number of edited messages.
func (am *AlertManager) UpdateArbitrageAlert(ctx context.Context, opportunity models.ArbitrageOpportunity) int {
	return am.update(ctx, "arbitrage", ArbitrageAlertKey(opportunity), am.FormatArbitrageAlert(opportunity))
}

// UpdateMarketViewAlert edits the previous alert for the symbol, or sends a new one.
func (am *AlertManager) UpdateMarketViewAlert(ctx context.Context, view *models.ConsolidatedMarketView) int {
	return am.update(ctx, "market_view", MarketViewAlertKey(view.Symbol), am.FormatMarketViewAlert(view))
}

// AlertHistory returns up to limit of the most recent alerts, oldest first.
func (am *AlertManager) AlertHistory(limit int) []AlertRecord {
	am.mu.Lock()
	defer am.mu.Unlock()
	if limit <= 0 || limit > len(am.history) {
		limit = len(am.history)
	}
	out := make([]AlertRecord, limit)
	copy(out, am.history[len(am.history)-limit:])
	return out
}

// ClearAlertHistory drops the alert history.
func (am *AlertManager) ClearAlertHistory() {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.history = nil
}

func (am *AlertManager) sendNew(ctx context.Context, kind, key, text string) map[int64]int {
	ids := make(map[int64]int)
	for _, chatID := range am.Subscribers() {
		id, err := am.send(ctx, chatID, text)
		if err != nil {
			am.logger.WithError(err).WithField("chat_id", chatID).Error("Failed to send alert")
			continue
		}
		ids[chatID] = id
	}

	am.mu.Lock()
	am.sent[key] = &sentAlert{messageIDs: ids, text: text}
	am.appendHistoryLocked(AlertRecord{Type: kind, Key: key, Message: text, Timestamp: am.now().UTC()})
	am.mu.Unlock()
	return ids
}

func (am *AlertManager) update(ctx context.Context, kind, key, text string) int {
	am.mu.Lock()
	prev, ok := am.sent[key]
	var ids map[int64]int
	if ok {
		if prev.text == text {
			am.mu.Unlock()
			return 0
		}
		ids = make(map[int64]int, len(prev.messageIDs))
		for chatID, id := range prev.messageIDs {
			ids[chatID] = id
		}
	}
	am.mu.Unlock()

	if !ok {
		am.sendNew(ctx, kind, key, text)
		return 0
	}

	edited := 0
	for chatID, messageID := range ids {
		if err := am.edit(ctx, chatID, messageID, text); err != nil {
			am.logger.WithError(err).WithField("chat_id", chatID).Warn("Failed to edit alert")
			continue
		}
		edited++
	}

	am.mu.Lock()
	if current, ok := am.sent[key]; ok {
		current.text = text
	}
	am.mu.Unlock()
	return edited
}

func (am *AlertManager) appendHistoryLocked(rec AlertRecord) {
	am.history = append(am.history, rec)
	if len(am.history) > maxAlertHistory {
		am.history = append([]AlertRecord(nil), am.history[len(am.history)-maxAlertHistory:]...)
	}
}

func (am *AlertManager) send(ctx context.Context, chatID int64, text string) (int, error) {
	if err := am.waitForSlot(ctx); err != nil {
		return 0, err
	}
	return am.messenger.Send(ctx, chatID, text)
}

func (am *AlertManager) edit(ctx context.Context, chatID int64, messageID int, text string) error {
	if err := am.waitForSlot(ctx); err != nil {
		return err
	}
	return am.messenger.Edit(ctx, chatID, messageID, text)
}

// waitForSlot enforces the minimum gap between consecutive messages.
func (am *AlertManager) waitForSlot(ctx context.Context) error {
	am.sendMu.Lock()
	defer am.sendMu.Unlock()

	if wait := am.config.RateLimit - am.now().Sub(am.lastSend); wait > 0 && !am.lastSend.IsZero() {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	am.lastSend = am.now()
	return nil
}

// FormatArbitrageAlert renders an opportunity as a Markdown chat message.
func (am *AlertManager) FormatArbitrageAlert(opp models.ArbitrageOpportunity) string {
	return am.printer.Sprintf(
		"🔔 *ARBITRAGE OPPORTUNITY DETECTED*\n\n"+
			"Asset: %s\n"+
			"Exchange A: %s @ $%.2f\n"+
			"Exchange B: %s @ $%.2f\n"+
			"Spread: $%.2f (%.2f%%)\n"+
			"Threshold: %.2f%%\n"+
			"Time: %s",
		opp.Symbol,
		am.upper.String(opp.BuyExchange), opp.BuyPrice,
		am.upper.String(opp.SellExchange), opp.SellPrice,
		opp.ProfitAbsolute, opp.ProfitPercentage,
		opp.ThresholdPercentage,
		opp.Timestamp.UTC().Format(alertTimeLayout),
	)
}

// FormatMarketViewAlert renders a consolidated view as a Markdown chat message.
func (am *AlertManager) FormatMarketViewAlert(view *models.ConsolidatedMarketView) string {
	return am.printer.Sprintf(
		"📊 *MARKET VIEW UPDATE*\n\n"+
			"Symbol: %s\n"+
			"Best Bid: %s @ $%.2f\n"+
			"Best Offer: %s @ $%.2f\n"+
			"CBBO Mid: $%.2f\n"+
			"Time: %s",
		view.Symbol,
		am.upper.String(view.CBBOBidExchange), view.CBBOBidPrice,
		am.upper.String(view.CBBOAskExchange), view.CBBOAskPrice,
		view.MidPrice(),
		view.Timestamp.UTC().Format(alertTimeLayout),
	)
}

// ArbitrageAlertKey identifies the alert message for an exchange pair.
func ArbitrageAlertKey(opp models.ArbitrageOpportunity) string {
	return "arb_" + opp.Symbol + "_" + opp.BuyExchange + "_" + opp.SellExchange
}

// MarketViewAlertKey identifies the alert message for a symbol.
func MarketViewAlertKey(symbol string) string {
	return "market_" + symbol
}
