package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/irfndi/celebrum-arbwatch/internal/models"
	"github.com/irfndi/celebrum-arbwatch/internal/utils"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeGateway serves quotes keyed by exchange and symbol.
type fakeGateway struct {
	mu     sync.Mutex
	quotes map[string]*models.Quote
	errs   map[string]error
	calls  int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		quotes: make(map[string]*models.Quote),
		errs:   make(map[string]error),
	}
}

func gatewayKey(exchange, symbol string) string {
	return exchange + "|" + symbol
}

func (g *fakeGateway) setQuote(exchange, symbol string, bid, ask float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.quotes[gatewayKey(exchange, symbol)] = &models.Quote{
		Exchange:  exchange,
		Symbol:    symbol,
		BidPrice:  bid,
		AskPrice:  ask,
		Timestamp: testTime,
	}
}

func (g *fakeGateway) setError(exchange, symbol string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs[gatewayKey(exchange, symbol)] = err
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *fakeGateway) GetL1MarketData(_ context.Context, exchange, symbol string) (*models.Quote, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if err, ok := g.errs[gatewayKey(exchange, symbol)]; ok {
		return nil, err
	}
	q, ok := g.quotes[gatewayKey(exchange, symbol)]
	if !ok {
		return nil, nil
	}
	cp := *q
	return &cp, nil
}

func (g *fakeGateway) GetAllSymbols(_ context.Context) (map[string][]string, error) {
	return map[string][]string{}, nil
}

func transportErr(exchange string) error {
	return fmt.Errorf("%w: %s: connection refused", utils.ErrTransportFailure, exchange)
}

// memLog is an in-memory OpportunityLog.
type memLog struct {
	mu      sync.Mutex
	records []models.ArbitrageOpportunity
	fail    bool
}

func (l *memLog) Append(_ context.Context, opp models.ArbitrageOpportunity) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail {
		return errors.New("disk full")
	}
	l.records = append(l.records, opp)
	return nil
}

func (l *memLog) Range(_ context.Context, symbol string, start, end time.Time) ([]models.ArbitrageOpportunity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail {
		return nil, errors.New("disk unreadable")
	}
	var out []models.ArbitrageOpportunity
	for _, rec := range l.records {
		if symbol != "" && rec.Symbol != symbol {
			continue
		}
		if rec.Timestamp.Before(start) || rec.Timestamp.After(end) {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (l *memLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// memState is an in-memory StateStore.
type memState struct {
	mu    sync.Mutex
	state models.MonitoringState
	saves []models.MonitoringState
	err   error
}

func newMemState(state models.MonitoringState) *memState {
	return &memState{state: state}
}

func (s *memState) Load() models.MonitoringState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *memState) Save(state models.MonitoringState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, state)
	if s.err != nil {
		return s.err
	}
	s.state = state
	return nil
}

func (s *memState) Clear() error {
	return s.Save(models.DefaultMonitoringState())
}

func (s *memState) lastSave() (models.MonitoringState, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saves) == 0 {
		return models.MonitoringState{}, 0
	}
	return s.saves[len(s.saves)-1], len(s.saves)
}

func float(v float64) *float64 {
	return &v
}
