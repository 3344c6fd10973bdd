package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/celebrum-arbwatch/internal/database"
	"github.com/irfndi/celebrum-arbwatch/internal/models"
	"github.com/irfndi/celebrum-arbwatch/internal/persistence"
	"github.com/irfndi/celebrum-arbwatch/internal/services"
	"github.com/irfndi/celebrum-arbwatch/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var testExchanges = []string{"binance", "okx", "bybit"}

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type stubGateway struct {
	mu      sync.Mutex
	quotes  map[string]*models.Quote
	symbols map[string][]string
	failAll bool
}

func newStubGateway() *stubGateway {
	return &stubGateway{quotes: make(map[string]*models.Quote)}
}

func (g *stubGateway) set(exchange, symbol string, bid, ask float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.quotes[exchange+"|"+symbol] = &models.Quote{
		Exchange:  exchange,
		Symbol:    symbol,
		BidPrice:  bid,
		AskPrice:  ask,
		BidSize:   1,
		AskSize:   1,
		Timestamp: time.Now().UTC(),
	}
}

func (g *stubGateway) GetL1MarketData(_ context.Context, exchange, symbol string) (*models.Quote, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failAll {
		return nil, utils.ErrTransportFailure
	}
	q, ok := g.quotes[exchange+"|"+symbol]
	if !ok {
		return nil, nil
	}
	cp := *q
	return &cp, nil
}

func (g *stubGateway) GetAllSymbols(_ context.Context) (map[string][]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.symbols, nil
}

type recordingMessenger struct {
	mu   sync.Mutex
	sent map[int64][]string
}

func (m *recordingMessenger) Send(_ context.Context, chatID int64, text string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sent == nil {
		m.sent = make(map[int64][]string)
	}
	m.sent[chatID] = append(m.sent[chatID], text)
	return len(m.sent[chatID]), nil
}

func (m *recordingMessenger) Edit(context.Context, int64, int, string) error {
	return nil
}

func (m *recordingMessenger) messages(chatID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent[chatID]...)
}

type fixture struct {
	gateway    *stubGateway
	controller *services.ServiceController
	state      *persistence.Manager
	logger     *logrus.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := testLogger()
	gw := newStubGateway()

	engine := services.NewArbitrageEngine(gw, services.NewThresholdModel(models.DefaultThresholds()), testExchanges, logger)
	store := services.NewOpportunityStore(1000, database.NewMemoryOpportunityLog(), logger)
	aggregator := services.NewCBBOAggregator(gw, testExchanges, nil, logger)

	cfg := services.SchedulerConfig{Interval: 10 * time.Millisecond, ErrorBackoff: 20 * time.Millisecond, StopTimeout: time.Second}
	arbCfg, mvCfg := cfg, cfg
	arbCfg.Name = services.ServiceArbitrage
	mvCfg.Name = services.ServiceMarketView

	state := persistence.NewManager(filepath.Join(t.TempDir(), "state.json"), nil, logger)
	controller := services.NewServiceController(services.ControllerDeps{
		Engine:     engine,
		Store:      store,
		Aggregator: aggregator,
		Arbitrage:  services.NewArbitrageMonitor(engine, store, arbCfg, nil, logger),
		MarketView: services.NewMarketViewMonitor(aggregator, mvCfg, nil, logger),
		State:      state,
		Logger:     logger,
	})
	t.Cleanup(controller.StopAllServices)

	return &fixture{gateway: gw, controller: controller, state: state, logger: logger}
}

func performRequest(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}
