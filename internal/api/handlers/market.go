package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/celebrum-arbwatch/internal/models"
	"github.com/irfndi/celebrum-arbwatch/internal/services"
	"github.com/irfndi/celebrum-arbwatch/internal/utils"
	"github.com/sirupsen/logrus"
)

// SymbolSource lists canonical symbols per exchange.
type SymbolSource interface {
	GetAllSymbols(ctx context.Context) (map[string][]string, error)
}

// MarketHandler serves consolidated best bid/offer views and the market view
// monitoring lifecycle.
type MarketHandler struct {
	controller *services.ServiceController
	symbols    SymbolSource
	logger     *logrus.Logger
}

// NewMarketHandler creates a new MarketHandler
func NewMarketHandler(controller *services.ServiceController, symbols SymbolSource, logger *logrus.Logger) *MarketHandler {
	return &MarketHandler{
		controller: controller,
		symbols:    symbols,
		logger:     logger,
	}
}

// GetCBBO returns the cached view for a monitored symbol or computes a fresh
// one across the supported exchanges.
// GET /api/v1/market/cbbo/:symbol
func (h *MarketHandler) GetCBBO(c *gin.Context) {
	symbol := c.Param("symbol")

	view, err := h.controller.Aggregator().GetCBBO(c.Request.Context(), symbol)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if view == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no market data for " + symbol})
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetSymbols lists the canonical symbols available on each exchange.
// GET /api/v1/market/symbols
func (h *MarketHandler) GetSymbols(c *gin.Context) {
	symbols, err := h.symbols.GetAllSymbols(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	total := 0
	for _, list := range symbols {
		total += len(list)
	}
	c.JSON(http.StatusOK, gin.H{
		"symbols":   symbols,
		"count":     total,
		"timestamp": time.Now().UTC(),
	})
}

// StartMonitoring starts the market view loop.
// POST /api/v1/market/start
func (h *MarketHandler) StartMonitoring(c *gin.Context) {
	var req models.MonitorRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, h.logger, utils.NewFieldError("body", err.Error()))
		return
	}

	started, err := h.controller.StartMarketViewMonitoring(req.Assets)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !started {
		c.JSON(http.StatusConflict, gin.H{"error": "market view monitoring is already running"})
		return
	}

	h.logger.WithField("admin_subject", c.GetString("admin_subject")).Info("Market view monitoring started via API")
	c.JSON(http.StatusOK, h.controller.GetServiceStatus().MarketView)
}

// StopMonitoring stops the market view loop.
// POST /api/v1/market/stop
func (h *MarketHandler) StopMonitoring(c *gin.Context) {
	stopped := h.controller.StopMarketViewMonitoring()
	c.JSON(http.StatusOK, gin.H{
		"stopped": stopped,
		"status":  h.controller.GetServiceStatus().MarketView,
	})
}
