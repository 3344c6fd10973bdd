package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/celebrum-arbwatch/internal/models"
	"github.com/irfndi/celebrum-arbwatch/internal/services"
	"github.com/irfndi/celebrum-arbwatch/internal/utils"
	"github.com/sirupsen/logrus"
)

const (
	defaultHistoryLimit    = 100
	defaultStatisticsHours = 24
)

// ArbitrageHandler serves opportunity queries, one-shot scans and the
// arbitrage monitoring lifecycle.
type ArbitrageHandler struct {
	controller *services.ServiceController
	logger     *logrus.Logger
}

// NewArbitrageHandler creates a new ArbitrageHandler
func NewArbitrageHandler(controller *services.ServiceController, logger *logrus.Logger) *ArbitrageHandler {
	return &ArbitrageHandler{
		controller: controller,
		logger:     logger,
	}
}

// GetStatus returns the combined status of both monitoring services.
// GET /api/v1/status
func (h *ArbitrageHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.GetServiceStatus())
}

// GetOpportunities returns the active opportunities ordered by profit
// percentage. max_age accepts a Go duration ("30s") or whole seconds.
// GET /api/v1/arbitrage/opportunities
func (h *ArbitrageHandler) GetOpportunities(c *gin.Context) {
	maxAge, err := parseMaxAge(c.Query("max_age"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	opportunities := h.controller.GetActiveOpportunities(maxAge)
	c.JSON(http.StatusOK, models.ArbitrageOpportunitiesResponse{
		Opportunities: opportunities,
		Count:         len(opportunities),
		Timestamp:     time.Now().UTC(),
	})
}

// GetHistory returns the most recent emitted opportunities, newest last.
// GET /api/v1/arbitrage/history?limit=
func (h *ArbitrageHandler) GetHistory(c *gin.Context) {
	limit, err := positiveIntQuery(c, "limit", defaultHistoryLimit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	history := h.controller.GetOpportunityHistory(limit)
	c.JSON(http.StatusOK, models.ArbitrageOpportunitiesResponse{
		Opportunities: history,
		Count:         len(history),
		Timestamp:     time.Now().UTC(),
	})
}

// GetStatistics aggregates recorded opportunities over the last hours.
// GET /api/v1/arbitrage/statistics?symbol=&hours=
func (h *ArbitrageHandler) GetStatistics(c *gin.Context) {
	hours, err := positiveIntQuery(c, "hours", defaultStatisticsHours)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	stats, err := h.controller.GetHistoricalStatistics(c.Request.Context(), c.Query("symbol"), hours)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetThresholds returns the active thresholds.
// GET /api/v1/arbitrage/thresholds
func (h *ArbitrageHandler) GetThresholds(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.GetThresholds())
}

// UpdateThresholds applies a partial threshold update.
// PUT /api/v1/arbitrage/thresholds
func (h *ArbitrageHandler) UpdateThresholds(c *gin.Context) {
	var req models.ThresholdUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, utils.NewFieldError("body", err.Error()))
		return
	}
	if req.Percentage == nil && req.Absolute == nil {
		respondError(c, h.logger, utils.NewValidationError("percentage or absolute is required"))
		return
	}

	if err := h.controller.SetThresholds(req.Percentage, req.Absolute); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, h.controller.GetThresholds())
}

// Scan runs a single cross-exchange evaluation without touching the store.
// POST /api/v1/arbitrage/scan
func (h *ArbitrageHandler) Scan(c *gin.Context) {
	var req models.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, utils.NewFieldError("body", err.Error()))
		return
	}

	opportunities, err := h.controller.Engine().FindOpportunities(c.Request.Context(), req.Exchanges, req.Symbol)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.ArbitrageOpportunitiesResponse{
		Opportunities: opportunities,
		Count:         len(opportunities),
		Timestamp:     time.Now().UTC(),
	})
}

// SyntheticScan compares one base asset quoted in several quote assets on
// every supported exchange.
// POST /api/v1/arbitrage/synthetic
func (h *ArbitrageHandler) SyntheticScan(c *gin.Context) {
	var req models.SyntheticScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, utils.NewFieldError("body", err.Error()))
		return
	}

	opportunities, err := h.controller.Engine().FindSyntheticOpportunities(c.Request.Context(), req.BaseAsset, req.QuoteAssets)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.ArbitrageOpportunitiesResponse{
		Opportunities: opportunities,
		Count:         len(opportunities),
		Timestamp:     time.Now().UTC(),
	})
}

// StartMonitoring starts the arbitrage loop.
// POST /api/v1/arbitrage/start
func (h *ArbitrageHandler) StartMonitoring(c *gin.Context) {
	var req models.MonitorRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, h.logger, utils.NewFieldError("body", err.Error()))
		return
	}

	started, err := h.controller.StartArbitrageMonitoring(req.Assets, req.MinProfitPercentage, req.MinProfitAbsolute)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !started {
		c.JSON(http.StatusConflict, gin.H{"error": "arbitrage monitoring is already running"})
		return
	}

	h.logger.WithField("admin_subject", c.GetString("admin_subject")).Info("Arbitrage monitoring started via API")
	c.JSON(http.StatusOK, h.controller.GetServiceStatus().Arbitrage)
}

// StopMonitoring stops the arbitrage loop.
// POST /api/v1/arbitrage/stop
func (h *ArbitrageHandler) StopMonitoring(c *gin.Context) {
	stopped := h.controller.StopArbitrageMonitoring()
	c.JSON(http.StatusOK, gin.H{
		"stopped": stopped,
		"status":  h.controller.GetServiceStatus().Arbitrage,
	})
}

// ResetState stops both loops and resets thresholds, monitored sets and the
// persisted state to defaults.
// POST /api/v1/admin/state/reset
func (h *ArbitrageHandler) ResetState(c *gin.Context) {
	if err := h.controller.ResetState(); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reset":  true,
		"status": h.controller.GetServiceStatus(),
	})
}

func parseMaxAge(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		if d < 0 {
			return 0, utils.NewFieldError("max_age", "must not be negative")
		}
		return d, nil
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0, utils.NewFieldError("max_age", "must be a duration such as 30s or a number of seconds")
	}
	return time.Duration(secs) * time.Second, nil
}

func positiveIntQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, utils.NewFieldError(name, "must be a positive integer")
	}
	return v, nil
}
