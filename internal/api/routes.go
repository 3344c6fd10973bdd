// Package api exposes the monitoring services over HTTP.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/celebrum-arbwatch/internal/api/handlers"
	"github.com/irfndi/celebrum-arbwatch/internal/api/ws"
	"github.com/irfndi/celebrum-arbwatch/internal/metrics"
	"github.com/irfndi/celebrum-arbwatch/internal/middleware"
	"github.com/irfndi/celebrum-arbwatch/internal/services"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RouteDeps groups everything the router serves.
type RouteDeps struct {
	ServiceName string
	Controller  *services.ServiceController
	Symbols     handlers.SymbolSource
	Health      *handlers.HealthHandler
	Telegram    *handlers.TelegramHandler
	Hub         *ws.Hub
	Admin       *middleware.AdminMiddleware
	Auth        *middleware.AuthMiddleware
	Metrics     *metrics.Collector
	Logger      *logrus.Logger
}

// SetupRoutes registers middleware and every endpoint on router.
func SetupRoutes(router *gin.Engine, deps RouteDeps) {
	router.Use(otelgin.Middleware(deps.ServiceName))
	router.Use(middleware.TelemetryMiddleware())

	if deps.Health != nil {
		router.GET("/health", gin.WrapF(deps.Health.HealthCheck))
		router.HEAD("/health", gin.WrapF(deps.Health.HealthCheck))
		router.GET("/health/live", gin.WrapF(deps.Health.LivenessCheck))
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	if deps.Hub != nil {
		router.GET("/ws", gin.WrapF(deps.Hub.HandleWS))
	}

	arbitrageHandler := handlers.NewArbitrageHandler(deps.Controller, deps.Logger)
	marketHandler := handlers.NewMarketHandler(deps.Controller, deps.Symbols, deps.Logger)
	adminHandler := handlers.NewAdminHandler(deps.Auth, deps.Logger)
	requireAdmin := deps.Admin.RequireAdminAuth()

	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", arbitrageHandler.GetStatus)

		arbitrage := v1.Group("/arbitrage")
		{
			arbitrage.GET("/opportunities", arbitrageHandler.GetOpportunities)
			arbitrage.GET("/history", arbitrageHandler.GetHistory)
			arbitrage.GET("/statistics", arbitrageHandler.GetStatistics)
			arbitrage.GET("/thresholds", arbitrageHandler.GetThresholds)
			arbitrage.PUT("/thresholds", requireAdmin, arbitrageHandler.UpdateThresholds)
			arbitrage.POST("/scan", arbitrageHandler.Scan)
			arbitrage.POST("/synthetic", arbitrageHandler.SyntheticScan)
			arbitrage.POST("/start", requireAdmin, arbitrageHandler.StartMonitoring)
			arbitrage.POST("/stop", requireAdmin, arbitrageHandler.StopMonitoring)
		}

		market := v1.Group("/market")
		{
			market.GET("/cbbo/:symbol", marketHandler.GetCBBO)
			market.GET("/symbols", marketHandler.GetSymbols)
			market.POST("/start", requireAdmin, marketHandler.StartMonitoring)
			market.POST("/stop", requireAdmin, marketHandler.StopMonitoring)
		}

		admin := v1.Group("/admin", requireAdmin)
		{
			admin.POST("/token", adminHandler.IssueToken)
			admin.POST("/state/reset", arbitrageHandler.ResetState)
		}

		if deps.Telegram != nil {
			v1.POST("/telegram/webhook", deps.Telegram.HandleWebhook)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
}
