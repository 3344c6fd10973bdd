package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/irfndi/celebrum-arbwatch/internal/api"
	"github.com/irfndi/celebrum-arbwatch/internal/api/handlers"
	"github.com/irfndi/celebrum-arbwatch/internal/api/ws"
	"github.com/irfndi/celebrum-arbwatch/internal/archive"
	"github.com/irfndi/celebrum-arbwatch/internal/config"
	"github.com/irfndi/celebrum-arbwatch/internal/database"
	"github.com/irfndi/celebrum-arbwatch/internal/logging"
	"github.com/irfndi/celebrum-arbwatch/internal/marketdata"
	"github.com/irfndi/celebrum-arbwatch/internal/metrics"
	"github.com/irfndi/celebrum-arbwatch/internal/middleware"
	"github.com/irfndi/celebrum-arbwatch/internal/models"
	"github.com/irfndi/celebrum-arbwatch/internal/persistence"
	"github.com/irfndi/celebrum-arbwatch/internal/services"
	"github.com/irfndi/celebrum-arbwatch/internal/telemetry"
	"github.com/irfndi/celebrum-arbwatch/pkg/ccxt"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	serviceName     = "celebrum-arbwatch"
	serviceVersion  = "1.0.0"
	shutdownTimeout = 30 * time.Second
	retentionSweep  = time.Hour
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	// Background workers outlive the signal so the controller can stop the
	// monitors and persist before they are cancelled.
	appCtx, cancelApp := context.WithCancel(context.Background())
	defer cancelApp()

	provider, err := telemetry.InitTelemetry(appCtx, telemetryConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to shutdown telemetry: %v\n", err)
		}
	}()

	stdLogger := newStandardLogger(cfg)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = stdLogger.Shutdown(ctx)
	}()
	logger := logging.NewServiceLogger(cfg.LogLevel)
	collector := metrics.NewCollector()

	// Redis backs the symbol cache and optionally the statistics log.
	var redisClient *database.RedisClient
	if rc, err := database.NewRedisConnection(appCtx, cfg.Redis, logger); err != nil {
		if cfg.Statistics.Backend == "redis" {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.WithError(err).Warn("Redis unavailable, symbol cache disabled")
	} else {
		redisClient = rc
		defer redisClient.Close()
	}

	var db *database.PostgresDB
	if cfg.Statistics.Backend == "postgres" {
		db, err = database.NewPostgresConnection(appCtx, cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
	}

	opportunityLog, err := newOpportunityLog(appCtx, cfg.Statistics.Backend, db, redisClient, logger)
	if err != nil {
		return err
	}
	if pruner, ok := opportunityLog.(database.Pruner); ok && cfg.Statistics.RetentionHours > 0 {
		retention := time.Duration(cfg.Statistics.RetentionHours) * time.Hour
		go database.RunRetention(appCtx, pruner, retention, retentionSweep, logger)
	}

	ccxtClient := ccxt.NewClient(&cfg.CCXT)
	defer func() { _ = ccxtClient.Close() }()
	gateway := marketdata.NewCCXTGateway(ccxtClient, cfg.Arbitrage.SupportedExchanges, logger,
		gatewayOptions(cfg, redisClient, collector, logger)...)
	go warnUnsupportedExchanges(appCtx, gateway, logger)

	thresholds := services.NewThresholdModel(models.ThresholdConfig{
		MinProfitPercentage: cfg.Arbitrage.MinProfitPercentage,
		MinProfitAbsolute:   cfg.Arbitrage.MinProfitAbsolute,
	})
	engine := services.NewArbitrageEngine(gateway, thresholds, cfg.Arbitrage.SupportedExchanges, logger)
	store := services.NewOpportunityStore(cfg.Arbitrage.HistorySize, opportunityLog, logger)
	aggregator := services.NewCBBOAggregator(gateway, cfg.Arbitrage.SupportedExchanges, collector, logger)

	arbitrageMonitor := services.NewArbitrageMonitor(engine, store,
		schedulerConfig(services.ServiceArbitrage, cfg.Arbitrage.PollInterval, cfg), collector, logger)
	marketViewMonitor := services.NewMarketViewMonitor(aggregator,
		schedulerConfig(services.ServiceMarketView, cfg.MarketView.PollInterval, cfg), collector, logger)

	archiver, err := newArchiver(appCtx, cfg.Archive)
	if err != nil {
		return fmt.Errorf("failed to configure state archive: %w", err)
	}
	stateManager := persistence.NewManager(cfg.Persistence.File, archiver, logger)

	controller := services.NewServiceController(services.ControllerDeps{
		Engine:     engine,
		Store:      store,
		Aggregator: aggregator,
		Arbitrage:  arbitrageMonitor,
		MarketView: marketViewMonitor,
		State:      stateManager,
		Logger:     logger,
	})
	stateManager.StartAutoSave(appCtx, cfg.Persistence.AutoSaveInterval, controller.CurrentState)

	arbitrageMonitor.AddListener(services.OpportunityListenerFunc(func(_ context.Context, opp models.ArbitrageOpportunity) {
		stdLogger.LogBusinessEvent("arbitrage_opportunity", opportunityEventDetails(opp))
	}))

	hub := ws.NewHub(cfg.Server.AllowedOrigins, logger)
	go hub.Run(appCtx)
	arbitrageMonitor.AddListener(services.OpportunityListenerFunc(hub.OnOpportunity))
	marketViewMonitor.AddListener(services.MarketViewListenerFunc(hub.OnMarketView))

	watchlist, err := config.LoadWatchlist(cfg.WatchlistFile)
	if err != nil {
		logger.WithError(err).Warn("Watchlist unavailable, monitor commands need explicit assets")
	}

	users := services.NewUserConfigManager(newUserConfigStore(redisClient), cfg.Arbitrage.SupportedExchanges,
		thresholds.Get(), logger)

	var telegramHandler *handlers.TelegramHandler
	var alerts *services.AlertManager
	if cfg.Telegram.BotToken != "" {
		telegramHandler, alerts, err = startTelegram(appCtx, cfg, handlers.TelegramDeps{
			Controller: controller,
			Users:      users,
			Symbols:    gateway,
			Watchlist:  watchlist,
			Logger:     logger,
		})
		if err != nil {
			logger.WithError(err).Error("Telegram bot disabled")
		} else {
			arbitrageMonitor.AddListener(alerts)
			marketViewMonitor.AddListener(alerts)
		}
	}

	tokenExpiry, err := jwtExpiry(cfg.Security.JWTExpiry)
	if err != nil {
		return err
	}
	auth := middleware.NewAuthMiddleware(cfg.Security.JWTSecret, tokenExpiry)
	admin := middleware.NewAdminMiddleware(cfg.Security.AdminAPIKeyHash, auth)

	var dbCheck, redisCheck handlers.HealthChecker
	if db != nil {
		dbCheck = db
	}
	if redisClient != nil {
		redisCheck = redisClient
	}
	health := handlers.NewHealthHandler(dbCheck, redisCheck, ccxtClient, controller,
		services.ServiceArbitrage, services.ServiceMarketView)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	routeDeps := api.RouteDeps{
		ServiceName: serviceName,
		Controller:  controller,
		Symbols:     gateway,
		Health:      health,
		Hub:         hub,
		Admin:       admin,
		Auth:        auth,
		Metrics:     collector,
		Logger:      logger,
	}
	if telegramHandler != nil && cfg.Telegram.WebhookURL != "" {
		routeDeps.Telegram = telegramHandler
	}
	api.SetupRoutes(router, routeDeps)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       15 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		stdLogger.LogStartup(serviceName, serviceVersion, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-sigCtx.Done():
		stdLogger.LogShutdown(serviceName, "signal received")
	case err := <-serverErr:
		runErr = fmt.Errorf("http server failed: %w", err)
		stdLogger.LogShutdown(serviceName, "server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	controller.StopAllServices()
	cancelApp()
	stateManager.Wait()
	if alerts != nil {
		alerts.Wait()
	}

	logger.Info("Server exited gracefully")
	return runErr
}

func telemetryConfig(cfg *config.Config) telemetry.TelemetryConfig {
	name := cfg.Telemetry.ServiceName
	if name == "" {
		name = serviceName
	}
	return telemetry.TelemetryConfig{
		Enabled:      cfg.Telemetry.Enabled,
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		ServiceName:  name,
		Environment:  cfg.Environment,
	}
}

// newStandardLogger ships structured events over OTLP when telemetry is on.
func newStandardLogger(cfg *config.Config) *logging.StandardLogger {
	if cfg.Telemetry.Enabled && cfg.Telemetry.Exporter == "otlp" {
		return logging.NewStandardOTLPLogger(logging.OTLPConfig{
			Endpoint:       cfg.Telemetry.OTLPEndpoint,
			ServiceName:    telemetryConfig(cfg).ServiceName,
			ServiceVersion: serviceVersion,
			Environment:    cfg.Environment,
			LogLevel:       cfg.LogLevel,
		})
	}
	return logging.NewStandardLogger(cfg.LogLevel, cfg.Environment)
}

func newOpportunityLog(ctx context.Context, backend string, db *database.PostgresDB, redisClient *database.RedisClient, logger *logrus.Logger) (services.OpportunityLog, error) {
	switch backend {
	case "postgres":
		if db == nil {
			return nil, errors.New("postgres statistics backend requires a database connection")
		}
		repo := database.NewOpportunityRepository(database.NewTracedDB(db.Pool))
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare opportunity schema: %w", err)
		}
		return repo, nil
	case "redis":
		if redisClient == nil {
			return nil, errors.New("redis statistics backend requires a redis connection")
		}
		return database.NewRedisOpportunityLog(redisClient.Client, logger), nil
	default:
		return database.NewMemoryOpportunityLog(), nil
	}
}

func gatewayOptions(cfg *config.Config, redisClient *database.RedisClient, collector *metrics.Collector, logger *logrus.Logger) []marketdata.Option {
	opts := []marketdata.Option{
		marketdata.WithMetrics(collector),
		marketdata.WithTimeout(time.Duration(cfg.CCXT.Timeout) * time.Second),
		marketdata.WithCircuitBreaker(marketdata.CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 3,
			Timeout:          30 * time.Second,
		}),
	}
	if redisClient != nil {
		opts = append(opts, marketdata.WithSymbolCache(
			marketdata.NewRedisSymbolCache(redisClient.Client, cfg.CCXT.SymbolCacheTTL, logger)))
	}
	return opts
}

type exchangeLister interface {
	UnsupportedExchanges(ctx context.Context) ([]string, error)
}

// warnUnsupportedExchanges logs configured exchanges the sidecar cannot serve.
func warnUnsupportedExchanges(ctx context.Context, lister exchangeLister, logger *logrus.Logger) []string {
	missing, err := lister.UnsupportedExchanges(ctx)
	if err != nil {
		logger.WithError(err).Warn("Could not verify supported exchanges against ccxt service")
		return nil
	}
	if len(missing) > 0 {
		logger.WithField("exchanges", missing).Warn("Configured exchanges not available from ccxt service")
	}
	return missing
}

func schedulerConfig(name string, interval time.Duration, cfg *config.Config) services.SchedulerConfig {
	return services.SchedulerConfig{
		Name:         name,
		Interval:     interval,
		ErrorBackoff: cfg.Arbitrage.ErrorBackoff,
		StopTimeout:  cfg.Arbitrage.StopTimeout,
	}
}

// newArchiver returns a nil interface when archiving is disabled.
func newArchiver(ctx context.Context, cfg config.ArchiveConfig) (persistence.Archiver, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	archiver, err := archive.NewS3Archiver(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return archiver, nil
}

// startTelegram completes deps with the bot messenger and alert manager.
func startTelegram(ctx context.Context, cfg *config.Config, deps handlers.TelegramDeps) (*handlers.TelegramHandler, *services.AlertManager, error) {
	logger := deps.Logger
	var telegramHandler *handlers.TelegramHandler
	b, err := bot.New(cfg.Telegram.BotToken, bot.WithDefaultHandler(func(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
		telegramHandler.BotHandler(ctx, b, update)
	}))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	messenger := services.NewTelegramMessenger(b)
	alerts := services.NewAlertManager(messenger, services.AlertConfig{
		RateLimit:          time.Duration(cfg.Telegram.RateLimitMs) * time.Millisecond,
		MarketViewInterval: cfg.MarketView.AlertInterval,
	}, cfg.Telegram.AlertChatIDs, logger)
	deps.Alerts = alerts
	deps.Messenger = messenger
	telegramHandler = handlers.NewTelegramHandler(deps)

	if cfg.Telegram.WebhookURL != "" {
		if _, err := b.SetWebhook(ctx, &bot.SetWebhookParams{URL: cfg.Telegram.WebhookURL}); err != nil {
			return nil, nil, fmt.Errorf("failed to register telegram webhook: %w", err)
		}
		logger.WithField("url", cfg.Telegram.WebhookURL).Info("Telegram webhook registered")
	} else {
		go b.Start(ctx)
		logger.Info("Telegram bot polling for updates")
	}
	alerts.Start(ctx)
	return telegramHandler, alerts, nil
}

// newUserConfigStore keeps per-chat configuration in redis when available.
func newUserConfigStore(redisClient *database.RedisClient) services.UserConfigStore {
	if redisClient == nil {
		return database.NewMemoryUserConfigStore()
	}
	return database.NewRedisUserConfigStore(redisClient.Client)
}

func jwtExpiry(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid JWT expiry %q: %w", raw, err)
	}
	return d, nil
}

func opportunityEventDetails(opp models.ArbitrageOpportunity) map[string]interface{} {
	return map[string]interface{}{
		"symbol":            opp.Symbol,
		"buy_exchange":      opp.BuyExchange,
		"sell_exchange":     opp.SellExchange,
		"profit_percentage": opp.ProfitPercentage,
		"profit_absolute":   opp.ProfitAbsolute,
	}
}
