package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Environment: "development",
		Arbitrage: ArbitrageConfig{
			MinProfitPercentage: 0.5,
			MinProfitAbsolute:   1.0,
			PollInterval:        time.Second,
			ErrorBackoff:        5 * time.Second,
			StopTimeout:         5 * time.Second,
			HistorySize:         1000,
			SupportedExchanges:  []string{"binance", "okx"},
		},
		MarketView: MarketViewConfig{PollInterval: time.Second},
		Statistics: StatisticsConfig{Backend: "memory"},
		Security:   SecurityConfig{JWTExpiry: "12h"},
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 0.5, cfg.Arbitrage.MinProfitPercentage)
	assert.Equal(t, 1.0, cfg.Arbitrage.MinProfitAbsolute)
	assert.Equal(t, time.Second, cfg.Arbitrage.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.Arbitrage.ErrorBackoff)
	assert.Equal(t, 5*time.Second, cfg.Arbitrage.StopTimeout)
	assert.Equal(t, 1000, cfg.Arbitrage.HistorySize)
	assert.Equal(t, []string{"binance", "okx", "bybit", "deribit"}, cfg.Arbitrage.SupportedExchanges)
	assert.Equal(t, "persistence_data.json", cfg.Persistence.File)
	assert.Equal(t, 30*time.Second, cfg.Persistence.AutoSaveInterval)
	assert.Equal(t, "memory", cfg.Statistics.Backend)
	assert.Equal(t, 10, cfg.CCXT.Timeout)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("ARBITRAGE_MIN_PROFIT_PERCENTAGE", "1.25")
	t.Setenv("STATISTICS_BACKEND", "REDIS")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1.25, cfg.Arbitrage.MinProfitPercentage)
	assert.Equal(t, "redis", cfg.Statistics.Backend)
	assert.Equal(t, "123:abc", cfg.Telegram.BotToken)
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("STATISTICS_BACKEND", "sqlite")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "statistics backend")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"negative threshold", func(c *Config) { c.Arbitrage.MinProfitAbsolute = -1 }, "non-negative"},
		{"zero history", func(c *Config) { c.Arbitrage.HistorySize = 0 }, "history size"},
		{"zero poll interval", func(c *Config) { c.Arbitrage.PollInterval = 0 }, "must be positive"},
		{"no exchanges", func(c *Config) { c.Arbitrage.SupportedExchanges = nil }, "supported exchange"},
		{"bad jwt expiry", func(c *Config) { c.Security.JWTExpiry = "soon" }, "JWT expiry"},
		{"admin without secret in production", func(c *Config) {
			c.Environment = "production"
			c.Security.AdminAPIKeyHash = "$2a$10$hash"
		}, "JWT_SECRET"},
		{"archive without bucket", func(c *Config) { c.Archive.Enabled = true }, "archive bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "arb", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=arb sslmode=disable", cfg.DSN())

	cfg.DatabaseURL = "postgres://u:p@db/arb"
	assert.Equal(t, "postgres://u:p@db/arb", cfg.DSN())
}

func TestLoadWatchlist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watchlist.toml")
	content := `
[arbitrage]
"btc-usdt" = ["Binance", " okx "]

[market_view]
"ETH-USDT" = ["bybit"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	wl, err := LoadWatchlist(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"binance", "okx"}, wl.Arbitrage["BTC-USDT"])
	assert.Equal(t, []string{"bybit"}, wl.MarketView["ETH-USDT"])
}

func TestLoadWatchlist_EmptyPathAndMissingFile(t *testing.T) {
	wl, err := LoadWatchlist("")
	require.NoError(t, err)
	assert.Empty(t, wl.Arbitrage)
	assert.Empty(t, wl.MarketView)

	_, err = LoadWatchlist(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
