package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment   string            `mapstructure:"environment"`
	LogLevel      string            `mapstructure:"log_level"`
	WatchlistFile string            `mapstructure:"watchlist_file"`
	Server        ServerConfig      `mapstructure:"server"`
	Database      DatabaseConfig    `mapstructure:"database"`
	Redis         RedisConfig       `mapstructure:"redis"`
	CCXT          CCXTConfig        `mapstructure:"ccxt"`
	Telegram      TelegramConfig    `mapstructure:"telegram"`
	Arbitrage     ArbitrageConfig   `mapstructure:"arbitrage"`
	MarketView    MarketViewConfig  `mapstructure:"market_view"`
	Persistence   PersistenceConfig `mapstructure:"persistence"`
	Statistics    StatisticsConfig  `mapstructure:"statistics"`
	Archive       ArchiveConfig     `mapstructure:"archive"`
	Telemetry     TelemetryConfig   `mapstructure:"telemetry"`
	Security      SecurityConfig    `mapstructure:"security"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	DatabaseURL string `mapstructure:"database_url"`
	MaxConns    int32  `mapstructure:"max_conns"`
}

// DSN returns the connection string, preferring an explicit database URL.
func (c DatabaseConfig) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CCXTConfig struct {
	ServiceURL     string        `mapstructure:"service_url"`
	Timeout        int           `mapstructure:"timeout"`
	SymbolCacheTTL time.Duration `mapstructure:"symbol_cache_ttl"`
}

type TelegramConfig struct {
	BotToken     string  `mapstructure:"bot_token"`
	WebhookURL   string  `mapstructure:"webhook_url"`
	AlertChatIDs []int64 `mapstructure:"alert_chat_ids"`
	RateLimitMs  int     `mapstructure:"rate_limit_ms"`
}

// ArbitrageConfig controls detection thresholds and the arbitrage polling loop
type ArbitrageConfig struct {
	MinProfitPercentage float64       `mapstructure:"min_profit_percentage"`
	MinProfitAbsolute   float64       `mapstructure:"min_profit_absolute"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	ErrorBackoff        time.Duration `mapstructure:"error_backoff"`
	StopTimeout         time.Duration `mapstructure:"stop_timeout"`
	HistorySize         int           `mapstructure:"history_size"`
	SupportedExchanges  []string      `mapstructure:"supported_exchanges"`
}

type MarketViewConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	AlertInterval time.Duration `mapstructure:"alert_interval"`
}

type PersistenceConfig struct {
	File             string        `mapstructure:"file"`
	AutoSaveInterval time.Duration `mapstructure:"auto_save_interval"`
}

// StatisticsConfig selects where emitted opportunities are recorded
type StatisticsConfig struct {
	Backend        string `mapstructure:"backend"`
	RetentionHours int    `mapstructure:"retention_hours"`
}

type ArchiveConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Endpoint       string `mapstructure:"endpoint"`
	Region         string `mapstructure:"region"`
	Bucket         string `mapstructure:"bucket"`
	AccessKey      string `mapstructure:"access_key" json:"-"`
	SecretKey      string `mapstructure:"secret_key" json:"-"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
	Prefix         string `mapstructure:"prefix"`
}

type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Exporter     string `mapstructure:"exporter"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

type SecurityConfig struct {
	AdminAPIKeyHash string `mapstructure:"admin_api_key_hash" json:"-"`
	JWTSecret       string `mapstructure:"jwt_secret" json:"-"`
	JWTExpiry       string `mapstructure:"jwt_expiry"`
}

var validStatisticsBackends = map[string]bool{
	"memory":   true,
	"redis":    true,
	"postgres": true,
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// Set default values
	setDefaults(v)

	// Enable environment variable support
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind TELEGRAM_BOT_TOKEN environment variable: %w", err)
	}
	if err := v.BindEnv("security.jwt_secret", "JWT_SECRET"); err != nil {
		return nil, fmt.Errorf("failed to bind JWT_SECRET environment variable: %w", err)
	}
	if err := v.BindEnv("security.admin_api_key_hash", "ADMIN_API_KEY_HASH"); err != nil {
		return nil, fmt.Errorf("failed to bind ADMIN_API_KEY_HASH environment variable: %w", err)
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Normalize environment to lowercase for consistent comparison
	config.Environment = strings.ToLower(config.Environment)
	config.Statistics.Backend = strings.ToLower(config.Statistics.Backend)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks cross-field constraints that defaults cannot guarantee.
func (c *Config) Validate() error {
	if c.Arbitrage.MinProfitPercentage < 0 || c.Arbitrage.MinProfitAbsolute < 0 {
		return errors.New("arbitrage thresholds must be non-negative")
	}
	if c.Arbitrage.HistorySize <= 0 {
		return fmt.Errorf("arbitrage history size must be positive, got %d", c.Arbitrage.HistorySize)
	}
	if c.Arbitrage.PollInterval <= 0 || c.Arbitrage.ErrorBackoff <= 0 || c.Arbitrage.StopTimeout <= 0 {
		return errors.New("arbitrage poll interval, error backoff and stop timeout must be positive")
	}
	if c.MarketView.PollInterval <= 0 {
		return errors.New("market view poll interval must be positive")
	}
	if len(c.Arbitrage.SupportedExchanges) == 0 {
		return errors.New("at least one supported exchange is required")
	}
	if !validStatisticsBackends[c.Statistics.Backend] {
		return fmt.Errorf("unknown statistics backend %q", c.Statistics.Backend)
	}
	if c.Security.JWTExpiry != "" {
		if _, err := time.ParseDuration(c.Security.JWTExpiry); err != nil {
			return fmt.Errorf("invalid JWT expiry duration: %w", err)
		}
	}
	if c.Environment != "development" && c.Security.AdminAPIKeyHash != "" && c.Security.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required when admin access is enabled outside development")
	}
	if c.Archive.Enabled && (c.Archive.Bucket == "" || c.Archive.Region == "") {
		return errors.New("archive bucket and region are required when archiving is enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Environment
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("watchlist_file", "")

	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Set database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "celebrum_arbwatch")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.database_url", "")
	v.SetDefault("database.max_conns", 10)

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// CCXT
	v.SetDefault("ccxt.service_url", "http://localhost:3001")
	v.SetDefault("ccxt.timeout", 10)
	v.SetDefault("ccxt.symbol_cache_ttl", "1h")

	// Telegram
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.webhook_url", "")
	v.SetDefault("telegram.alert_chat_ids", []int64{})
	v.SetDefault("telegram.rate_limit_ms", 1000)

	// Arbitrage
	v.SetDefault("arbitrage.min_profit_percentage", 0.5)
	v.SetDefault("arbitrage.min_profit_absolute", 1.0)
	v.SetDefault("arbitrage.poll_interval", "1s")
	v.SetDefault("arbitrage.error_backoff", "5s")
	v.SetDefault("arbitrage.stop_timeout", "5s")
	v.SetDefault("arbitrage.history_size", 1000)
	v.SetDefault("arbitrage.supported_exchanges", []string{"binance", "okx", "bybit", "deribit"})

	// Market view
	v.SetDefault("market_view.poll_interval", "1s")
	v.SetDefault("market_view.alert_interval", "60s")

	// Persistence
	v.SetDefault("persistence.file", "persistence_data.json")
	v.SetDefault("persistence.auto_save_interval", "30s")

	// Statistics
	v.SetDefault("statistics.backend", "memory")
	v.SetDefault("statistics.retention_hours", 168)

	// Archive
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.region", "")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.access_key", "")
	v.SetDefault("archive.secret_key", "")
	v.SetDefault("archive.force_path_style", false)
	v.SetDefault("archive.prefix", "arbwatch/state")

	// Telemetry
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.exporter", "otlp")
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "celebrum-arbwatch")

	// Security
	v.SetDefault("security.admin_api_key_hash", "")
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.jwt_expiry", "12h")
}
