package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// StandardLogger provides a standardized logging interface
type StandardLogger struct {
	logger   *slog.Logger
	shutdown func(context.Context) error
}

// NewStandardLogger creates a JSON logger writing to stdout
func NewStandardLogger(logLevel string, environment string) *StandardLogger {
	return NewStandardLoggerWithWriter(os.Stdout, logLevel).withEnvironment(environment)
}

// NewStandardLoggerWithWriter creates a JSON logger writing to w
func NewStandardLoggerWithWriter(w io.Writer, logLevel string) *StandardLogger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: getSlogLevel(logLevel),
	}))
	return &StandardLogger{logger: logger}
}

// NewStandardOTLPLogger creates a standardized logger exporting records over OTLP.
// It falls back to the stdout JSON logger if the exporter cannot be built.
func NewStandardOTLPLogger(config OTLPConfig) *StandardLogger {
	otlpLogger, err := NewOTLPLogger(config)
	if err != nil {
		fallback := NewStandardLogger(config.LogLevel, config.Environment)
		fallback.logger.Warn("OTLP logging unavailable, using stdout", "error", err.Error())
		return fallback
	}
	return &StandardLogger{
		logger:   otlpLogger.Logger(),
		shutdown: otlpLogger.Shutdown,
	}
}

func (l *StandardLogger) withEnvironment(environment string) *StandardLogger {
	if environment != "" {
		l.logger = l.logger.With("environment", environment)
	}
	return l
}

// WithService creates a logger with service context
func (l *StandardLogger) WithService(serviceName string) *slog.Logger {
	return l.logger.With("service", serviceName)
}

// WithComponent creates a logger with component context
func (l *StandardLogger) WithComponent(componentName string) *slog.Logger {
	return l.logger.With("component", componentName)
}

// WithExchange creates a logger with exchange context
func (l *StandardLogger) WithExchange(exchange string) *slog.Logger {
	return l.logger.With("exchange", exchange)
}

// WithSymbol creates a logger with symbol context
func (l *StandardLogger) WithSymbol(symbol string) *slog.Logger {
	return l.logger.With("symbol", symbol)
}

// WithError creates a logger with error context
func (l *StandardLogger) WithError(err error) *slog.Logger {
	if err == nil {
		return l.logger
	}
	return l.logger.With("error", err.Error())
}

// LogStartup logs application startup information
func (l *StandardLogger) LogStartup(serviceName string, version string, port int) {
	l.logger.Info("Service starting",
		"event", "startup",
		"service", serviceName,
		"version", version,
		"port", port,
	)
}

// LogShutdown logs application shutdown information
func (l *StandardLogger) LogShutdown(serviceName string, reason string) {
	l.logger.Info("Service shutting down",
		"event", "shutdown",
		"service", serviceName,
		"reason", reason,
	)
}

// LogBusinessEvent logs business events in a standardized format
func (l *StandardLogger) LogBusinessEvent(eventType string, details map[string]interface{}) {
	fields := []interface{}{
		"event", "business_event",
		"type", eventType,
	}

	for k, v := range details {
		fields = append(fields, k, v)
	}

	l.logger.Info("Business event", fields...)
}

// Logger returns the underlying *slog.Logger
func (l *StandardLogger) Logger() *slog.Logger {
	return l.logger
}

// Shutdown flushes the OTLP exporter when one is attached.
func (l *StandardLogger) Shutdown(ctx context.Context) error {
	if l.shutdown == nil {
		return nil
	}
	return l.shutdown(ctx)
}

// NewServiceLogger builds the logrus logger handed to long-running services.
func NewServiceLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(ParseLogrusLevel(level))
	return logger
}

// getSlogLevel converts string level to slog.Level
func getSlogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLogrusLevel converts string level to logrus.Level
func ParseLogrusLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
