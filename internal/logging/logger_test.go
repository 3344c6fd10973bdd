package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otellog "go.opentelemetry.io/otel/log"
)

func decodeLastLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestStandardLogger_ContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStandardLoggerWithWriter(&buf, "debug")

	logger.WithExchange("binance").Info("quote fetched")
	entry := decodeLastLine(t, &buf)
	assert.Equal(t, "binance", entry["exchange"])
	assert.Equal(t, "quote fetched", entry["msg"])

	logger.WithSymbol("BTC-USDT").Warn("no data")
	entry = decodeLastLine(t, &buf)
	assert.Equal(t, "BTC-USDT", entry["symbol"])
	assert.Equal(t, "WARN", entry["level"])

	logger.WithError(errors.New("boom")).Error("failed")
	entry = decodeLastLine(t, &buf)
	assert.Equal(t, "boom", entry["error"])

	logger.WithService("arbwatch").Info("svc")
	assert.Equal(t, "arbwatch", decodeLastLine(t, &buf)["service"])

	logger.WithComponent("scheduler").Info("cmp")
	assert.Equal(t, "scheduler", decodeLastLine(t, &buf)["component"])
}

func TestStandardLogger_WithNilError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStandardLoggerWithWriter(&buf, "info")

	logger.WithError(nil).Info("still logs")
	entry := decodeLastLine(t, &buf)
	_, hasError := entry["error"]
	assert.False(t, hasError)
}

func TestStandardLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStandardLoggerWithWriter(&buf, "warn")

	logger.Logger().Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Logger().Warn("kept")
	assert.NotZero(t, buf.Len())
}

func TestStandardLogger_LifecycleEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStandardLoggerWithWriter(&buf, "info")

	logger.LogStartup("arbwatch", "1.0.0", 8080)
	entry := decodeLastLine(t, &buf)
	assert.Equal(t, "startup", entry["event"])
	assert.Equal(t, float64(8080), entry["port"])

	logger.LogShutdown("arbwatch", "signal")
	entry = decodeLastLine(t, &buf)
	assert.Equal(t, "shutdown", entry["event"])
	assert.Equal(t, "signal", entry["reason"])

	logger.LogBusinessEvent("arbitrage_opportunity", map[string]interface{}{
		"symbol":            "BTC-USDT",
		"profit_percentage": 0.75,
	})
	entry = decodeLastLine(t, &buf)
	assert.Equal(t, "business_event", entry["event"])
	assert.Equal(t, "arbitrage_opportunity", entry["type"])
	assert.Equal(t, "BTC-USDT", entry["symbol"])
	assert.Equal(t, 0.75, entry["profit_percentage"])
}

func TestStandardLogger_ShutdownWithoutExporter(t *testing.T) {
	logger := NewStandardLoggerWithWriter(&bytes.Buffer{}, "info")
	assert.NoError(t, logger.Shutdown(context.Background()))
}

func TestParseLogrusLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLogrusLevel("DEBUG"))
	assert.Equal(t, logrus.WarnLevel, ParseLogrusLevel("warning"))
	assert.Equal(t, logrus.ErrorLevel, ParseLogrusLevel("error"))
	assert.Equal(t, logrus.InfoLevel, ParseLogrusLevel("unknown"))
}

func TestNewServiceLogger(t *testing.T) {
	logger := NewServiceLogger("debug")
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	_, ok := logger.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)
}

func TestConvertSlogLevelToSeverity(t *testing.T) {
	assert.Equal(t, otellog.SeverityDebug, convertSlogLevelToSeverity(slog.LevelDebug))
	assert.Equal(t, otellog.SeverityInfo, convertSlogLevelToSeverity(slog.LevelInfo))
	assert.Equal(t, otellog.SeverityWarn, convertSlogLevelToSeverity(slog.LevelWarn))
	assert.Equal(t, otellog.SeverityError, convertSlogLevelToSeverity(slog.LevelError))
}

// mockOTLPLogger records emitted log records
type mockOTLPLogger struct {
	otellog.Logger
	records []otellog.Record
}

func (m *mockOTLPLogger) Enabled(ctx context.Context, params otellog.EnabledParameters) bool {
	return true
}

func (m *mockOTLPLogger) Emit(ctx context.Context, record otellog.Record) {
	m.records = append(m.records, record)
}

func TestOTLPHandler_EmitsAttributes(t *testing.T) {
	mock := &mockOTLPLogger{}
	logger := slog.New(NewOTLPHandler(mock, slog.LevelInfo)).With("exchange", "okx")

	logger.Debug("filtered")
	logger.Info("quote", "bid", 100.5, "count", 3)

	require.Len(t, mock.records, 1)
	record := mock.records[0]
	assert.Equal(t, "quote", record.Body().AsString())
	assert.Equal(t, otellog.SeverityInfo, record.Severity())

	attrs := map[string]otellog.Value{}
	record.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value
		return true
	})
	assert.Equal(t, "okx", attrs["exchange"].AsString())
	assert.Equal(t, 100.5, attrs["bid"].AsFloat64())
	assert.Equal(t, int64(3), attrs["count"].AsInt64())
}

func TestOTLPHandler_GroupPrefixesKeys(t *testing.T) {
	mock := &mockOTLPLogger{}
	logger := slog.New(NewOTLPHandler(mock, slog.LevelDebug)).WithGroup("cbbo")

	logger.Info("view", "symbol", "BTC-USDT")

	require.Len(t, mock.records, 1)
	found := false
	mock.records[0].WalkAttributes(func(kv otellog.KeyValue) bool {
		if kv.Key == "cbbo.symbol" {
			found = true
		}
		return true
	})
	assert.True(t, found)
	assert.WithinDuration(t, time.Now(), mock.records[0].ObservedTimestamp(), time.Minute)
}
