package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func TestInitTelemetry_Disabled(t *testing.T) {
	provider, err := InitTelemetry(context.Background(), TelemetryConfig{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestInitTelemetry_StdoutExporter(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	provider, err := InitTelemetry(context.Background(), TelemetryConfig{
		Enabled:  true,
		Exporter: "stdout",
	})
	require.NoError(t, err)
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestInitTelemetry_UnknownExporter(t *testing.T) {
	_, err := InitTelemetry(context.Background(), TelemetryConfig{Enabled: true, Exporter: "zipkin"})
	assert.Error(t, err)
}

func TestNilProviderShutdown(t *testing.T) {
	var p *Provider
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestBusinessTracer_Spans(t *testing.T) {
	recorder := withRecorder(t)
	bt := NewBusinessTracer()

	_, span := bt.TraceArbitrageDetection(context.Background(), "BTC-USDT", []string{"binance", "okx"})
	bt.RecordOpportunityCount(span, 2, 1)
	span.End()

	_, span = bt.TraceCBBOAggregation(context.Background(), "ETH-USDT", []string{"bybit"})
	bt.RecordError(span, errors.New("no quotes"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "arbitrage.detection", ended[0].Name())
	assert.Equal(t, "cbbo.aggregation", ended[1].Name())
	assert.Equal(t, codes.Error, ended[1].Status().Code)

	attrs := map[string]interface{}{}
	for _, kv := range ended[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, "BTC-USDT", attrs["symbol"])
	assert.Equal(t, "binance,okx", attrs["exchanges"])
	assert.Equal(t, int64(1), attrs["opportunities.count"])
}

func TestBusinessTracer_RecordNilError(t *testing.T) {
	recorder := withRecorder(t)
	bt := NewBusinessTracer()

	_, span := bt.TraceSyntheticDetection(context.Background(), "BTC", []string{"USDT", "USDC"})
	bt.RecordError(span, nil)
	span.End()

	require.Len(t, recorder.Ended(), 1)
	assert.Equal(t, codes.Unset, recorder.Ended()[0].Status().Code)
}
