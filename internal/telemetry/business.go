package telemetry

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BusinessTracer wraps span creation for detection and aggregation work.
type BusinessTracer struct {
	tracer trace.Tracer
}

// NewBusinessTracer creates a new instance of BusinessTracer.
func NewBusinessTracer() *BusinessTracer {
	return &BusinessTracer{tracer: Tracer("business")}
}

// TraceArbitrageDetection starts a span covering one cross-exchange scan.
//
// Parameters:
//   - ctx: The context to attach the span to.
//   - symbol: The trading symbol being analyzed.
//   - exchanges: A list of exchanges involved in the detection.
//
// Returns:
//   - A context containing the new span.
//   - The created span.
func (bt *BusinessTracer) TraceArbitrageDetection(ctx context.Context, symbol string, exchanges []string) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, "arbitrage.detection", trace.WithAttributes(
		attribute.String("symbol", symbol),
		attribute.String("exchanges", strings.Join(exchanges, ",")),
	))
}

// TraceSyntheticDetection starts a span covering one cross-instrument scan.
func (bt *BusinessTracer) TraceSyntheticDetection(ctx context.Context, baseAsset string, quoteAssets []string) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, "arbitrage.synthetic_detection", trace.WithAttributes(
		attribute.String("base_asset", baseAsset),
		attribute.String("quote_assets", strings.Join(quoteAssets, ",")),
	))
}

// TraceCBBOAggregation starts a span covering one consolidated view computation.
func (bt *BusinessTracer) TraceCBBOAggregation(ctx context.Context, symbol string, exchanges []string) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, "cbbo.aggregation", trace.WithAttributes(
		attribute.String("symbol", symbol),
		attribute.String("exchanges", strings.Join(exchanges, ",")),
	))
}

// RecordOpportunityCount annotates a detection span with its result size.
func (bt *BusinessTracer) RecordOpportunityCount(span trace.Span, quotes, opportunities int) {
	span.SetAttributes(
		attribute.Int("quotes.valid", quotes),
		attribute.Int("opportunities.count", opportunities),
	)
}

// RecordError marks the span as failed.
func (bt *BusinessTracer) RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
