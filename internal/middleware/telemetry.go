// Package middleware provides HTTP middleware components for authentication,
// authorization and telemetry.
package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// skipTelemetry lists paths whose spans are not enriched.
var skipTelemetry = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// TelemetryMiddleware enriches the server span opened by otelgin with client
// and response details. It does nothing when no span is recording.
func TelemetryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() || skipTelemetry[c.Request.URL.Path] {
			c.Next()
			return
		}

		span.SetAttributes(
			attribute.String("http.client_ip", c.ClientIP()),
			attribute.String("http.user_agent", c.Request.UserAgent()),
		)
		if routePath := c.FullPath(); routePath != "" {
			span.SetAttributes(attribute.String("http.route", routePath))
		}

		start := time.Now()
		c.Next()

		statusCode := c.Writer.Status()
		span.SetAttributes(
			attribute.Int64("http.response.time_ms", time.Since(start).Milliseconds()),
			attribute.Int64("http.response.size_bytes", int64(c.Writer.Size())),
		)
		if subject, ok := c.Get("admin_subject"); ok {
			span.SetAttributes(attribute.String("arbwatch.admin_subject", fmt.Sprint(subject)))
		}
		if statusCode >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", statusCode))
		}
		if contentType := c.Writer.Header().Get("Content-Type"); contentType != "" {
			span.SetAttributes(attribute.String("http.response.header.content_type", contentType))
		}
	}
}

// RecordError records an error on the current span
func RecordError(c *gin.Context, err error, description string) {
	span := trace.SpanFromContext(c.Request.Context())
	if span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, description)
	}
}
