package database

import (
	"context"
	"strings"

	"github.com/irfndi/celebrum-arbwatch/internal/telemetry"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracedDB wraps a DatabasePool and opens a span around every statement.
type TracedDB struct {
	pool   DatabasePool
	tracer trace.Tracer
}

// NewTracedDB wraps pool with tracing.
func NewTracedDB(pool DatabasePool) *TracedDB {
	return &TracedDB{
		pool:   pool,
		tracer: telemetry.Tracer("database"),
	}
}

// Query executes a query that returns rows.
func (db *TracedDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	ctx, span := db.start(ctx, "db.query", sql)
	defer span.End()

	rows, err := db.pool.Query(ctx, sql, args...)
	recordSpanError(span, err)
	return rows, err
}

// QueryRow executes a query that returns at most one row. Scan errors are
// not visible to the span.
func (db *TracedDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	ctx, span := db.start(ctx, "db.query_row", sql)
	defer span.End()
	return db.pool.QueryRow(ctx, sql, args...)
}

// Exec executes a statement without returning rows.
func (db *TracedDB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	ctx, span := db.start(ctx, "db.exec", sql)
	defer span.End()

	tag, err := db.pool.Exec(ctx, sql, args...)
	if err == nil {
		span.SetAttributes(attribute.Int64("db.rows_affected", tag.RowsAffected()))
	}
	recordSpanError(span, err)
	return tag, err
}

func (db *TracedDB) start(ctx context.Context, name, sql string) (context.Context, trace.Span) {
	return db.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", operationName(sql)),
		),
	)
}

// operationName returns the leading SQL keyword, e.g. SELECT.
func operationName(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
