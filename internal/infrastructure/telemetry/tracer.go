package telemetry

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AppTracer wraps an OpenTelemetry tracer with span helpers for the
// monitor's common operations.
type AppTracer struct {
	tracer trace.Tracer
	name   string
}

// NewAppTracer creates an application tracer with the given name.
func NewAppTracer(name string) *AppTracer {
	return &AppTracer{
		tracer: otel.Tracer(name),
		name:   name,
	}
}

// StartSpan starts a span with the given name.
func (t *AppTracer) StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, spanName, opts...)
}

// StartPipelineSpan starts a span covering one detection run for an area.
func (t *AppTracer) StartPipelineSpan(ctx context.Context, areaID uuid.UUID) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "pipeline.process_area", trace.WithAttributes(
		attribute.String("area.id", areaID.String()),
		attribute.String("component", "pipeline"),
	))
}

// StartHTTPSpan starts a server span for an HTTP request.
func (t *AppTracer) StartHTTPSpan(ctx context.Context, method, path string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, fmt.Sprintf("%s %s", method, path), trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.target", path),
		attribute.String("component", "http"),
	), trace.WithSpanKind(trace.SpanKindServer))
}

// StartDatabaseSpan starts a client span for a database operation.
func (t *AppTracer) StartDatabaseSpan(ctx context.Context, operation, table string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, fmt.Sprintf("db.%s %s", operation, table), trace.WithAttributes(
		attribute.String("db.operation", operation),
		attribute.String("db.sql.table", table),
		attribute.String("db.system", "postgresql"),
		attribute.String("component", "database"),
	), trace.WithSpanKind(trace.SpanKindClient))
}

// StartImagerySpan starts a client span for an imagery provider call.
func (t *AppTracer) StartImagerySpan(ctx context.Context, areaID uuid.UUID, operation string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, fmt.Sprintf("imagery.%s", operation), trace.WithAttributes(
		attribute.String("area.id", areaID.String()),
		attribute.String("component", "imagery"),
	), trace.WithSpanKind(trace.SpanKindClient))
}

// TraceID returns the span's trace ID, or "" when absent.
func TraceID(span trace.Span) string {
	if sc := span.SpanContext(); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// WithSpanError records an error and fails the span.
func WithSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
