package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// CheckMeta identifies one check evaluation on one target for telemetry.
type CheckMeta struct {
	Group    string // group code (required)
	Check    string // check ID within the group (required)
	Name     string // display name (optional)
	TargetID string // target identifier (required)
	Instance string // logical instance name (optional)
	Role     string // target role mode (optional)
}

// SpanName returns the deterministic span name for this check.
// Format: inspect.check.<group>.<check>
func (m CheckMeta) SpanName() string {
	return "inspect.check." + m.Group + "." + m.Check
}

// Tracer wraps OpenTelemetry tracing with check-specific span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for one check evaluation.
	StartSpan(ctx context.Context, meta CheckMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording the check status and any error.
	EndSpan(span trace.Span, status string, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	if t == nil {
		return NewNoopTracer()
	}
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta CheckMeta) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("check.group", meta.Group),
		attribute.String("check.id", meta.Check),
		attribute.String("target.id", meta.TargetID),
	}
	if meta.Name != "" {
		attrs = append(attrs, attribute.String("check.name", meta.Name))
	}
	if meta.Instance != "" {
		attrs = append(attrs, attribute.String("target.instance", meta.Instance))
	}
	if meta.Role != "" {
		attrs = append(attrs, attribute.String("target.role", meta.Role))
	}

	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpan marks the span as errored only when err is set. A failed check is
// a successful evaluation and keeps an Ok span status.
func (t *tracerImpl) EndSpan(span trace.Span, status string, err error) {
	if status != "" {
		span.SetAttributes(attribute.String("check.status", status))
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

// NewNoopTracer creates a tracer that records nothing.
func NewNoopTracer() Tracer {
	return &noopTracer{noop: tracenoop.NewTracerProvider().Tracer("noop")}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta CheckMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, _ string, _ error) {
	span.End()
}
