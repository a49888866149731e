package observe

import (
	"context"
	"time"
)

// Outcome is what a wrapped check evaluation reports back.
type Outcome struct {
	Status   string        // final status name, e.g. "success" or "error"
	Duration time.Duration // evaluation time as measured by the caller
	Err      error         // adapter, probe or policy error, if any
}

// CheckFunc evaluates one check on one target.
type CheckFunc func(ctx context.Context, meta CheckMeta) Outcome

// Middleware wraps check evaluation with tracing, metrics and logging.
//
// Contract:
//   - Concurrency: Wrap returns a CheckFunc that is safe for concurrent use.
//   - Context: the wrapped function receives a context carrying the check span.
//   - Errors: the Outcome is returned unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a Middleware. Nil components are replaced with no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = NewNoopTracer()
	}
	if metrics == nil {
		metrics = NewNoopMetrics()
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{tracer: tracer, metrics: metrics, logger: logger}
}

// NopMiddleware returns a Middleware that records nothing.
func NopMiddleware() *Middleware {
	return NewMiddleware(nil, nil, nil)
}

// Metrics returns the metrics recorder used by the middleware.
func (m *Middleware) Metrics() Metrics { return m.metrics }

// Wrap wraps fn with a span, check metrics and a debug log line.
func (m *Middleware) Wrap(fn CheckFunc) CheckFunc {
	return func(ctx context.Context, meta CheckMeta) Outcome {
		ctx, span := m.tracer.StartSpan(ctx, meta)
		out := fn(ctx, meta)
		m.tracer.EndSpan(span, out.Status, out.Err)

		m.metrics.RecordCheck(ctx, meta, out.Status, out.Duration)

		fields := []Field{
			{Key: "status", Value: out.Status},
			{Key: "duration_ms", Value: out.Duration.Milliseconds()},
		}
		if out.Err != nil {
			fields = append(fields, Field{Key: "error", Value: out.Err.Error()})
		}
		m.logger.WithCheck(meta).Debug(ctx, "check evaluated", fields...)

		return out
	}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}
