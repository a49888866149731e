package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records check evaluation metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordCheck records one check evaluation with its final status.
	RecordCheck(ctx context.Context, meta CheckMeta, status string, duration time.Duration)

	// RecordSlowCheck records an evaluation that crossed a latency tier.
	RecordSlowCheck(ctx context.Context, meta CheckMeta, tier string)
}

type metricsImpl struct {
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	slowCount    metric.Int64Counter
	durationHist metric.Float64Histogram
}

// NewMetrics creates the check instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	totalCount, err := meter.Int64Counter(
		"inspect.check.total",
		metric.WithDescription("Total number of check evaluations"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"inspect.check.errors",
		metric.WithDescription("Check evaluations that ended in error"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, err
	}

	slowCount, err := meter.Int64Counter(
		"inspect.check.slow",
		metric.WithDescription("Check evaluations that crossed a latency tier"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"inspect.check.duration_ms",
		metric.WithDescription("Check evaluation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		totalCount:   totalCount,
		errorCount:   errorCount,
		slowCount:    slowCount,
		durationHist: durationHist,
	}, nil
}

func baseAttrs(meta CheckMeta) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("check.group", meta.Group),
		attribute.String("check.id", meta.Check),
		attribute.String("target.instance", meta.Instance),
	}
}

func (m *metricsImpl) RecordCheck(ctx context.Context, meta CheckMeta, status string, duration time.Duration) {
	attrs := append(baseAttrs(meta), attribute.String("check.status", status))
	opt := metric.WithAttributes(attrs...)

	m.totalCount.Add(ctx, 1, opt)
	if status == "error" {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordSlowCheck(ctx context.Context, meta CheckMeta, tier string) {
	attrs := append(baseAttrs(meta), attribute.String("latency.tier", tier))
	m.slowCount.Add(ctx, 1, metric.WithAttributes(attrs...))
}

type noopMetrics struct{}

// NewNoopMetrics returns metrics that record nothing.
func NewNoopMetrics() Metrics { return noopMetrics{} }

func (noopMetrics) RecordCheck(context.Context, CheckMeta, string, time.Duration) {}

func (noopMetrics) RecordSlowCheck(context.Context, CheckMeta, string) {}
