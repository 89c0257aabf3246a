package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records cache and execution metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordExecution records a command execution with duration and error status.
	RecordExecution(ctx context.Context, meta CommandMeta, duration time.Duration, err error)

	// RecordLookup records a cache lookup outcome.
	RecordLookup(ctx context.Context, hit bool)

	// RecordClassification records a classification decision by tier and source.
	RecordClassification(ctx context.Context, tier, source string)

	// RecordEviction records evicted cache entries.
	RecordEviction(ctx context.Context, count int64)

	// RecordDuplicateSignal records one emitted duplicate signal.
	RecordDuplicateSignal(ctx context.Context, duplicateCount int)

	// RecordFlush records one rule file flush attempt.
	RecordFlush(ctx context.Context, err error)
}

type metricsImpl struct {
	meter          metric.Meter
	execTotal      metric.Int64Counter
	execErrors     metric.Int64Counter
	execDuration   metric.Float64Histogram
	lookupTotal    metric.Int64Counter
	classifyTotal  metric.Int64Counter
	evictions      metric.Int64Counter
	dupSignals     metric.Int64Counter
	flushTotal     metric.Int64Counter
	flushFailures  metric.Int64Counter
}

// NewMetrics creates a Metrics instance with the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	execTotal, err := meter.Int64Counter(
		"shellcache.exec.total",
		metric.WithDescription("Total number of command executions"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	execErrors, err := meter.Int64Counter(
		"shellcache.exec.errors",
		metric.WithDescription("Total number of command execution errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	execDuration, err := meter.Float64Histogram(
		"shellcache.exec.duration_ms",
		metric.WithDescription("Command execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	lookupTotal, err := meter.Int64Counter(
		"shellcache.lookup.total",
		metric.WithDescription("Total number of cache lookups by outcome"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	classifyTotal, err := meter.Int64Counter(
		"shellcache.classify.total",
		metric.WithDescription("Total number of classification decisions"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	evictions, err := meter.Int64Counter(
		"shellcache.cache.evictions",
		metric.WithDescription("Total number of evicted cache entries"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	dupSignals, err := meter.Int64Counter(
		"shellcache.duplicates.signals",
		metric.WithDescription("Total number of duplicate execution signals"),
		metric.WithUnit("{signal}"),
	)
	if err != nil {
		return nil, err
	}

	flushTotal, err := meter.Int64Counter(
		"shellcache.rules.flushes",
		metric.WithDescription("Total number of rule file flush attempts"),
		metric.WithUnit("{flush}"),
	)
	if err != nil {
		return nil, err
	}

	flushFailures, err := meter.Int64Counter(
		"shellcache.rules.flush_failures",
		metric.WithDescription("Total number of failed rule file flushes"),
		metric.WithUnit("{flush}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		meter:         meter,
		execTotal:     execTotal,
		execErrors:    execErrors,
		execDuration:  execDuration,
		lookupTotal:   lookupTotal,
		classifyTotal: classifyTotal,
		evictions:     evictions,
		dupSignals:    dupSignals,
		flushTotal:    flushTotal,
		flushFailures: flushFailures,
	}, nil
}

func (m *metricsImpl) RecordExecution(ctx context.Context, meta CommandMeta, duration time.Duration, err error) {
	opt := metric.WithAttributes(
		attribute.String("shell.span", meta.SpanName()),
	)

	m.execTotal.Add(ctx, 1, opt)
	if err != nil {
		m.execErrors.Add(ctx, 1, opt)
	}
	m.execDuration.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordLookup(ctx context.Context, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.lookupTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

func (m *metricsImpl) RecordClassification(ctx context.Context, tier, source string) {
	m.classifyTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tier", tier),
		attribute.String("source", source),
	))
}

func (m *metricsImpl) RecordEviction(ctx context.Context, count int64) {
	if count > 0 {
		m.evictions.Add(ctx, count)
	}
}

func (m *metricsImpl) RecordDuplicateSignal(ctx context.Context, duplicateCount int) {
	m.dupSignals.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("duplicates", duplicateCount),
	))
}

func (m *metricsImpl) RecordFlush(ctx context.Context, err error) {
	m.flushTotal.Add(ctx, 1)
	if err != nil {
		m.flushFailures.Add(ctx, 1)
	}
}

// noopMetrics is a metrics implementation that does nothing.
type noopMetrics struct{}

// NopMetrics returns a Metrics that discards everything.
func NopMetrics() Metrics { return &noopMetrics{} }

func (m *noopMetrics) RecordExecution(ctx context.Context, meta CommandMeta, duration time.Duration, err error) {
}
func (m *noopMetrics) RecordLookup(ctx context.Context, hit bool)                  {}
func (m *noopMetrics) RecordClassification(ctx context.Context, tier, source string) {}
func (m *noopMetrics) RecordEviction(ctx context.Context, count int64)               {}
func (m *noopMetrics) RecordDuplicateSignal(ctx context.Context, duplicateCount int) {}
func (m *noopMetrics) RecordFlush(ctx context.Context, err error)                  {}
