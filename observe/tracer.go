package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// CommandMeta identifies a command for telemetry purposes. The raw
// command line is an attribute; spans are named by the first word so
// cardinality stays bounded.
type CommandMeta struct {
	Command  string // full command line (required)
	Cwd      string // working directory (optional)
	CacheKey string // cache key, when already computed (optional)
}

// SpanName returns the deterministic span name for this command.
// Format: shell.exec.<program>
func (m CommandMeta) SpanName() string {
	program := m.Command
	for i := 0; i < len(program); i++ {
		if program[i] == ' ' || program[i] == '\t' {
			program = program[:i]
			break
		}
	}
	if program == "" {
		program = "unknown"
	}
	return "shell.exec." + program
}

// Tracer wraps OpenTelemetry tracing with command-scoped span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for a command execution.
	StartSpan(ctx context.Context, meta CommandMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer wrapping the given OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

// StartSpan starts a new span with command metadata as attributes.
func (t *tracerImpl) StartSpan(ctx context.Context, meta CommandMeta) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("shell.command", meta.Command),
		attribute.Bool("shell.error", false), // updated in EndSpan on error
	}
	if meta.Cwd != "" {
		attrs = append(attrs, attribute.String("shell.cwd", meta.Cwd))
	}
	if meta.CacheKey != "" {
		attrs = append(attrs, attribute.String("shell.cache_key", meta.CacheKey))
	}

	ctx, span := t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	return ctx, span
}

// EndSpan ends the span and records the error status if present.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("shell.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// noopTracer is a tracer that does nothing.
type noopTracer struct {
	noop trace.Tracer
}

// NewNoopTracer creates a no-op tracer.
func NewNoopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta CommandMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, err error) {
	span.End()
}
