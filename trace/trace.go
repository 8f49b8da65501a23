// Package trace provides tracing instrumentation for sessions and commands.
package trace

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/grafana/xk6-marionette/log"
)

const tracerName = "marionette"

// liveSpan represents the active span of a session.
//
// Commands of a session are executed on their own goroutines, so the tracer
// keeps the session span around to parent them.
type liveSpan struct {
	ctx  context.Context
	span trace.Span
}

// Tracer generates spans for sessions and the commands executed in them.
type Tracer struct {
	logger *log.Logger

	trace.Tracer

	metadata []attribute.KeyValue

	liveSpansMu sync.RWMutex
	liveSpans   map[string]*liveSpan
}

// NewTracer creates a new Tracer from the given TracerProvider.
func NewTracer(logger *log.Logger, tp trace.TracerProvider, metadata map[string]string, options ...trace.TracerOption) *Tracer {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Tracer{
		logger:    logger,
		Tracer:    tp.Tracer(tracerName, options...),
		metadata:  buildMetadataAttributes(metadata),
		liveSpans: make(map[string]*liveSpan),
	}
}

// NewNoopTracer returns a tracer that records nothing.
func NewNoopTracer() *Tracer {
	return NewTracer(log.NewNullLogger(), noop.NewTracerProvider(), nil)
}

// Start overrides the underlying OTEL tracer method to include the tracer metadata.
func (t *Tracer) Start(
	ctx context.Context, spanName string, opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	opts = append(opts, trace.WithAttributes(t.metadata...))
	return t.Tracer.Start(ctx, spanName, opts...)
}

// GetTraceID returns the trace id of spanCtx, or an empty string.
func GetTraceID(spanCtx trace.SpanContext) string {
	if spanCtx.HasTraceID() {
		traceID := spanCtx.TraceID()
		return traceID.String()
	}
	return ""
}

// TraceSession records a live span for a new session. Commands traced with
// the same session id become its children until EndSession is called.
func (t *Tracer) TraceSession(ctx context.Context, sessionID string) {
	t.liveSpansMu.Lock()
	defer t.liveSpansMu.Unlock()

	if ls := t.liveSpans[sessionID]; ls != nil {
		ls.span.End()
	}
	ls := &liveSpan{}
	ls.ctx, ls.span = t.Start(ctx, "session",
		trace.WithNewRoot(),
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	t.liveSpans[sessionID] = ls

	t.logger.Debugf("Tracer:TraceSession", "sid:%q traceID:%q", sessionID, GetTraceID(ls.span.SpanContext()))
}

// EndSession ends the live span of a session.
func (t *Tracer) EndSession(sessionID string) {
	t.liveSpansMu.Lock()
	defer t.liveSpansMu.Unlock()

	if ls := t.liveSpans[sessionID]; ls != nil {
		ls.span.End()
		delete(t.liveSpans, sessionID)
	}
}

// TraceCommand starts a span for a command. It is the caller's
// responsibility to end it. Without a live session span the span is
// parented by ctx.
func (t *Tracer) TraceCommand(
	ctx context.Context, sessionID, name, commandID string,
) (context.Context, trace.Span) {
	t.liveSpansMu.RLock()
	ls := t.liveSpans[sessionID]
	t.liveSpansMu.RUnlock()

	parent := ctx
	if ls != nil {
		parent = trace.ContextWithSpan(ctx, ls.span)
	}
	sCtx, span := t.Start(parent, name, trace.WithAttributes(
		attribute.String("command.name", name),
		attribute.String("command.id", commandID),
	))

	return sCtx, &SpanLogger{Span: span, logger: t.logger, spanName: name}
}

func buildMetadataAttributes(metadata map[string]string) []attribute.KeyValue {
	meta := make([]attribute.KeyValue, 0, len(metadata))
	for mk, mv := range metadata {
		meta = append(meta, attribute.String(mk, mv))
	}

	return meta
}

// SpanLogger is a Span that will log the method calls.
type SpanLogger struct {
	trace.Span
	logger   *log.Logger
	spanName string
}

// SetStatus will log some info before calling the underlying SetStatus.
func (i *SpanLogger) SetStatus(code codes.Code, description string) {
	traceID := GetTraceID(i.SpanContext())
	i.logger.Tracef("Span:SetStatus", "spanName:%q traceID:%q code:%q description:%q", i.spanName, traceID, code, description)

	i.Span.SetStatus(code, description)
}

// End will log some info before calling the underlying End.
func (i *SpanLogger) End(options ...trace.SpanEndOption) {
	traceID := GetTraceID(i.SpanContext())
	i.logger.Tracef("Span:End", "spanName:%q traceID:%q", i.spanName, traceID)

	i.Span.End(options...)
}

// RecordError will log some info before calling the underlying RecordError.
func (i *SpanLogger) RecordError(err error, options ...trace.EventOption) {
	traceID := GetTraceID(i.SpanContext())
	i.logger.Tracef("Span:RecordError", "spanName:%q traceID:%q err:%q", i.spanName, traceID, err)

	i.Span.RecordError(err, options...)
}
