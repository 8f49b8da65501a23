package common

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/grafana/xk6-marionette/cmdproc"
	"github.com/grafana/xk6-marionette/log"
	"github.com/grafana/xk6-marionette/protocol"
	"github.com/grafana/xk6-marionette/trace"
)

func TestSessionSpanParentsCommands(t *testing.T) {
	t.Parallel()

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	tracer := trace.NewTracer(log.NewNullLogger(), tp, nil)

	dt := newDriverTest(t, "Firefox", func(o *Options) { o.Tracer = tracer })
	proc := cmdproc.NewProcessor(dt.d, log.NewNullLogger(), cmdproc.WithTracer(tracer))
	execute := func(name, cid string) {
		proc.Execute(context.Background(), &protocol.Command{Name: name}, func(cmdproc.Result, string) {}, cid)
	}

	execute("newSession", "1")
	sid := dt.d.SessionID()
	require.NotEmpty(t, sid)
	execute("getContext", "2")
	execute("deleteSession", "3")
	assert.Empty(t, dt.d.SessionID())

	byName := make(map[string]sdktrace.ReadOnlySpan)
	for _, s := range rec.Ended() {
		byName[s.Name()] = s
	}
	session, ok := byName["session"]
	require.True(t, ok, "the session span ended with the session")
	assert.Contains(t, session.Attributes(), attribute.String("session.id", sid))

	for _, name := range []string{"getContext", "deleteSession"} {
		span, ok := byName[name]
		require.Truef(t, ok, "span %q", name)
		assert.Equalf(t, session.SpanContext().SpanID(), span.Parent().SpanID(), "parent of %q", name)
	}
	assert.False(t, byName["newSession"].Parent().IsValid())
}
