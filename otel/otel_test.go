package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTraceProvider(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	tp, err := NewTraceProvider(ctx, "stdout", "", false)
	require.NoError(t, err)
	_, span := tp.Tracer("test").Start(ctx, "span")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, tp.Shutdown(ctx))

	_, err = NewTraceProvider(ctx, "grpc", "localhost:4317", true)
	require.ErrorIs(t, err, ErrUnsupportedProto)

	noop := NewNoopTraceProvider()
	_, span = noop.Tracer("test").Start(ctx, "span")
	assert.False(t, span.SpanContext().IsValid())
	require.NoError(t, noop.Shutdown(ctx))
}
