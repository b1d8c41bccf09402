package tracing

import (
	"context"
	"testing"

	"github.com/opentracing/opentracing-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitTracerDisabled(t *testing.T) {
	tracer, closeFn, err := InitTracer(Config{}, zap.NewNop())
	require.NoError(t, err)
	defer closeFn()

	assert.IsType(t, opentracing.NoopTracer{}, tracer)

	span, ctx := StartSpan(context.Background(), "op", map[string]any{"symbol": "BTCUSDT"})
	defer span.Finish()
	assert.NotNil(t, opentracing.SpanFromContext(ctx))
}
