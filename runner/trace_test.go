package runner

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ethereum-optimism/infra/op-cuke/types"
)

func findSpan(t *testing.T, spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, s := range spans {
		if s.Name() == name {
			return s
		}
	}
	t.Fatalf("span %q not recorded", name)
	return nil
}

func TestUnitSpanIsChildOfModeSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	sched, _ := newTestScheduler(t, nil, nil, Sources{}, 1)
	modeCtx, modeSpan := tp.Tracer("test").Start(context.Background(), "mode")

	u := funcUnit(types.ApiFeatureParallel, func(context.Context, io.Writer) (int, error) {
		return 0, nil
	})
	u.tracer = tp.Tracer("unit")

	batch := NewBatch(types.ApiFeatureParallel)
	require.NoError(t, sched.submit(modeCtx, batch, u))
	waitClosed(t, batch.Handles()[0].Done())
	modeSpan.End()

	unitSpan := findSpan(t, rec.Ended(), "unit "+u.ID())
	assert.Equal(t, modeSpan.SpanContext().TraceID(), unitSpan.SpanContext().TraceID())
	assert.Equal(t, modeSpan.SpanContext().SpanID(), unitSpan.Parent().SpanID())
}

func TestUnitSpanWithoutModeSpanIsRoot(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	u := codeUnit(0)
	u.tracer = tp.Tracer("unit")
	assert.Equal(t, types.ResultSuccess, u.Execute(context.Background()))

	unitSpan := findSpan(t, rec.Ended(), "unit "+u.ID())
	assert.False(t, unitSpan.Parent().IsValid())
}
