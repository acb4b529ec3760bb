package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/imtaco/reqflow/internal/errors"
)

const errTest errors.Code = "test failure"

func TestRecordError(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)).Tracer("test")

	_, ok := StartSpan(context.Background(), tracer, "ok", attribute.String("k", "v"))
	RecordError(ok, nil)
	ok.End()

	_, failed := StartSpan(context.Background(), tracer, "failed")
	RecordError(failed, errors.Wrap(errTest, errors.PureNew("boom"), "work"))
	failed.End()

	ended := rec.Ended()
	require.Len(t, ended, 2)

	assert.Equal(t, codes.Unset, ended[0].Status().Code)
	assert.Contains(t, ended[0].Attributes(), attribute.String("k", "v"))

	assert.Equal(t, codes.Error, ended[1].Status().Code)
	assert.Contains(t, ended[1].Attributes(), attrErrorCode.String(string(errTest)))
	assert.Len(t, ended[1].Events(), 1)
}
