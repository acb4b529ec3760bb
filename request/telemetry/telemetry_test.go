package telemetry

import (
	"context"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/imtaco/reqflow/internal/errors"
	"github.com/imtaco/reqflow/internal/log"
	"github.com/imtaco/reqflow/request"
)

const errFetch errors.Code = "fetch failed"

type TelemetryTestSuite struct {
	suite.Suite
	logger *log.Logger
	ctx    context.Context
	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
	tel    *Telemetry
}

func TestTelemetrySuite(t *testing.T) {
	suite.Run(t, new(TelemetryTestSuite))
}

func (s *TelemetryTestSuite) SetupTest() {
	s.logger = log.NewNop()
	s.ctx = context.Background()
	s.spans = tracetest.NewSpanRecorder()
	s.reader = sdkmetric.NewManualReader()

	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(s.spans))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(s.reader))
	s.tel = New(s.logger, tp.Tracer("test"), mp.Meter("test"), clockwork.NewFakeClock())
}

// sum adds up every data point of the named int64 sum instrument.
func (s *TelemetryTestSuite) sum(name string) int64 {
	var rm metricdata.ResourceMetrics
	s.Require().NoError(s.reader.Collect(context.Background(), &rm))

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			data, ok := m.Data.(metricdata.Sum[int64])
			s.Require().True(ok, name)
			var total int64
			for _, dp := range data.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func (s *TelemetryTestSuite) TestSuccessRecorded() {
	r := request.NewEngine(s.logger, s.tel.Middleware()).
		New("k", func(context.Context, ...any) (any, error) { return 1, nil }, nil)

	_, err := r.UnsafeRun(s.ctx)
	s.Require().NoError(err)

	s.Equal(int64(1), s.sum("request.started"))
	s.Equal(int64(1), s.sum("request.succeeded"))
	s.Equal(int64(0), s.sum("request.failed"))

	ended := s.spans.Ended()
	s.Require().Len(ended, 1)
	s.Equal(spanName, ended[0].Name())
	s.Equal(codes.Unset, ended[0].Status().Code)
}

func (s *TelemetryTestSuite) TestFailureRecorded() {
	r := request.NewEngine(s.logger, s.tel.Middleware()).
		New("k", func(context.Context, ...any) (any, error) { return nil, errors.New(errFetch, "down") }, nil)

	_, err := r.UnsafeRun(s.ctx)
	s.Require().ErrorIs(err, errFetch)

	s.Equal(int64(1), s.sum("request.failed"))
	s.Equal(int64(0), s.sum("request.succeeded"))

	ended := s.spans.Ended()
	s.Require().Len(ended, 1)
	s.Equal(codes.Error, ended[0].Status().Code)
	s.NotEmpty(ended[0].Events())
}

func (s *TelemetryTestSuite) TestCancelRecorded() {
	r := request.NewEngine(s.logger, s.tel.Middleware()).
		New("k", func(context.Context, ...any) (any, error) { return 1, nil }, nil)
	r.Context().Hooks().OnBefore(func(_ context.Context, rc *request.Context, _ []any) error {
		rc.Cancel(true)
		return nil
	})

	_, err := r.UnsafeRun(s.ctx)
	s.Require().NoError(err)

	s.Equal(int64(1), s.sum("request.canceled"))
	s.Equal(int64(0), s.sum("request.succeeded"))
}

func (s *TelemetryTestSuite) TestBusyTracksLoading() {
	var during int64
	r := request.NewEngine(s.logger, s.tel.Middleware()).
		New("k", func(context.Context, ...any) (any, error) {
			during = s.sum("request.busy")
			return 1, nil
		}, nil)

	_, err := r.UnsafeRun(s.ctx)
	s.Require().NoError(err)

	s.Equal(int64(1), during)
	s.Equal(int64(0), s.sum("request.busy"))
}
