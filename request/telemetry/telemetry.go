package telemetry

import (
	"context"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/imtaco/reqflow/internal/log"
	intotel "github.com/imtaco/reqflow/internal/otel"
	"github.com/imtaco/reqflow/request"
)

const (
	Name     = "telemetry"
	Priority = 90000

	scopeName = "github.com/imtaco/reqflow/request"
	spanName  = "request.invoke"
)

var attrKey = attribute.Key("request.key")

// Telemetry records a span and outcome counters per invocation, plus the
// number of series currently loading.
type Telemetry struct {
	tracer trace.Tracer
	clock  clockwork.Clock
	logger *log.Logger

	started   metric.Int64Counter
	succeeded metric.Int64Counter
	failed    metric.Int64Counter
	canceled  metric.Int64Counter
	busy      metric.Int64UpDownCounter
	duration  metric.Float64Histogram
}

// New binds instruments to meter and spans to tracer; nil values use the
// global providers.
func New(logger *log.Logger, tracer trace.Tracer, meter metric.Meter, clock clockwork.Clock) *Telemetry {
	if logger == nil {
		panic("logger is required")
	}
	if tracer == nil {
		tracer = intotel.Tracer(scopeName)
	}
	if meter == nil {
		meter = otel.Meter(scopeName)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	t := &Telemetry{
		tracer: tracer,
		clock:  clock,
		logger: logger.Module("Telemetry"),
	}

	f := intotel.NewFactoryWithMeter(meter, intotel.PrefixRequest)
	f.Int64Counter(&t.started, "started",
		metric.WithDescription("Invocations entering the chain"))
	f.Int64Counter(&t.succeeded, "succeeded",
		metric.WithDescription("Invocations resolved with data"))
	f.Int64Counter(&t.failed, "failed",
		metric.WithDescription("Invocations resolved with an error"))
	f.Int64Counter(&t.canceled, "canceled",
		metric.WithDescription("Invocations cancelled before settling"))
	f.Int64UpDownCounter(&t.busy, "busy",
		metric.WithDescription("Series with at least one invocation in flight"))
	f.Float64Histogram(&t.duration, "duration_seconds",
		metric.WithDescription("Time spent inside the chain"),
		metric.WithUnit("s"))

	return t
}

func (t *Telemetry) Middleware() request.Middleware {
	return request.Middleware{
		Name:     Name,
		Priority: Priority,
		Setup: func(bc *request.BasicContext) {
			attrs := metric.WithAttributes(attrKey.String(bc.Key()))
			bc.Hooks().OnLoadingChange(func(ctx context.Context, loading bool) {
				if loading {
					t.busy.Add(ctx, 1, attrs)
				} else {
					t.busy.Add(ctx, -1, attrs)
				}
			})
		},
		Handler: t.handle,
	}
}

func (t *Telemetry) handle(ctx context.Context, rc *request.Context, next request.Next) (any, error) {
	attrs := metric.WithAttributes(attrKey.String(rc.Key()))
	ctx, span := intotel.StartSpan(ctx, t.tracer, spanName,
		attrKey.String(rc.Key()),
		attribute.String("request.id", rc.ID()),
	)
	defer span.End()

	t.started.Add(ctx, 1, attrs)
	start := t.clock.Now()

	data, err := next(ctx)

	t.duration.Record(ctx, t.clock.Since(start).Seconds(), attrs)
	switch {
	case rc.IsCanceled():
		t.canceled.Add(ctx, 1, attrs)
		intotel.SetSpanAttributes(span, attribute.Bool("request.canceled", true))
	case err != nil:
		t.failed.Add(ctx, 1, attrs)
		intotel.RecordError(span, err)
		t.logger.Debug("invocation failed", log.Key(rc.Key()), log.Error(err))
	default:
		t.succeeded.Add(ctx, 1, attrs)
	}
	return data, err
}
