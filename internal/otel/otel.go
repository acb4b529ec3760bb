package otel

import (
	"context"

	runtimeotel "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/imtaco/reqflow/internal/errors"
	"github.com/imtaco/reqflow/internal/log"
)

// ShutdownFunc flushes and stops the providers installed by Init.
type ShutdownFunc func(context.Context) error

type providers struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

// Init installs global tracer and meter providers. Disabled signals get a
// local provider that records nothing, so package-level instruments created
// in init() stay valid either way.
func Init(ctx context.Context, config *Config, logger *log.Logger) (ShutdownFunc, error) {
	if logger == nil {
		panic("logger is required")
	}
	logger = logger.Module("Otel")
	logger.Info("OTEL configuration",
		log.Bool("tracing_enabled", config.TracingEnabled),
		log.Bool("metrics_enabled", config.MetricsEnabled),
		log.Bool("go_metrics_enabled", config.RuntimeMetricsEnabled),
		log.String("endpoint", config.Endpoint),
		log.String("service_name", config.ServiceName))

	// trace context flows through otelgin and resty calls even without export
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	res, err := newResource(ctx, config)
	if err != nil {
		return nil, errors.Wrap(ErrInit, err, "resource")
	}

	p := &providers{}
	if p.tracerProvider, err = newTracerProvider(ctx, config, res); err != nil {
		return nil, errors.Wrap(ErrInit, err, "tracing")
	}
	if p.meterProvider, err = newMeterProvider(ctx, config, res); err != nil {
		return nil, errors.Wrap(ErrInit, err, "metrics")
	}

	if config.MetricsEnabled && config.RuntimeMetricsEnabled {
		if err := runtimeotel.Start(runtimeotel.WithMeterProvider(p.meterProvider)); err != nil {
			return nil, errors.Wrap(ErrInit, err, "runtime metrics")
		}
	}

	return p.shutdown, nil
}

func newResource(ctx context.Context, config *Config) (*resource.Resource, error) {
	attrs := []resource.Option{
		resource.WithAttributes(semconv.ServiceName(config.ServiceName)),
		resource.WithFromEnv(), // OTEL_RESOURCE_ATTRIBUTES
		resource.WithHost(),
		resource.WithDetectors(),
	}
	if config.ServiceVersion != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceVersion(config.ServiceVersion)))
	}
	return resource.New(ctx, attrs...)
}

// newSampler keeps the parent's decision and samples root spans at rate.
func newSampler(rate float64) sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case rate >= 1.0:
		root = sdktrace.AlwaysSample()
	case rate <= 0.0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(rate)
	}
	return sdktrace.ParentBased(root)
}

func newTracerProvider(ctx context.Context, config *Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	if !config.TracingEnabled {
		return sdktrace.NewTracerProvider(), nil
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(config.Endpoint),
		otlptracegrpc.WithTimeout(config.Timeout),
	}
	if config.Insecure {
		opts = append(opts,
			otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(config.SamplingRate)),
	)
	otel.SetTracerProvider(provider)
	return provider, nil
}

func newMeterProvider(ctx context.Context, config *Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	if !config.MetricsEnabled {
		return sdkmetric.NewMeterProvider(), nil
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(config.Endpoint),
		otlpmetricgrpc.WithTimeout(config.Timeout),
	}
	if config.Insecure {
		opts = append(opts,
			otlpmetricgrpc.WithTLSCredentials(insecure.NewCredentials()),
			otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(
			exporter,
			sdkmetric.WithInterval(config.MetricsExportInterval),
		)),
	)
	// the global delegate rebinds instruments created before this point
	otel.SetMeterProvider(provider)
	return provider, nil
}

func (p *providers) shutdown(ctx context.Context) error {
	var first error
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		first = errors.Wrap(ErrShutdown, err, "tracer provider")
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil && first == nil {
		first = errors.Wrap(ErrShutdown, err, "meter provider")
	}
	return first
}
