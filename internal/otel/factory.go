package otel

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// MetricFactory creates instruments named "<prefix>.<name>" on one meter.
// Instruments from the global meter follow the provider installed by Init,
// so packages may create them in init().
type MetricFactory struct {
	meter  metric.Meter
	prefix string
}

func NewFactory(meterName, prefix string) *MetricFactory {
	return NewFactoryWithMeter(otel.Meter(meterName), prefix)
}

// NewFactoryWithMeter binds the factory to an explicit meter, e.g. one backed
// by a manual reader in tests.
func NewFactoryWithMeter(meter metric.Meter, prefix string) *MetricFactory {
	return &MetricFactory{
		meter:  meter,
		prefix: prefix,
	}
}

func (f *MetricFactory) name(suffix string) string {
	if f.prefix == "" {
		return suffix
	}
	return f.prefix + "." + suffix
}

// check panics on instrument creation errors; they only come from invalid
// names or options.
func check(kind, name string, err error) {
	if err != nil {
		panic(fmt.Sprintf("failed to create %s %s: %v", kind, name, err))
	}
}

func (f *MetricFactory) Int64Counter(target *metric.Int64Counter, name string, options ...metric.Int64CounterOption) {
	name = f.name(name)
	c, err := f.meter.Int64Counter(name, options...)
	check("counter", name, err)
	*target = c
}

func (f *MetricFactory) Int64UpDownCounter(target *metric.Int64UpDownCounter, name string, options ...metric.Int64UpDownCounterOption) {
	name = f.name(name)
	c, err := f.meter.Int64UpDownCounter(name, options...)
	check("up-down counter", name, err)
	*target = c
}

func (f *MetricFactory) Float64Histogram(target *metric.Float64Histogram, name string, options ...metric.Float64HistogramOption) {
	name = f.name(name)
	h, err := f.meter.Float64Histogram(name, options...)
	check("histogram", name, err)
	*target = h
}
