package otel

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// MetricFactory creates prefixed instruments on a shared meter. Package
// init() funcs register their instruments through it; the instruments pick
// up the real provider once Init has run.
type MetricFactory struct {
	meter  metric.Meter
	prefix string
}

func NewFactory(meterName, prefix string) *MetricFactory {
	return &MetricFactory{
		meter:  otel.Meter(meterName),
		prefix: prefix,
	}
}

func (f *MetricFactory) name(suffix string) string {
	if f.prefix == "" {
		return suffix
	}
	return f.prefix + "." + suffix
}

func (f *MetricFactory) Int64Counter(target *metric.Int64Counter, name string, options ...metric.Int64CounterOption) {
	fullName := f.name(name)
	counter, err := f.meter.Int64Counter(fullName, options...)
	if err != nil {
		panic(fmt.Sprintf("failed to create counter %s: %v", fullName, err))
	}
	*target = counter
}

func (f *MetricFactory) Int64UpDownCounter(target *metric.Int64UpDownCounter, name string, options ...metric.Int64UpDownCounterOption) {
	fullName := f.name(name)
	counter, err := f.meter.Int64UpDownCounter(fullName, options...)
	if err != nil {
		panic(fmt.Sprintf("failed to create up-down counter %s: %v", fullName, err))
	}
	*target = counter
}

func (f *MetricFactory) Float64Histogram(target *metric.Float64Histogram, name string, options ...metric.Float64HistogramOption) {
	fullName := f.name(name)
	histogram, err := f.meter.Float64Histogram(fullName, options...)
	if err != nil {
		panic(fmt.Sprintf("failed to create histogram %s: %v", fullName, err))
	}
	*target = histogram
}
