// Package otel publishes the counters of an [authflow.Client] through an
// OpenTelemetry Meter.
//
// Every counter becomes an Int64ObservableCounter. Histogram buckets and
// counts become Int64ObservableGauges and the latency sum a float gauge. One
// callback feeds them all from [authflow.Client.MetricsSnapshot] per
// collection. Callers own the MeterProvider.
package otel
