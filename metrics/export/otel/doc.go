// Package otel publishes engine metrics through an OpenTelemetry Meter.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and a
// cumulative Int64ObservableGauge per histogram bucket. A single callback reads
// the snapshot on each collection. The caller owns the MeterProvider.
package otel
