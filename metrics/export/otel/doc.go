// Package otel exposes authcore counters through an OpenTelemetry meter
// supplied by the caller. The exporter never owns a MeterProvider.
package otel
