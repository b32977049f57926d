// Package tracing initializes the OpenTelemetry SDK for the gateway: an
// OTLP gRPC exporter, a ratio sampler, and W3C trace-context propagation.
// When tracing is disabled a noop tracer is returned so call sites never
// branch on configuration.
package tracing
