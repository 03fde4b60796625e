// Package observability provides Prometheus metrics, HTTP instrumentation
// and OpenTelemetry tracing setup. The Collector also serves as the cache
// layer's metrics recorder.
package observability
