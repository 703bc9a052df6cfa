// Package observability provides an OpenTelemetry metrics extension
// for weave. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for task enqueue, execution completion and
// failure, node outcomes, retries, and schedule fires.
//
// For per-node tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
