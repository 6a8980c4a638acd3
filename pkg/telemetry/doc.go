// Package telemetry bundles the observability stack: zerolog structured
// logging, Prometheus metrics, OpenTelemetry tracing, and an in-process
// event stream. Components take a zerolog.Logger and derive child loggers
// with a component field; metrics and tracer instances are created once at
// startup and threaded through the launcher.
package telemetry
