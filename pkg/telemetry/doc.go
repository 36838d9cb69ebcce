// Package telemetry groups verdict's observability packages.
//
//   - logging: slog setup and request-scoped log fields
//   - metrics: Prometheus metrics for solves, publishes and decision logs
//   - tracing: OpenTelemetry spans exported over OTLP gRPC
//   - health: liveness and readiness probes
//
// Each package is configured from the telemetry section of the config file
// and is safe to leave disabled.
package telemetry
