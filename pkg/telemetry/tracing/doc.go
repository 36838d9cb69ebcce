// Package tracing wraps OpenTelemetry tracing for verdict.
//
// When telemetry.tracing.enabled is false, New returns a tracer backed by
// the noop provider and spans cost next to nothing. When enabled, spans are
// batched to an OTLP gRPC collector and sampled with a parent-based
// trace-ID ratio sampler.
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "rule.solve")
//	defer span.End()
//	tracing.SetSolveAttributes(span, "health-plans", 3)
//
// The HTTP server wraps handlers with HTTPMiddleware so incoming W3C
// traceparent headers continue the caller's trace.
package tracing
