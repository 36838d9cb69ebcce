// Package health serves liveness and readiness probes.
//
// Liveness only reports that the process is up. Readiness runs every
// registered component check concurrently, each bounded by the configured
// timeout, and answers 503 when any of them fails:
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.RegisterCheck("values", valueStore.Ping)
//	checker.RegisterCheck("decision_logs", logStorage.Ping)
//	r.Get(cfg.Telemetry.Health.LivenessPath, checker.LivenessHandler())
//	r.Get(cfg.Telemetry.Health.ReadinessPath, checker.ReadinessHandler())
package health
