// Package metrics provides Prometheus metrics for verdict.
//
// # Metrics
//
//   - verdict_solves_total{slug,status}: solves by outcome
//     (success, fallback, no_match, error)
//   - verdict_solve_duration_seconds{slug}: solve latency
//   - verdict_row_hits_total{slug,row_id}: matched rows
//   - verdict_bulk_batch_size{slug}: requests per bulk solve
//   - verdict_publish_total{slug,result}: publish attempts
//     (published, blocked, invalid, error)
//   - verdict_decision_log_dropped_total: decision records dropped
//   - verdict_rules_loaded: rules currently in the workspace
//
// Row IDs are labels, so row_hits_total goes through a cardinality limiter;
// label sets beyond the limit are counted under row_id="other".
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RecordSolve("health-plans", metrics.StatusSuccess, "row-1", 40*time.Microsecond)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// A nil *Collector is valid and records nothing.
package metrics
