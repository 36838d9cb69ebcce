package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrRuleSlug    = "verdict.rule.slug"
	AttrRuleVersion = "verdict.rule.version"
	AttrRowID       = "verdict.row.id"
	AttrRowIndex    = "verdict.row.index"
	AttrFallback    = "verdict.fallback"
	AttrBatchID     = "verdict.batch.id"
	AttrBatchSize   = "verdict.batch.size"
	AttrTestsRun    = "verdict.tests.run"
	AttrTestsFailed = "verdict.tests.failed"
)

// SetSolveAttributes identifies the rule being solved.
func SetSolveAttributes(span trace.Span, slug string, version int) {
	span.SetAttributes(
		attribute.String(AttrRuleSlug, slug),
		attribute.Int(AttrRuleVersion, version),
	)
}

// SetDecisionAttributes records which row answered a solve.
func SetDecisionAttributes(span trace.Span, rowID string, rowIndex int, fallback bool) {
	span.SetAttributes(
		attribute.String(AttrRowID, rowID),
		attribute.Int(AttrRowIndex, rowIndex),
		attribute.Bool(AttrFallback, fallback),
	)
}

// SetBatchAttributes identifies a bulk solve.
func SetBatchAttributes(span trace.Span, batchID string, size int) {
	span.SetAttributes(
		attribute.String(AttrBatchID, batchID),
		attribute.Int(AttrBatchSize, size),
	)
}

// SetTestAttributes records a continuous-testing run.
func SetTestAttributes(span trace.Span, run, failed int) {
	span.SetAttributes(
		attribute.Int(AttrTestsRun, run),
		attribute.Int(AttrTestsFailed, failed),
	)
}
