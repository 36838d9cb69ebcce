package workspace

import (
	"context"
	"time"

	"github.com/google/uuid"

	"mercator-hq/verdict/pkg/table"
	"mercator-hq/verdict/pkg/telemetry/logging"
	"mercator-hq/verdict/pkg/telemetry/tracing"
)

// Batch is the outcome of a BulkSolve. Results[i] belongs to requests[i].
type Batch struct {
	ID      string
	Results []table.BulkResult
}

// Solve solves req against the rule's table. The solve is traced, counted
// and recorded to the decision log whether or not it succeeds.
func (w *Workspace) Solve(ctx context.Context, slug string, req table.Request) (*table.Decision, error) {
	rule, err := w.Get(slug)
	if err != nil {
		return nil, err
	}

	ctx = logging.WithSlug(ctx, slug)
	ctx, span := w.tracer.Start(ctx, "rule.solve")
	defer span.End()
	tracing.SetSolveAttributes(span, slug, rule.Version)

	start := time.Now()
	d, err := rule.Table.Solve(ctx, req)
	w.observe(ctx, rule, req, d, err, "", time.Since(start))

	if err != nil {
		tracing.SetError(span, err)
		tracing.SetStatus(span, err)
		return nil, err
	}
	tracing.SetDecisionAttributes(span, d.RowID, d.RowIndex, d.Fallback)
	tracing.SetStatus(span, nil)
	return d, nil
}

// BulkSolve solves requests in parallel against one snapshot of the rule's
// table. Every result is recorded under the batch ID.
func (w *Workspace) BulkSolve(ctx context.Context, slug string, requests []table.Request) (*Batch, error) {
	rule, err := w.Get(slug)
	if err != nil {
		return nil, err
	}

	batch := &Batch{ID: uuid.Must(uuid.NewV7()).String()}

	ctx = logging.WithSlug(ctx, slug)
	ctx = logging.WithBatchID(ctx, batch.ID)
	ctx, span := w.tracer.Start(ctx, "rule.bulk_solve")
	defer span.End()
	tracing.SetSolveAttributes(span, slug, rule.Version)
	tracing.SetBatchAttributes(span, batch.ID, len(requests))

	start := time.Now()
	batch.Results = rule.Table.BulkSolve(ctx, requests)
	elapsed := time.Since(start)

	w.metrics.RecordBulk(slug, len(requests))
	failed := 0
	for i, res := range batch.Results {
		if res.Err != nil {
			failed++
		}
		w.observe(ctx, rule, requests[i], res.Decision, res.Err, batch.ID, elapsed)
	}

	w.logger.DebugContext(ctx, "bulk solve finished",
		"requests", len(requests),
		"failed", failed,
		"duration", elapsed,
	)
	tracing.SetStatus(span, ctx.Err())
	return batch, nil
}
