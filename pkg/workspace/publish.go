package workspace

import (
	"context"
	"fmt"

	"mercator-hq/verdict/pkg/ruletest"
	"mercator-hq/verdict/pkg/table"
	"mercator-hq/verdict/pkg/tablefile"
	"mercator-hq/verdict/pkg/telemetry/logging"
	"mercator-hq/verdict/pkg/telemetry/metrics"
	"mercator-hq/verdict/pkg/telemetry/tracing"
)

// Publish validates the rule, runs its tests when continuous testing is on,
// saves the table document as a new version and marks the table PUBLISHED.
// A failing critical test blocks the publish with a PublishBlockedError;
// failing non-critical tests are logged. Publishing an unchanged published
// rule returns its current version.
func (w *Workspace) Publish(ctx context.Context, slug string) (*Version, error) {
	rule, err := w.Get(slug)
	if err != nil {
		return nil, err
	}

	ctx = logging.WithSlug(ctx, slug)
	ctx, span := w.tracer.Start(ctx, "rule.publish")
	defer span.End()
	tracing.SetSolveAttributes(span, slug, rule.Version)

	version, err := w.publish(ctx, rule)
	tracing.SetError(span, err)
	tracing.SetStatus(span, err)
	return version, err
}

func (w *Workspace) publish(ctx context.Context, rule *Rule) (*Version, error) {
	if rule.Status() == table.StatePublished && rule.Version > 0 {
		return w.repo.Get(ctx, rule.Slug, rule.Version)
	}

	if err := rule.Table.Validate(ctx); err != nil {
		w.metrics.RecordPublish(rule.Slug, metrics.PublishInvalid)
		return nil, &RuleError{Slug: rule.Slug, Op: "publish", Err: err}
	}

	if rule.ContinuousTesting && len(rule.Tests) > 0 {
		report := ruletest.Run(ctx, rule.Table, rule.Tests)
		_, span := w.tracer.Start(ctx, "rule.test")
		tracing.SetTestAttributes(span, len(report.Results), report.Failed)
		span.End()

		if critical := report.CriticalFailures(); len(critical) > 0 {
			w.metrics.RecordPublish(rule.Slug, metrics.PublishBlocked)
			w.logger.WarnContext(ctx, "publish blocked by critical tests",
				"failed", report.Failed,
				"critical", len(critical),
			)
			return nil, &PublishBlockedError{Slug: rule.Slug, Failures: critical}
		}
		if !report.OK() {
			w.logger.WarnContext(ctx, "publishing with failing tests", "failed", report.Failed)
		}
	}

	doc := tablefile.FromTable(rule.Table, tablefile.Meta{
		Slug:              rule.Slug,
		Folder:            rule.Folder,
		ContinuousTesting: rule.ContinuousTesting,
	}, rule.Tests)
	doc.Name = rule.Name
	doc.Description = rule.Description
	data, err := doc.Marshal()
	if err != nil {
		w.metrics.RecordPublish(rule.Slug, metrics.PublishError)
		return nil, &RuleError{Slug: rule.Slug, Op: "publish", Err: err}
	}

	version, err := w.saveIfChanged(ctx, rule, data)
	if err != nil {
		w.metrics.RecordPublish(rule.Slug, metrics.PublishError)
		return nil, &RuleError{Slug: rule.Slug, Op: "publish", Err: err}
	}

	if err := rule.Table.MarkPublished(); err != nil {
		w.metrics.RecordPublish(rule.Slug, metrics.PublishError)
		return nil, &RuleError{Slug: rule.Slug, Op: "publish", Err: fmt.Errorf("version %d saved but table changed: %w", version.Version, err)}
	}

	if err := w.update(rule.Slug, "publish", func(r *Rule) error {
		r.Version = version.Version
		return nil
	}); err != nil {
		return nil, err
	}

	w.metrics.RecordPublish(rule.Slug, metrics.PublishPublished)
	w.logger.InfoContext(ctx, "rule published", "version", version.Version, "checksum", version.Checksum)
	return version, nil
}

// saveIfChanged saves data as the next version of the rule unless it is
// identical to the rule's current version, which is then returned.
func (w *Workspace) saveIfChanged(ctx context.Context, rule *Rule, data []byte) (*Version, error) {
	if rule.Version > 0 {
		current, err := w.repo.Get(ctx, rule.Slug, rule.Version)
		if err == nil && current.Checksum == checksum(data) {
			return current, nil
		}
	}
	return w.repo.Save(ctx, rule.Slug, data)
}
