package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/verdict/pkg/decisionlog"
	"mercator-hq/verdict/pkg/decisionlog/recorder"
	"mercator-hq/verdict/pkg/dynamic"
	"mercator-hq/verdict/pkg/ruletest"
	"mercator-hq/verdict/pkg/table"
	"mercator-hq/verdict/pkg/tablefile"
	"mercator-hq/verdict/pkg/telemetry/metrics"
	"mercator-hq/verdict/pkg/telemetry/tracing"
)

// Workspace holds the rules of one deployment together with the services
// they use: the Dynamic Value store, the version repository, the decision
// recorder, metrics and tracing. Every dependency is injected.
type Workspace struct {
	store    dynamic.Store
	resolver table.Resolver
	repo     Repository
	recorder *recorder.Recorder
	metrics  *metrics.Collector
	tracer   *tracing.Tracer
	settings *table.Settings
	logger   *slog.Logger

	// valuesMu is held for reading while tables bind to Dynamic Values and
	// for writing while a value is deleted.
	valuesMu sync.RWMutex

	mu            sync.RWMutex
	rules         map[string]*Rule
	lastLoadTime  time.Time
	lastLoadError error
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithRepository sets the repository published versions are saved to.
// Defaults to a MemoryRepository.
func WithRepository(repo Repository) Option {
	return func(w *Workspace) { w.repo = repo }
}

// WithRecorder records every solve to the decision log.
func WithRecorder(r *recorder.Recorder) Option {
	return func(w *Workspace) { w.recorder = r }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(w *Workspace) { w.metrics = c }
}

// WithTracer sets the tracer.
func WithTracer(t *tracing.Tracer) Option {
	return func(w *Workspace) { w.tracer = t }
}

// WithSettings sets the base settings of tables loaded from documents.
func WithSettings(s *table.Settings) Option {
	return func(w *Workspace) { w.settings = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workspace) { w.logger = l }
}

// New creates an empty workspace over store. The workspace becomes the
// store's reference checker, so values used by any rule cannot be deleted.
func New(store dynamic.Store, opts ...Option) *Workspace {
	w := &Workspace{
		store:    store,
		resolver: dynamic.NewResolver(store),
		rules:    make(map[string]*Rule),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.repo == nil {
		w.repo = NewMemoryRepository()
	}
	if w.tracer == nil {
		w.tracer = tracing.Noop()
	}
	if w.settings == nil {
		w.settings = table.DefaultSettings()
	}
	if w.logger == nil {
		w.logger = slog.Default().With("component", "workspace")
	}
	store.SetReferenceChecker(w)
	return w
}

// Resolver returns the resolver tables in this workspace should use.
func (w *Workspace) Resolver() table.Resolver {
	return w.resolver
}

// Repository returns the version repository.
func (w *Workspace) Repository() Repository {
	return w.repo
}

// Create adds a rule. Name defaults to the table name and Slug to the
// slugified name. The rule gets a fresh ID.
func (w *Workspace) Create(ctx context.Context, rule *Rule) error {
	if rule == nil || rule.Table == nil {
		return fmt.Errorf("%w: rule has no table", ErrInvalidRule)
	}
	if rule.Name == "" {
		rule.Name = rule.Table.Name()
	}
	if rule.Description == "" {
		rule.Description = rule.Table.Description()
	}
	if rule.Slug == "" {
		rule.Slug = tablefile.Slugify(rule.Name)
	}
	if !slugPattern.MatchString(rule.Slug) {
		return &RuleError{Slug: rule.Slug, Op: "create", Err: fmt.Errorf("%w: invalid slug", ErrInvalidRule)}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.rules[rule.Slug]; exists {
		return &RuleError{Slug: rule.Slug, Op: "create", Err: ErrRuleExists}
	}

	rule.ID = uuid.Must(uuid.NewV7()).String()
	rule.UpdatedAt = time.Now().UTC()
	w.rules[rule.Slug] = rule
	w.metrics.SetRulesLoaded(len(w.rules))

	w.logger.InfoContext(ctx, "rule created", "slug", rule.Slug, "id", rule.ID)
	return nil
}

// Get returns a copy of the rule's metadata. The table is shared.
func (w *Workspace) Get(slug string) (*Rule, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	rule, ok := w.rules[slug]
	if !ok {
		return nil, notFound(slug, "get")
	}
	c := *rule
	return &c, nil
}

// List returns every rule ordered by folder and slug.
func (w *Workspace) List() []*Rule {
	w.mu.RLock()
	out := make([]*Rule, 0, len(w.rules))
	for _, rule := range w.rules {
		c := *rule
		out = append(out, &c)
	}
	w.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Folder != out[j].Folder {
			return out[i].Folder < out[j].Folder
		}
		return out[i].Slug < out[j].Slug
	})
	return out
}

// Delete removes a rule and its published versions.
func (w *Workspace) Delete(ctx context.Context, slug string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.rules[slug]; !ok {
		return notFound(slug, "delete")
	}
	if err := w.repo.Delete(ctx, slug); err != nil {
		return &RuleError{Slug: slug, Op: "delete", Err: err}
	}
	delete(w.rules, slug)
	w.metrics.SetRulesLoaded(len(w.rules))

	w.logger.InfoContext(ctx, "rule deleted", "slug", slug)
	return nil
}

// Rename changes a rule's display name and, when newSlug is not empty, its
// slug. Published versions follow the slug.
func (w *Workspace) Rename(ctx context.Context, slug, name, newSlug string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	rule, ok := w.rules[slug]
	if !ok {
		return notFound(slug, "rename")
	}

	if newSlug != "" && newSlug != slug {
		if !slugPattern.MatchString(newSlug) {
			return &RuleError{Slug: newSlug, Op: "rename", Err: fmt.Errorf("%w: invalid slug", ErrInvalidRule)}
		}
		if _, exists := w.rules[newSlug]; exists {
			return &RuleError{Slug: newSlug, Op: "rename", Err: ErrRuleExists}
		}
		if err := w.repo.Rename(ctx, slug, newSlug); err != nil {
			return &RuleError{Slug: slug, Op: "rename", Err: err}
		}
		delete(w.rules, slug)
		rule.Slug = newSlug
		w.rules[newSlug] = rule
	}
	if name != "" {
		rule.Name = name
	}
	rule.UpdatedAt = time.Now().UTC()

	w.logger.InfoContext(ctx, "rule renamed", "from", slug, "slug", rule.Slug, "name", rule.Name)
	return nil
}

// Move puts a rule in folder. An empty folder is the workspace root.
func (w *Workspace) Move(slug, folder string) error {
	return w.update(slug, "move", func(rule *Rule) error {
		rule.Folder = folder
		return nil
	})
}

// Describe sets a rule's description.
func (w *Workspace) Describe(slug, description string) error {
	return w.update(slug, "describe", func(rule *Rule) error {
		rule.Description = description
		return nil
	})
}

// SetTests replaces a rule's tests and turns continuous testing on or off.
func (w *Workspace) SetTests(slug string, tests []ruletest.Test, continuous bool) error {
	return w.update(slug, "set tests", func(rule *Rule) error {
		rule.Tests = tests
		rule.ContinuousTesting = continuous
		return nil
	})
}

// Edit applies fn to the rule's table as one all-or-nothing change.
// Published rules must be reopened first.
func (w *Workspace) Edit(ctx context.Context, slug string, fn func(*table.Builder) error) error {
	w.valuesMu.RLock()
	defer w.valuesMu.RUnlock()

	rule, err := w.lookup(slug)
	if err != nil {
		return err
	}
	if err := rule.Table.Edit(ctx, fn); err != nil {
		return &RuleError{Slug: slug, Op: "edit", Err: err}
	}
	return w.update(slug, "edit", func(*Rule) error { return nil })
}

func (w *Workspace) update(slug, op string, fn func(*Rule) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	rule, ok := w.rules[slug]
	if !ok {
		return notFound(slug, op)
	}
	if err := fn(rule); err != nil {
		return &RuleError{Slug: slug, Op: op, Err: err}
	}
	rule.UpdatedAt = time.Now().UTC()
	return nil
}

func (w *Workspace) lookup(slug string) (*Rule, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	rule, ok := w.rules[slug]
	if !ok {
		return nil, notFound(slug, "lookup")
	}
	return rule, nil
}

// Test runs the rule's tests against its table. Test solves are not
// recorded in the decision log.
func (w *Workspace) Test(ctx context.Context, slug string) (*ruletest.Report, error) {
	rule, err := w.lookup(slug)
	if err != nil {
		return nil, err
	}
	return ruletest.Run(ctx, rule.Table, rule.Tests), nil
}

// Reopen returns a published rule to PENDING so it can be edited.
func (w *Workspace) Reopen(slug string) error {
	return w.update(slug, "reopen", func(rule *Rule) error {
		rule.Table.Reopen()
		return nil
	})
}

// IsReferenced reports whether any rule's table references the Dynamic
// Value called name.
func (w *Workspace) IsReferenced(name string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	for _, rule := range w.rules {
		if rule.Table.IsReferenced(name) {
			return true
		}
	}
	return false
}

// SetValue creates or replaces a Dynamic Value.
func (w *Workspace) SetValue(ctx context.Context, name string, value any) (*dynamic.Value, error) {
	v, err := w.store.Set(ctx, name, value)
	if err != nil {
		return nil, err
	}
	w.logger.InfoContext(ctx, "dynamic value set", "name", name, "type", v.Type)
	return v, nil
}

// GetValue returns a Dynamic Value.
func (w *Workspace) GetValue(ctx context.Context, name string) (*dynamic.Value, error) {
	return w.store.Get(ctx, name)
}

// Values lists every Dynamic Value.
func (w *Workspace) Values(ctx context.Context) ([]*dynamic.Value, error) {
	return w.store.List(ctx)
}

// DeleteValue removes a Dynamic Value. It fails while any rule references it.
// Edits and loads that bind to values wait until the delete is done.
func (w *Workspace) DeleteValue(ctx context.Context, name string) error {
	w.valuesMu.Lock()
	defer w.valuesMu.Unlock()

	if err := w.store.Delete(ctx, name); err != nil {
		return err
	}
	w.logger.InfoContext(ctx, "dynamic value deleted", "name", name)
	return nil
}

// Versions lists the published versions of a rule.
func (w *Workspace) Versions(ctx context.Context, slug string) ([]*Version, error) {
	return w.repo.Versions(ctx, slug)
}

// LastLoad returns when the workspace was last loaded and the error of the
// last failed load, if it failed.
func (w *Workspace) LastLoad() (time.Time, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastLoadTime, w.lastLoadError
}

// Ping checks the value store and the repository. It backs the readiness probe.
func (w *Workspace) Ping(ctx context.Context) error {
	if _, err := w.store.List(ctx); err != nil {
		return fmt.Errorf("value store: %w", err)
	}
	if err := w.repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository: %w", err)
	}
	return nil
}

func solveStatus(d *table.Decision, err error) string {
	switch {
	case err == nil && d.Fallback:
		return metrics.StatusFallback
	case err == nil:
		return metrics.StatusSuccess
	case errors.Is(err, table.ErrNoMatch):
		return metrics.StatusNoMatch
	default:
		return metrics.StatusError
	}
}

// observe counts a solve and records it to the decision log.
func (w *Workspace) observe(ctx context.Context, rule *Rule, req table.Request, d *table.Decision, err error, batchID string, elapsed time.Duration) {
	rowID := ""
	if d != nil {
		rowID = d.RowID
		elapsed = d.Duration
	}
	w.metrics.RecordSolve(rule.Slug, solveStatus(d, err), rowID, elapsed)

	if w.recorder == nil {
		return
	}
	rec := recorder.NewRecord(rule.Slug, rule.Version, req, d, err)
	rec.BatchID = batchID
	if rec.Duration == 0 {
		rec.Duration = elapsed
	}
	if rerr := w.recorder.Record(ctx, rec); rerr != nil {
		if errors.Is(rerr, decisionlog.ErrBufferFull) {
			w.metrics.RecordDecisionDropped()
			return
		}
		w.logger.WarnContext(ctx, "failed to record decision", "error", rerr)
	}
}
