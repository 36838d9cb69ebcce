package workspace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mercator-hq/verdict/pkg/tablefile"
)

// Load replaces the workspace with the latest published version of every
// rule in the repository. On error the current rules are kept.
func (w *Workspace) Load(ctx context.Context) error {
	w.valuesMu.RLock()
	defer w.valuesMu.RUnlock()

	versions, err := w.repo.Latest(ctx)
	if err != nil {
		return w.loadFailed(ctx, err)
	}

	rules := make(map[string]*Rule, len(versions))
	for _, v := range versions {
		doc, err := tablefile.Parse([]byte(v.Document), fmt.Sprintf("%s@v%d", v.Slug, v.Version))
		if err != nil {
			return w.loadFailed(ctx, err)
		}
		doc.Slug = v.Slug

		rule, err := w.build(ctx, doc)
		if err != nil {
			return w.loadFailed(ctx, err)
		}
		if err := rule.Table.MarkPublished(); err != nil {
			return w.loadFailed(ctx, &RuleError{Slug: v.Slug, Op: "load", Err: err})
		}
		rule.Version = v.Version
		rule.UpdatedAt = v.PublishedAt
		rules[v.Slug] = rule
	}

	w.replace(ctx, rules, "repository")
	return nil
}

// LoadDocuments replaces the workspace with rules built from docs. Values
// seeded by the documents are written to the store first, then every table
// is built and validated; if any of them fails the current rules are kept.
// Rules keep their ID and published version across reloads.
func (w *Workspace) LoadDocuments(ctx context.Context, docs []*tablefile.Document) error {
	w.valuesMu.RLock()
	defer w.valuesMu.RUnlock()

	for _, doc := range docs {
		if err := doc.SeedValues(ctx, w.store); err != nil {
			return w.loadFailed(ctx, err)
		}
	}

	rules := make(map[string]*Rule, len(docs))
	var errs []error
	for _, doc := range docs {
		if _, dup := rules[doc.Slug]; dup {
			errs = append(errs, &RuleError{Slug: doc.Slug, Op: "load", Err: ErrRuleExists})
			continue
		}
		rule, err := w.build(ctx, doc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rules[doc.Slug] = rule
	}
	if len(errs) > 0 {
		return w.loadFailed(ctx, errors.Join(errs...))
	}

	w.replace(ctx, rules, "documents")
	return nil
}

// LoadDir loads every table document under dir. It is the reload callback
// for the file watcher and the git poller.
func (w *Workspace) LoadDir(ctx context.Context, dir string) error {
	docs, err := tablefile.LoadDir(dir)
	if err != nil {
		return w.loadFailed(ctx, err)
	}
	return w.LoadDocuments(ctx, docs)
}

// build turns a document into a validated rule.
func (w *Workspace) build(ctx context.Context, doc *tablefile.Document) (*Rule, error) {
	t, err := doc.BuildWithSettings(ctx, w.resolver, w.settings, w.logger.With("table", doc.Name))
	if err != nil {
		return nil, err
	}
	if err := t.Validate(ctx); err != nil {
		return nil, &RuleError{Slug: doc.Slug, Op: "validate", Err: err}
	}
	return &Rule{
		Slug:              doc.Slug,
		Name:              doc.Name,
		Description:       doc.Description,
		Folder:            doc.Folder,
		ContinuousTesting: doc.ContinuousTesting,
		Table:             t,
		Tests:             doc.Tests,
		UpdatedAt:         time.Now().UTC(),
	}, nil
}

func (w *Workspace) replace(ctx context.Context, rules map[string]*Rule, source string) {
	w.mu.Lock()
	for slug, rule := range rules {
		if prev, ok := w.rules[slug]; ok {
			rule.ID = prev.ID
			if rule.Version == 0 {
				rule.Version = prev.Version
			}
		} else {
			rule.ID = uuid.Must(uuid.NewV7()).String()
		}
	}
	w.rules = rules
	w.lastLoadTime = time.Now()
	w.lastLoadError = nil
	w.mu.Unlock()

	w.metrics.SetRulesLoaded(len(rules))
	w.logger.InfoContext(ctx, "workspace loaded", "source", source, "rules", len(rules))
}

func (w *Workspace) loadFailed(ctx context.Context, err error) error {
	w.mu.Lock()
	w.lastLoadError = err
	w.mu.Unlock()

	w.logger.ErrorContext(ctx, "failed to load workspace, keeping current rules", "error", err)
	return err
}

// Import adds or replaces one rule from a document without touching the
// others. It is used to publish a single table file.
func (w *Workspace) Import(ctx context.Context, doc *tablefile.Document) (*Rule, error) {
	w.valuesMu.RLock()
	defer w.valuesMu.RUnlock()

	if err := doc.SeedValues(ctx, w.store); err != nil {
		return nil, err
	}
	rule, err := w.build(ctx, doc)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	if prev, ok := w.rules[rule.Slug]; ok {
		rule.ID = prev.ID
		rule.Version = prev.Version
	} else {
		rule.ID = uuid.Must(uuid.NewV7()).String()
	}
	w.rules[rule.Slug] = rule
	n := len(w.rules)
	w.mu.Unlock()

	w.metrics.SetRulesLoaded(n)
	c := *rule
	return &c, nil
}
