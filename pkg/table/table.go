package table

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Table is a decision table. It is safe for concurrent use: Solve reads an
// immutable snapshot and never blocks, while edits are serialized and swap
// in a new snapshot only when they succeed.
type Table struct {
	// name identifies the table in errors, logs and renders
	name string

	// description is free text
	description string

	// resolver resolves Dynamic Value references
	resolver Resolver

	// logger for structured logging
	logger *slog.Logger

	// mu serializes writers
	mu sync.Mutex

	// current is the snapshot readers evaluate against
	current atomic.Pointer[snapshot]
}

// snapshot is an immutable view of a table. A new snapshot is built for
// every committed change.
type snapshot struct {
	registry *Registry
	rows     []Row
	settings Settings
	state    State
	revision int64
}

// Option configures a Table.
type Option func(*options)

type options struct {
	resolver    Resolver
	logger      *slog.Logger
	settings    *Settings
	description string
}

// WithResolver sets the resolver used for Dynamic Value references.
func WithResolver(r Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSettings sets the initial table settings. The settings are copied.
func WithSettings(s *Settings) Option {
	return func(o *options) { o.settings = s }
}

// WithDescription sets the table description.
func WithDescription(d string) Option {
	return func(o *options) { o.description = d }
}

// New creates an empty PENDING table.
func New(name string, opts ...Option) *Table {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default().With("component", "table")
	}
	settings := DefaultSettings()
	if o.settings != nil {
		copied := *o.settings
		settings = &copied
	}

	t := &Table{
		name:        name,
		description: o.description,
		resolver:    o.resolver,
		logger:      o.logger,
	}
	t.current.Store(&snapshot{
		registry: NewRegistry(),
		settings: *settings,
		state:    StatePending,
	})
	return t
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.name
}

// Description returns the table description.
func (t *Table) Description() string {
	return t.description
}

// Resolver returns the resolver used for Dynamic Value references.
func (t *Table) Resolver() Resolver {
	return t.resolver
}

// State returns the lifecycle state.
func (t *Table) State() State {
	return t.current.Load().state
}

// Revision returns a counter incremented by every committed edit.
func (t *Table) Revision() int64 {
	return t.current.Load().revision
}

// Settings returns a copy of the table settings.
func (t *Table) Settings() Settings {
	return t.current.Load().settings
}

// Registry returns a copy of the field registry.
func (t *Table) Registry() *Registry {
	return t.current.Load().registry.clone()
}

// Rows returns a copy of the rows in evaluation order.
func (t *Table) Rows() []Row {
	return cloneRows(t.current.Load().rows)
}

// Row returns the row with the given ID and its index.
func (t *Table) Row(id string) (Row, int, bool) {
	for i, r := range t.current.Load().rows {
		if r.ID == id {
			return r.clone(), i, true
		}
	}
	return Row{}, -1, false
}

// References returns the sorted, unique Dynamic Value names used by any predicate.
func (t *Table) References() []string {
	seen := make(map[string]struct{})
	for _, r := range t.current.Load().rows {
		for _, name := range r.References() {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsReferenced reports whether any predicate references the named Dynamic Value.
func (t *Table) IsReferenced(name string) bool {
	for _, r := range t.current.Load().rows {
		for _, ref := range r.References() {
			if ref == name {
				return true
			}
		}
	}
	return false
}

// Solve evaluates a request and returns the outcome of the first matching row.
func (t *Table) Solve(ctx context.Context, req Request) (*Decision, error) {
	return t.solve(ctx, t.current.Load(), req)
}

func (t *Table) solve(ctx context.Context, s *snapshot, req Request) (*Decision, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	values, err := t.prepare(s, req)
	if err != nil {
		return nil, err
	}

	for i, row := range s.rows {
		matched, err := t.matchRow(ctx, s, i, row, values)
		if err != nil {
			t.logger.Debug("solve failed", "table", t.name, "row_index", i, "error", err)
			return nil, err
		}
		if !matched {
			continue
		}

		decision := &Decision{
			Table:    t.name,
			Response: decide(s.registry, row.Outcome),
			RowID:    row.ID,
			RowIndex: i,
			Fallback: row.IsFallback(),
			Duration: time.Since(start),
		}
		t.logger.Debug("table solved",
			"table", t.name,
			"row_id", row.ID,
			"row_index", i,
			"fallback", decision.Fallback,
			"duration", decision.Duration,
		)
		return decision, nil
	}

	return nil, &NoMatchError{Table: t.name, Rows: len(s.rows)}
}

// prepare applies the schema step and returns one value per declared input.
func (t *Table) prepare(s *snapshot, req Request) (map[string]any, error) {
	var problems []string

	if s.settings.SchemaValidation {
		var unknown []string
		for name := range req {
			if _, ok := s.registry.Input(name); !ok {
				unknown = append(unknown, name)
			}
		}
		sort.Strings(unknown)
		for _, name := range unknown {
			problems = append(problems, fmt.Sprintf("unknown field %q", name))
		}
	}

	values := make(map[string]any, len(s.registry.inputs))
	for _, f := range s.registry.inputs {
		v, present := req[f.Name]
		if !present || v == nil {
			if s.settings.RequireAllProperties {
				problems = append(problems, fmt.Sprintf("missing required field %q", f.Name))
			}
			values[f.Name] = f.Default
			continue
		}

		normalized, ok := NormalizeValue(f.Type, v)
		if !ok {
			if s.settings.SchemaValidation {
				problems = append(problems, fmt.Sprintf("field %q: expected %s, got %s", f.Name, f.Type, TypeName(v)))
			}
			// Evaluation reports the mismatch if a predicate reads the field.
			values[f.Name] = v
			continue
		}
		values[f.Name] = normalized
	}

	if len(problems) > 0 {
		return nil, &SchemaValidationError{Table: t.name, Problems: problems}
	}
	return values, nil
}

// matchRow evaluates one row. ALL short-circuits on the first false
// predicate and ANY on the first true one.
func (t *Table) matchRow(ctx context.Context, s *snapshot, idx int, row Row, values map[string]any) (bool, error) {
	if row.IsFallback() {
		return true, nil
	}

	anyOf := row.combinator() == CombinatorAny
	for _, p := range row.Predicates {
		field, ok := s.registry.Input(p.field)
		if !ok {
			return false, &EvaluationError{
				Table: t.name, RowID: row.ID, RowIndex: idx, Field: p.field, Operator: p.op,
				Cause: &FieldNotFoundError{Side: sideInput, FieldName: p.field},
			}
		}

		holds, err := p.Evaluate(ctx, field, values[p.field], t.resolver)
		if err != nil {
			return false, &EvaluationError{
				Table: t.name, RowID: row.ID, RowIndex: idx, Field: p.field, Operator: p.op,
				Cause: err,
			}
		}
		if anyOf && holds {
			return true, nil
		}
		if !anyOf && !holds {
			return false, nil
		}
	}
	return !anyOf, nil
}

// decide merges an outcome over the output defaults.
func decide(reg *Registry, outcome Outcome) Response {
	resp := reg.Defaults()
	for k, v := range outcome {
		resp[k] = v
	}
	return resp
}

// Validate checks the table structure, resolves and type-checks every
// reference and moves the table to VALID. On failure the state is unchanged.
func (t *Table) Validate(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.current.Load()
	if s.state == StatePublished {
		return nil
	}

	if err := s.settings.Validate(); err != nil {
		return err
	}
	if err := checkStructure(t.name, s.rows); err != nil {
		return err
	}
	if s.settings.RequireFallback && (len(s.rows) == 0 || !s.rows[len(s.rows)-1].IsFallback()) {
		return &InvalidTableStructureError{Table: t.name, RowIndex: -1, Reason: "table has no fallback row"}
	}

	for i, row := range s.rows {
		for _, p := range row.Predicates {
			if err := t.bindPredicate(ctx, s.registry, p); err != nil {
				return &EvaluationError{Table: t.name, RowID: row.ID, RowIndex: i, Field: p.field, Operator: p.op, Cause: err}
			}
		}
	}

	next := *s
	next.state = StateValid
	t.current.Store(&next)
	t.logger.Info("table validated", "table", t.name, "revision", s.revision, "rows", len(s.rows))
	return nil
}

// MarkPublished moves a VALID table to PUBLISHED.
func (t *Table) MarkPublished() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.current.Load()
	switch s.state {
	case StatePublished:
		return nil
	case StateValid:
	default:
		return fmt.Errorf("table %q: %w", t.name, ErrNotValidated)
	}

	next := *s
	next.state = StatePublished
	t.current.Store(&next)
	t.logger.Info("table published", "table", t.name, "revision", s.revision)
	return nil
}

// Reopen returns a published table to PENDING so it can be edited.
func (t *Table) Reopen() {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.current.Load()
	if s.state != StatePublished {
		return
	}
	next := *s
	next.state = StatePending
	t.current.Store(&next)
	t.logger.Info("table reopened", "table", t.name, "revision", s.revision)
}

// checkStructure enforces the fallback invariant: at most one row without
// predicates, and only in the last position.
func checkStructure(name string, rows []Row) error {
	seen := make(map[string]struct{}, len(rows))
	fallbacks := 0
	for i, r := range rows {
		if _, dup := seen[r.ID]; dup {
			return &InvalidTableStructureError{Table: name, RowID: r.ID, RowIndex: i, Reason: "duplicate row id"}
		}
		seen[r.ID] = struct{}{}

		if !r.IsFallback() {
			continue
		}
		fallbacks++
		if fallbacks > 1 {
			return &InvalidTableStructureError{Table: name, RowID: r.ID, RowIndex: i, Reason: "table has more than one fallback row"}
		}
		if i != len(rows)-1 {
			return &InvalidTableStructureError{Table: name, RowID: r.ID, RowIndex: i, Reason: "fallback row must be the last row"}
		}
	}
	return nil
}

// bindRow checks a row against the registry and returns it with a
// normalized outcome.
func (t *Table) bindRow(ctx context.Context, reg *Registry, row Row) (Row, error) {
	bound := row.clone()
	if bound.Combinator == "" {
		bound.Combinator = CombinatorAll
	}
	if bound.Combinator != CombinatorAll && bound.Combinator != CombinatorAny {
		return Row{}, &InvalidTableStructureError{Table: t.name, RowID: row.ID, RowIndex: -1, Reason: "unknown combinator " + string(row.Combinator)}
	}

	fields := make(map[string]struct{}, len(bound.Predicates))
	for _, p := range bound.Predicates {
		if _, dup := fields[p.field]; dup {
			return Row{}, &InvalidTableStructureError{Table: t.name, RowID: row.ID, RowIndex: -1, Reason: fmt.Sprintf("field %q has more than one predicate", p.field)}
		}
		fields[p.field] = struct{}{}
		if err := t.bindPredicate(ctx, reg, p); err != nil {
			return Row{}, err
		}
	}

	outcome, err := bindOutcome(reg, bound.Outcome)
	if err != nil {
		return Row{}, err
	}
	bound.Outcome = outcome
	return bound, nil
}

// bindPredicate checks the field, operator and operands of a predicate.
// References are resolved through the table resolver.
func (t *Table) bindPredicate(ctx context.Context, reg *Registry, p Predicate) error {
	field, ok := reg.Input(p.field)
	if !ok {
		return &FieldNotFoundError{Side: sideInput, FieldName: p.field}
	}
	if !Supports(field.Type, p.op) {
		return &UnsupportedOperatorError{Field: field.Name, Type: field.Type, Operator: p.op}
	}
	if err := p.checkArity(); err != nil {
		return err
	}
	for _, o := range p.operands {
		if _, err := resolveOperand(ctx, field, o, t.resolver); err != nil {
			return err
		}
	}
	return nil
}

// bindOutcome checks that every key is a declared output of the right type.
func bindOutcome(reg *Registry, outcome Outcome) (Outcome, error) {
	bound := make(Outcome, len(outcome))
	for name, v := range outcome {
		field, ok := reg.Output(name)
		if !ok {
			return nil, &FieldNotFoundError{Side: sideOutput, FieldName: name}
		}
		normalized, ok := NormalizeValue(field.Type, v)
		if !ok {
			return nil, &TypeMismatchError{FieldName: name, ExpectedType: field.Type, ActualType: TypeName(v), Source: "outcome"}
		}
		bound[name] = normalized
	}
	return bound, nil
}

func cloneRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = r.clone()
	}
	return out
}
