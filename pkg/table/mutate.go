package table

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Pattern is a partial predicate signature used by FindRows. An empty
// Operator or nil Operands act as wildcards.
type Pattern struct {
	Field    string
	Operator Operator
	Operands []Operand
}

// PatternOf returns a pattern that matches exactly the given predicate.
func PatternOf(p Predicate) Pattern {
	return Pattern{Field: p.field, Operator: p.op, Operands: p.Operands()}
}

// Matches reports whether the row has a predicate fitting the pattern.
func (pt Pattern) Matches(r Row) bool {
	p, ok := r.Predicate(pt.Field)
	if !ok {
		return false
	}
	if pt.Operator != "" && pt.Operator != p.op {
		return false
	}
	if pt.Operands == nil {
		return true
	}
	if len(pt.Operands) != len(p.operands) {
		return false
	}
	for i := range pt.Operands {
		if !pt.Operands[i].Equal(p.operands[i]) {
			return false
		}
	}
	return true
}

// FindRows returns the rows that fit every pattern, in table order. With no
// patterns every row is returned.
func (t *Table) FindRows(patterns ...Pattern) []Row {
	return findRows(t.current.Load().rows, patterns)
}

func findRows(rows []Row, patterns []Pattern) []Row {
	var found []Row
	for _, r := range rows {
		matched := true
		for _, pt := range patterns {
			if !pt.Matches(r) {
				matched = false
				break
			}
		}
		if matched {
			found = append(found, r.clone())
		}
	}
	return found
}

// Builder applies edits to a private copy of a table inside Edit.
type Builder struct {
	ctx      context.Context
	table    *Table
	registry *Registry
	rows     []Row
	settings Settings
}

// Edit runs fn against a copy of the table. The copy replaces the table only
// if fn returns nil and the result keeps the fallback invariant; otherwise
// the table is left exactly as it was. A committed edit moves the table to
// PENDING.
func (t *Table) Edit(ctx context.Context, fn func(b *Builder) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.current.Load()
	if cur.state == StatePublished {
		return fmt.Errorf("table %q: %w", t.name, ErrTablePublished)
	}

	b := &Builder{
		ctx:      ctx,
		table:    t,
		registry: cur.registry.clone(),
		rows:     cloneRows(cur.rows),
		settings: cur.settings,
	}
	if err := fn(b); err != nil {
		t.logger.Debug("edit discarded", "table", t.name, "error", err)
		return err
	}
	if err := checkStructure(t.name, b.rows); err != nil {
		t.logger.Debug("edit discarded", "table", t.name, "error", err)
		return err
	}

	next := &snapshot{
		registry: b.registry,
		rows:     b.rows,
		settings: b.settings,
		state:    StatePending,
		revision: cur.revision + 1,
	}
	t.current.Store(next)
	t.logger.Debug("edit committed", "table", t.name, "revision", next.revision, "rows", len(next.rows))
	return nil
}

// AddInput declares a request field.
func (b *Builder) AddInput(name string, typ FieldType, description string, def any) error {
	return b.registry.AddInput(name, typ, description, def)
}

// AddOutput declares a response field.
func (b *Builder) AddOutput(name string, typ FieldType, description string, def any) error {
	return b.registry.AddOutput(name, typ, description, def)
}

// UpdateSettings replaces the table settings.
func (b *Builder) UpdateSettings(s *Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	b.settings = *s
	return nil
}

// Rows returns the rows of the copy being edited.
func (b *Builder) Rows() []Row {
	return cloneRows(b.rows)
}

// FindRows returns the rows of the copy that fit every pattern.
func (b *Builder) FindRows(patterns ...Pattern) []Row {
	return findRows(b.rows, patterns)
}

// AppendRow adds a row at the end and returns its ID. A row without an ID
// gets a new one.
func (b *Builder) AppendRow(row Row) (string, error) {
	return b.InsertRow(len(b.rows), row)
}

// InsertRow adds a row at index and returns its ID.
func (b *Builder) InsertRow(index int, row Row) (string, error) {
	if index < 0 || index > len(b.rows) {
		return "", &InvalidTableStructureError{Table: b.table.name, RowIndex: -1, Reason: fmt.Sprintf("insert index %d out of range [0, %d]", index, len(b.rows))}
	}

	bound, err := b.table.bindRow(b.ctx, b.registry, row)
	if err != nil {
		return "", err
	}
	if bound.ID == "" {
		bound.ID = newRowID()
	}
	if _, exists := b.index(bound.ID); exists {
		return "", &InvalidTableStructureError{Table: b.table.name, RowID: bound.ID, RowIndex: index, Reason: "duplicate row id"}
	}

	b.rows = append(b.rows, Row{})
	copy(b.rows[index+1:], b.rows[index:])
	b.rows[index] = bound
	return bound.ID, nil
}

// RemoveRow deletes the row with the given ID.
func (b *Builder) RemoveRow(id string) error {
	i, ok := b.index(id)
	if !ok {
		return &RowNotFoundError{ID: id}
	}
	b.rows = append(b.rows[:i], b.rows[i+1:]...)
	return nil
}

// MoveRow moves the row with the given ID to position to.
func (b *Builder) MoveRow(id string, to int) error {
	i, ok := b.index(id)
	if !ok {
		return &RowNotFoundError{ID: id}
	}
	if to < 0 || to >= len(b.rows) {
		return &InvalidTableStructureError{Table: b.table.name, RowID: id, RowIndex: i, Reason: fmt.Sprintf("move target %d out of range [0, %d]", to, len(b.rows)-1)}
	}
	row := b.rows[i]
	b.rows = append(b.rows[:i], b.rows[i+1:]...)
	b.rows = append(b.rows, Row{})
	copy(b.rows[to+1:], b.rows[to:])
	b.rows[to] = row
	return nil
}

// ReplacePredicate replaces the predicate bound to field in the given row.
// If the row has no predicate for field, p is appended.
func (b *Builder) ReplacePredicate(id, field string, p Predicate) error {
	i, ok := b.index(id)
	if !ok {
		return &RowNotFoundError{ID: id}
	}

	row := b.rows[i].clone()
	replaced := false
	for j, existing := range row.Predicates {
		if existing.field == field {
			row.Predicates[j] = p
			replaced = true
			break
		}
	}
	if !replaced {
		row.Predicates = append(row.Predicates, p)
	}

	bound, err := b.table.bindRow(b.ctx, b.registry, row)
	if err != nil {
		return err
	}
	b.rows[i] = bound
	return nil
}

// RemovePredicate removes the predicate bound to field from the given row.
func (b *Builder) RemovePredicate(id, field string) error {
	i, ok := b.index(id)
	if !ok {
		return &RowNotFoundError{ID: id}
	}
	row := b.rows[i]
	for j, existing := range row.Predicates {
		if existing.field == field {
			row.Predicates = append(row.Predicates[:j:j], row.Predicates[j+1:]...)
			b.rows[i] = row
			return nil
		}
	}
	return &FieldNotFoundError{Side: sideInput, FieldName: field}
}

// ReplaceOutcome sets one outcome value of the given row.
func (b *Builder) ReplaceOutcome(id, field string, value any) error {
	i, ok := b.index(id)
	if !ok {
		return &RowNotFoundError{ID: id}
	}
	out, ok := b.registry.Output(field)
	if !ok {
		return &FieldNotFoundError{Side: sideOutput, FieldName: field}
	}
	v, ok := NormalizeValue(out.Type, value)
	if !ok {
		return &TypeMismatchError{FieldName: field, ExpectedType: out.Type, ActualType: TypeName(value), Source: "outcome"}
	}

	row := b.rows[i].clone()
	if row.Outcome == nil {
		row.Outcome = make(Outcome)
	}
	row.Outcome[field] = v
	b.rows[i] = row
	return nil
}

// SetCombinator changes how the given row aggregates its predicates.
func (b *Builder) SetCombinator(id string, c Combinator) error {
	i, ok := b.index(id)
	if !ok {
		return &RowNotFoundError{ID: id}
	}
	if c != CombinatorAll && c != CombinatorAny {
		return &InvalidTableStructureError{Table: b.table.name, RowID: id, RowIndex: i, Reason: "unknown combinator " + string(c)}
	}
	b.rows[i].Combinator = c
	return nil
}

// SetDescription changes the description of the given row.
func (b *Builder) SetDescription(id, description string) error {
	i, ok := b.index(id)
	if !ok {
		return &RowNotFoundError{ID: id}
	}
	b.rows[i].Description = description
	return nil
}

func (b *Builder) index(id string) (int, bool) {
	for i, r := range b.rows {
		if r.ID == id {
			return i, true
		}
	}
	return -1, false
}

// AddInput declares a request field in its own edit.
func (t *Table) AddInput(name string, typ FieldType, description string, def any) error {
	return t.Edit(context.Background(), func(b *Builder) error {
		return b.AddInput(name, typ, description, def)
	})
}

// AddOutput declares a response field in its own edit.
func (t *Table) AddOutput(name string, typ FieldType, description string, def any) error {
	return t.Edit(context.Background(), func(b *Builder) error {
		return b.AddOutput(name, typ, description, def)
	})
}

// UpdateSettings replaces the table settings in its own edit.
func (t *Table) UpdateSettings(s *Settings) error {
	return t.Edit(context.Background(), func(b *Builder) error {
		return b.UpdateSettings(s)
	})
}

// AppendRow appends a row in its own edit and returns its ID.
func (t *Table) AppendRow(ctx context.Context, row Row) (string, error) {
	var id string
	err := t.Edit(ctx, func(b *Builder) error {
		var err error
		id, err = b.AppendRow(row)
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// InsertRow inserts a row at index in its own edit and returns its ID.
func (t *Table) InsertRow(ctx context.Context, index int, row Row) (string, error) {
	var id string
	err := t.Edit(ctx, func(b *Builder) error {
		var err error
		id, err = b.InsertRow(index, row)
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// RemoveRow removes a row in its own edit.
func (t *Table) RemoveRow(id string) error {
	return t.Edit(context.Background(), func(b *Builder) error {
		return b.RemoveRow(id)
	})
}

// MoveRow moves a row in its own edit.
func (t *Table) MoveRow(id string, to int) error {
	return t.Edit(context.Background(), func(b *Builder) error {
		return b.MoveRow(id, to)
	})
}

// ReplacePredicate replaces a predicate in its own edit.
func (t *Table) ReplacePredicate(ctx context.Context, id, field string, p Predicate) error {
	return t.Edit(ctx, func(b *Builder) error {
		return b.ReplacePredicate(id, field, p)
	})
}

// ReplaceOutcome sets one outcome value in its own edit.
func (t *Table) ReplaceOutcome(id, field string, value any) error {
	return t.Edit(context.Background(), func(b *Builder) error {
		return b.ReplaceOutcome(id, field, value)
	})
}

// SetCombinator changes a row combinator in its own edit.
func (t *Table) SetCombinator(id string, c Combinator) error {
	return t.Edit(context.Background(), func(b *Builder) error {
		return b.SetCombinator(id, c)
	})
}

func newRowID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
