package table

// Row is a condition row: predicates combined with ALL or ANY and the outcome
// applied when they match. A row without predicates is the fallback row.
type Row struct {
	// ID is assigned when the row is added to a table and never changes.
	ID string `json:"id"`

	// Description is free text shown in renders and logs.
	Description string `json:"description,omitempty"`

	// Combinator aggregates the predicates. Empty means ALL.
	Combinator Combinator `json:"combinator"`

	// Predicates are evaluated in order, at most one per input field.
	Predicates []Predicate `json:"-"`

	// Outcome assigns output fields when the row matches.
	Outcome Outcome `json:"outcome"`
}

// All builds a row that matches when every predicate holds.
func All(preds ...Predicate) Row {
	return Row{Combinator: CombinatorAll, Predicates: preds}
}

// Any builds a row that matches when at least one predicate holds.
func Any(preds ...Predicate) Row {
	return Row{Combinator: CombinatorAny, Predicates: preds}
}

// Fallback builds a row with no predicates. It always matches.
func Fallback() Row {
	return Row{Combinator: CombinatorAll}
}

// Then sets the outcome of the row.
func (r Row) Then(outcome Outcome) Row {
	r.Outcome = outcome
	return r
}

// WithDescription sets the description of the row.
func (r Row) WithDescription(description string) Row {
	r.Description = description
	return r
}

// IsFallback reports whether the row has no predicates.
func (r Row) IsFallback() bool {
	return len(r.Predicates) == 0
}

// Predicate returns the predicate bound to field, if any.
func (r Row) Predicate(field string) (Predicate, bool) {
	for _, p := range r.Predicates {
		if p.field == field {
			return p, true
		}
	}
	return Predicate{}, false
}

// References returns the Dynamic Value names used by the row's predicates.
func (r Row) References() []string {
	var names []string
	for _, p := range r.Predicates {
		names = append(names, p.References()...)
	}
	return names
}

func (r Row) clone() Row {
	c := r
	c.Predicates = append([]Predicate(nil), r.Predicates...)
	if r.Outcome != nil {
		c.Outcome = make(Outcome, len(r.Outcome))
		for k, v := range r.Outcome {
			c.Outcome[k] = v
		}
	}
	return c
}

func (r Row) combinator() Combinator {
	if r.Combinator == "" {
		return CombinatorAll
	}
	return r.Combinator
}
