package table

import (
	"fmt"
	"strconv"
	"strings"
)

// Operator is a typed comparison applied by a predicate.
type Operator string

const (
	// OpEquals matches a value equal to the operand.
	OpEquals Operator = "equals"

	// OpGreaterThan matches a number strictly greater than the operand.
	OpGreaterThan Operator = "greater_than"

	// OpLessThan matches a number strictly less than the operand.
	OpLessThan Operator = "less_than"

	// OpBetween matches a number within [low, high], both ends inclusive.
	OpBetween Operator = "between"

	// OpOneOf matches a value equal to any of the operands.
	OpOneOf Operator = "one_of"
)

// ParseOperator parses an operator name.
func ParseOperator(s string) (Operator, error) {
	switch op := Operator(strings.ToLower(strings.TrimSpace(s))); op {
	case OpEquals, OpGreaterThan, OpLessThan, OpBetween, OpOneOf:
		return op, nil
	default:
		return "", fmt.Errorf("%w: unknown operator %q", ErrUnsupportedOperator, s)
	}
}

// supportedOperators lists the operators each field type accepts.
var supportedOperators = map[FieldType][]Operator{
	TypeNumber:  {OpEquals, OpGreaterThan, OpLessThan, OpBetween, OpOneOf},
	TypeBoolean: {OpEquals},
	TypeString:  {OpEquals, OpOneOf},
}

// Supports reports whether op can be applied to fields of type t.
func Supports(t FieldType, op Operator) bool {
	for _, candidate := range supportedOperators[t] {
		if candidate == op {
			return true
		}
	}
	return false
}

// Operand is either a literal value or a reference to a named Dynamic Value.
// References are resolved on every evaluation.
type Operand struct {
	literal any
	ref     string
	isRef   bool
}

// Ref returns an operand that refers to the Dynamic Value called name. An
// empty name never resolves.
func Ref(name string) Operand {
	return Operand{ref: name, isRef: true}
}

// Lit returns a literal operand.
func Lit(v any) Operand {
	return Operand{literal: v}
}

// IsRef reports whether the operand is a Dynamic Value reference.
func (o Operand) IsRef() bool {
	return o.isRef
}

// RefName returns the referenced Dynamic Value name, or "" for literals.
func (o Operand) RefName() string {
	return o.ref
}

// Literal returns the literal value, or nil for references.
func (o Operand) Literal() any {
	return o.literal
}

// Equal reports whether two operands are the same reference or equal literals.
func (o Operand) Equal(other Operand) bool {
	if o.IsRef() || other.IsRef() {
		return o.IsRef() == other.IsRef() && o.ref == other.ref
	}
	ta, va, okA := InferType(o.literal)
	tb, vb, okB := InferType(other.literal)
	if !okA || !okB {
		return o.literal == other.literal
	}
	return ta == tb && va == vb
}

// String renders references as $name and string literals quoted.
func (o Operand) String() string {
	if o.IsRef() {
		return "$" + o.ref
	}
	return formatValue(o.literal)
}

func toOperand(v any) Operand {
	if o, ok := v.(Operand); ok {
		return o
	}
	return Operand{literal: v}
}

// Predicate is an immutable typed comparison bound to one input field.
type Predicate struct {
	field    string
	op       Operator
	operands []Operand
}

// Equals matches when the field equals v. v may be a literal or a Ref.
func Equals(field string, v any) Predicate {
	return Predicate{field: field, op: OpEquals, operands: []Operand{toOperand(v)}}
}

// GreaterThan matches when the numeric field is strictly greater than v.
func GreaterThan(field string, v any) Predicate {
	return Predicate{field: field, op: OpGreaterThan, operands: []Operand{toOperand(v)}}
}

// LessThan matches when the numeric field is strictly less than v.
func LessThan(field string, v any) Predicate {
	return Predicate{field: field, op: OpLessThan, operands: []Operand{toOperand(v)}}
}

// Between matches when low <= field <= high. Bounds are resolved at
// evaluation time, so a Ref bound follows its Dynamic Value.
func Between(field string, low, high any) Predicate {
	return Predicate{field: field, op: OpBetween, operands: []Operand{toOperand(low), toOperand(high)}}
}

// OneOf matches when the field equals any of vs.
func OneOf(field string, vs ...any) Predicate {
	operands := make([]Operand, len(vs))
	for i, v := range vs {
		operands[i] = toOperand(v)
	}
	return Predicate{field: field, op: OpOneOf, operands: operands}
}

// NewPredicate builds a predicate from parts, checking the operand count.
func NewPredicate(field string, op Operator, operands ...Operand) (Predicate, error) {
	p := Predicate{field: field, op: op, operands: append([]Operand(nil), operands...)}
	if err := p.checkArity(); err != nil {
		return Predicate{}, err
	}
	return p, nil
}

// Field returns the input field the predicate is bound to.
func (p Predicate) Field() string {
	return p.field
}

// Operator returns the comparison operator.
func (p Predicate) Operator() Operator {
	return p.op
}

// Operands returns a copy of the operands.
func (p Predicate) Operands() []Operand {
	return append([]Operand(nil), p.operands...)
}

// References returns the Dynamic Value names used by the predicate.
func (p Predicate) References() []string {
	var names []string
	for _, o := range p.operands {
		if o.IsRef() {
			names = append(names, o.ref)
		}
	}
	return names
}

// Equal reports whether two predicates have the same field, operator and operands.
func (p Predicate) Equal(other Predicate) bool {
	if p.field != other.field || p.op != other.op || len(p.operands) != len(other.operands) {
		return false
	}
	for i := range p.operands {
		if !p.operands[i].Equal(other.operands[i]) {
			return false
		}
	}
	return true
}

// Condition renders the predicate without its field name, e.g. "between 18 and 35".
func (p Predicate) Condition() string {
	switch p.op {
	case OpEquals:
		return "= " + p.operandString(0)
	case OpGreaterThan:
		return "> " + p.operandString(0)
	case OpLessThan:
		return "< " + p.operandString(0)
	case OpBetween:
		return "between " + p.operandString(0) + " and " + p.operandString(1)
	case OpOneOf:
		parts := make([]string, len(p.operands))
		for i, o := range p.operands {
			parts[i] = o.String()
		}
		return "one of [" + strings.Join(parts, ", ") + "]"
	default:
		return string(p.op)
	}
}

// String renders the predicate with its field name.
func (p Predicate) String() string {
	return p.field + " " + p.Condition()
}

func (p Predicate) operandString(i int) string {
	if i >= len(p.operands) {
		return "?"
	}
	return p.operands[i].String()
}

func (p Predicate) checkArity() error {
	want := 0
	switch p.op {
	case OpEquals, OpGreaterThan, OpLessThan:
		want = 1
	case OpBetween:
		want = 2
	case OpOneOf:
		if len(p.operands) == 0 {
			return fmt.Errorf("field %q: one_of requires at least one operand", p.field)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown operator %q on field %q", ErrUnsupportedOperator, p.op, p.field)
	}
	if len(p.operands) != want {
		return fmt.Errorf("field %q: %s requires %d operands, got %d", p.field, p.op, want, len(p.operands))
	}
	return nil
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return strconv.Quote(val)
	case nil:
		return "null"
	}
	if f, ok := toFloat64(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprintf("%v", v)
}
