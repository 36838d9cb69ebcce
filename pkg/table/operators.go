package table

import (
	"context"
	"fmt"
)

// Evaluate applies the predicate to a request value of the given field.
// Reference operands are resolved through resolver on every call.
func (p Predicate) Evaluate(ctx context.Context, field Field, value any, resolver Resolver) (bool, error) {
	if !Supports(field.Type, p.op) {
		return false, &UnsupportedOperatorError{Field: field.Name, Type: field.Type, Operator: p.op}
	}
	if err := p.checkArity(); err != nil {
		return false, err
	}

	actual, ok := NormalizeValue(field.Type, value)
	if !ok {
		return false, &TypeMismatchError{FieldName: field.Name, ExpectedType: field.Type, ActualType: TypeName(value), Source: "request"}
	}

	operands := make([]any, len(p.operands))
	for i, o := range p.operands {
		v, err := resolveOperand(ctx, field, o, resolver)
		if err != nil {
			return false, err
		}
		operands[i] = v
	}

	return evaluateOperator(p.op, actual, operands)
}

// evaluateOperator compares a normalized value with normalized operands.
func evaluateOperator(op Operator, actual any, operands []any) (bool, error) {
	switch op {
	case OpEquals:
		return actual == operands[0], nil

	case OpGreaterThan:
		a, b, err := numericPair(actual, operands[0])
		if err != nil {
			return false, err
		}
		return a > b, nil

	case OpLessThan:
		a, b, err := numericPair(actual, operands[0])
		if err != nil {
			return false, err
		}
		return a < b, nil

	case OpBetween:
		return evaluateBetween(actual, operands[0], operands[1])

	case OpOneOf:
		for _, candidate := range operands {
			if actual == candidate {
				return true, nil
			}
		}
		return false, nil

	default:
		return false, fmt.Errorf("%w: unknown operator %q", ErrUnsupportedOperator, op)
	}
}

// evaluateBetween checks low <= actual <= high.
func evaluateBetween(actual, low, high any) (bool, error) {
	v, lo, err := numericPair(actual, low)
	if err != nil {
		return false, err
	}
	hi, ok := high.(float64)
	if !ok {
		return false, fmt.Errorf("between upper bound is %T, not a number", high)
	}
	return lo <= v && v <= hi, nil
}

func numericPair(a, b any) (float64, float64, error) {
	x, ok := a.(float64)
	if !ok {
		return 0, 0, fmt.Errorf("value is %T, not a number", a)
	}
	y, ok := b.(float64)
	if !ok {
		return 0, 0, fmt.Errorf("operand is %T, not a number", b)
	}
	return x, y, nil
}
