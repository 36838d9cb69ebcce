package table

import (
	"context"
	"errors"
	"fmt"
)

// Resolver looks up Dynamic Values by name. Implementations may be remote;
// the table calls Resolve for every reference on every evaluation and never
// caches the result. Unknown names must produce an error wrapping
// ErrUnknownReference.
type Resolver interface {
	Resolve(ctx context.Context, name string) (FieldType, any, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, name string) (FieldType, any, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, name string) (FieldType, any, error) {
	return f(ctx, name)
}

// StaticResolver resolves names from a map. Types are inferred from the values.
// It is not safe to modify the map while solves are running.
type StaticResolver map[string]any

// Resolve returns the value stored under name.
func (s StaticResolver) Resolve(_ context.Context, name string) (FieldType, any, error) {
	v, ok := s[name]
	if !ok {
		return "", nil, &UnknownReferenceError{Name: name}
	}
	typ, normalized, ok := InferType(v)
	if !ok {
		return "", nil, fmt.Errorf("dynamic value %q has unsupported type %T", name, v)
	}
	return typ, normalized, nil
}

// resolveOperand returns the operand value in the canonical form of field's type.
func resolveOperand(ctx context.Context, field Field, o Operand, resolver Resolver) (any, error) {
	if !o.IsRef() {
		v, ok := NormalizeValue(field.Type, o.literal)
		if !ok {
			return nil, &TypeMismatchError{FieldName: field.Name, ExpectedType: field.Type, ActualType: TypeName(o.literal), Source: "operand"}
		}
		return v, nil
	}

	if resolver == nil || o.ref == "" {
		return nil, &UnknownReferenceError{Name: o.ref, Field: field.Name}
	}

	typ, value, err := resolver.Resolve(ctx, o.ref)
	if err != nil {
		var unknown *UnknownReferenceError
		if errors.As(err, &unknown) || errors.Is(err, ErrUnknownReference) {
			return nil, &UnknownReferenceError{Name: o.ref, Field: field.Name}
		}
		return nil, fmt.Errorf("resolve dynamic value %q: %w", o.ref, err)
	}

	source := "$" + o.ref
	if typ != field.Type {
		return nil, &TypeMismatchError{FieldName: field.Name, ExpectedType: field.Type, ActualType: string(typ), Source: source}
	}
	v, ok := NormalizeValue(field.Type, value)
	if !ok {
		return nil, &TypeMismatchError{FieldName: field.Name, ExpectedType: field.Type, ActualType: TypeName(value), Source: source}
	}
	return v, nil
}
