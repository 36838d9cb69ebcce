package dynamic

import (
	"context"
	"errors"

	"mercator-hq/verdict/pkg/table"
)

// NewResolver adapts a Store to table.Resolver. Every Resolve call reads the
// store; nothing is cached.
func NewResolver(store Store) table.Resolver {
	return table.ResolverFunc(func(ctx context.Context, name string) (table.FieldType, any, error) {
		v, err := store.Get(ctx, name)
		if err != nil {
			if errors.Is(err, ErrValueNotFound) {
				return "", nil, &table.UnknownReferenceError{Name: name}
			}
			return "", nil, err
		}
		return v.Type, v.Value, nil
	})
}
