package dynamic

import (
	"context"
	"regexp"
	"sync"
	"time"

	"mercator-hq/verdict/pkg/table"
)

// Value is a named, typed Dynamic Value.
type Value struct {
	Name      string          `json:"name" yaml:"name"`
	Type      table.FieldType `json:"type" yaml:"type"`
	Value     any             `json:"value" yaml:"value"`
	UpdatedAt time.Time       `json:"updated_at" yaml:"updated_at"`
}

// Store persists Dynamic Values.
type Store interface {
	// Get returns the value called name, or ErrValueNotFound.
	Get(ctx context.Context, name string) (*Value, error)

	// Set creates or replaces a value. The type is inferred from v.
	Set(ctx context.Context, name string, v any) (*Value, error)

	// Delete removes a value. It fails with a ReferencedError while the
	// configured ReferenceChecker reports the name as referenced.
	Delete(ctx context.Context, name string) error

	// List returns every value ordered by name.
	List(ctx context.Context) ([]*Value, error)

	// SetReferenceChecker installs the checker consulted by Delete.
	SetReferenceChecker(rc ReferenceChecker)

	// Close releases resources held by the store.
	Close() error
}

// ReferenceChecker reports whether any predicate references a Dynamic Value.
type ReferenceChecker interface {
	IsReferenced(name string) bool
}

// ReferenceCheckerFunc adapts a function to the ReferenceChecker interface.
type ReferenceCheckerFunc func(name string) bool

// IsReferenced calls f.
func (f ReferenceCheckerFunc) IsReferenced(name string) bool {
	return f(name)
}

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

// ValidateName checks that name can be used as a reference.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return &InvalidNameError{Name: name}
	}
	return nil
}

// newValue validates a name and value and builds a Value.
func newValue(name string, v any, now time.Time) (*Value, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	typ, normalized, ok := table.InferType(v)
	if !ok {
		return nil, &InvalidValueError{Name: name, Value: v}
	}
	return &Value{Name: name, Type: typ, Value: normalized, UpdatedAt: now}, nil
}

// guard holds the reference checker shared by the store implementations.
type guard struct {
	mu      sync.RWMutex
	checker ReferenceChecker
}

// SetReferenceChecker installs the checker consulted by Delete.
func (g *guard) SetReferenceChecker(rc ReferenceChecker) {
	g.mu.Lock()
	g.checker = rc
	g.mu.Unlock()
}

func (g *guard) checkUnreferenced(name string) error {
	g.mu.RLock()
	rc := g.checker
	g.mu.RUnlock()
	if rc != nil && rc.IsReferenced(name) {
		return &ReferencedError{Name: name}
	}
	return nil
}
