package dynamic

import (
	"errors"
	"fmt"
)

// Common sentinel errors.
var (
	// ErrValueNotFound indicates no Dynamic Value has the requested name.
	ErrValueNotFound = errors.New("dynamic value not found")

	// ErrStillReferenced indicates a delete of a value that a table still uses.
	ErrStillReferenced = errors.New("dynamic value is still referenced")

	// ErrInvalidName indicates a name that cannot be used as a reference.
	ErrInvalidName = errors.New("invalid dynamic value name")

	// ErrInvalidValue indicates a value that is not a number, boolean or string.
	ErrInvalidValue = errors.New("invalid dynamic value")
)

// NotFoundError indicates a missing Dynamic Value.
type NotFoundError struct {
	Name string
}

// Error returns the error message.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("dynamic value %q not found", e.Name)
}

// Unwrap returns ErrValueNotFound.
func (e *NotFoundError) Unwrap() error {
	return ErrValueNotFound
}

// ReferencedError indicates a value cannot be deleted while referenced.
type ReferencedError struct {
	Name string
}

// Error returns the error message.
func (e *ReferencedError) Error() string {
	return fmt.Sprintf("cannot delete dynamic value %q: still referenced by a table", e.Name)
}

// Unwrap returns ErrStillReferenced.
func (e *ReferencedError) Unwrap() error {
	return ErrStillReferenced
}

// InvalidNameError indicates a malformed value name.
type InvalidNameError struct {
	Name string
}

// Error returns the error message.
func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid dynamic value name %q: must start with a letter or underscore", e.Name)
}

// Unwrap returns ErrInvalidName.
func (e *InvalidNameError) Unwrap() error {
	return ErrInvalidName
}

// InvalidValueError indicates a value of an unsupported Go type.
type InvalidValueError struct {
	Name  string
	Value any
}

// Error returns the error message.
func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("dynamic value %q: unsupported type %T (expected number, boolean or string)", e.Name, e.Value)
}

// Unwrap returns ErrInvalidValue.
func (e *InvalidValueError) Unwrap() error {
	return ErrInvalidValue
}

// StorageError wraps a backend failure.
type StorageError struct {
	Backend   string
	Operation string
	Cause     error
}

// Error returns the error message.
func (e *StorageError) Error() string {
	return fmt.Sprintf("%s store %s failed: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *StorageError) Unwrap() error {
	return e.Cause
}
