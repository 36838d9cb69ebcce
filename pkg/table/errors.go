package table

import (
	"errors"
	"fmt"
	"strings"
)

// Common sentinel errors. Every struct error below unwraps to one of these.
var (
	// ErrDuplicateField indicates a field name is already declared on that side.
	ErrDuplicateField = errors.New("duplicate field")

	// ErrInvalidType indicates an unknown field type.
	ErrInvalidType = errors.New("invalid field type")

	// ErrTypeMismatch indicates a value does not match a field's declared type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrSchemaValidation indicates a request failed schema validation.
	ErrSchemaValidation = errors.New("schema validation failed")

	// ErrNoMatch indicates no row matched and the table has no fallback.
	ErrNoMatch = errors.New("no matching row")

	// ErrUnknownReference indicates a Dynamic Value could not be resolved.
	ErrUnknownReference = errors.New("unknown dynamic value")

	// ErrInvalidTableStructure indicates the fallback invariant is violated.
	ErrInvalidTableStructure = errors.New("invalid table structure")

	// ErrUnsupportedOperator indicates an operator cannot apply to a field type.
	ErrUnsupportedOperator = errors.New("unsupported operator")

	// ErrFieldNotFound indicates a reference to an undeclared field.
	ErrFieldNotFound = errors.New("field not found")

	// ErrRowNotFound indicates a row ID that is not in the table.
	ErrRowNotFound = errors.New("row not found")

	// ErrTablePublished indicates an edit was attempted on a published table.
	ErrTablePublished = errors.New("table is published; reopen it before editing")

	// ErrInvalidSettings indicates invalid table settings.
	ErrInvalidSettings = errors.New("invalid table settings")

	// ErrNotValidated indicates a table must be validated before publishing.
	ErrNotValidated = errors.New("table has not been validated")
)

// DuplicateFieldError indicates a field was declared twice on the same side.
type DuplicateFieldError struct {
	Side string
	Name string
}

// Error returns the error message.
func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("duplicate %s field %q", e.Side, e.Name)
}

// Unwrap returns ErrDuplicateField.
func (e *DuplicateFieldError) Unwrap() error {
	return ErrDuplicateField
}

// InvalidTypeError indicates an unsupported field type.
type InvalidTypeError struct {
	Field string
	Type  string
}

// Error returns the error message.
func (e *InvalidTypeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("field %q: invalid type %q (expected number, boolean or string)", e.Field, e.Type)
	}
	return fmt.Sprintf("invalid type %q (expected number, boolean or string)", e.Type)
}

// Unwrap returns ErrInvalidType.
func (e *InvalidTypeError) Unwrap() error {
	return ErrInvalidType
}

// TypeMismatchError indicates a value whose type does not match the declared
// type of the field it is compared with or assigned to.
type TypeMismatchError struct {
	FieldName    string
	ExpectedType FieldType
	ActualType   string

	// Source names the offending value: "request", "default", "outcome",
	// "operand" or "$name" for a Dynamic Value.
	Source string
}

// Error returns the error message.
func (e *TypeMismatchError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("type mismatch for field %q (%s): expected %s, got %s", e.FieldName, e.Source, e.ExpectedType, e.ActualType)
	}
	return fmt.Sprintf("type mismatch for field %q: expected %s, got %s", e.FieldName, e.ExpectedType, e.ActualType)
}

// Unwrap returns ErrTypeMismatch.
func (e *TypeMismatchError) Unwrap() error {
	return ErrTypeMismatch
}

// SchemaValidationError lists every problem found in a request.
type SchemaValidationError struct {
	Table    string
	Problems []string
}

// Error returns the error message.
func (e *SchemaValidationError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("table %q: invalid request: %s", e.Table, e.Problems[0])
	}
	return fmt.Sprintf("table %q: %d request problems: %s", e.Table, len(e.Problems), strings.Join(e.Problems, "; "))
}

// Unwrap returns ErrSchemaValidation.
func (e *SchemaValidationError) Unwrap() error {
	return ErrSchemaValidation
}

// NoMatchError indicates that no row matched and no fallback row exists.
type NoMatchError struct {
	Table string
	Rows  int
}

// Error returns the error message.
func (e *NoMatchError) Error() string {
	return fmt.Sprintf("table %q: none of %d rows matched and no fallback row is defined", e.Table, e.Rows)
}

// Unwrap returns ErrNoMatch.
func (e *NoMatchError) Unwrap() error {
	return ErrNoMatch
}

// UnknownReferenceError indicates a Dynamic Value name the resolver does not know.
type UnknownReferenceError struct {
	Name  string
	Field string
}

// Error returns the error message.
func (e *UnknownReferenceError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("unknown dynamic value %q referenced by field %q", e.Name, e.Field)
	}
	return fmt.Sprintf("unknown dynamic value %q", e.Name)
}

// Unwrap returns ErrUnknownReference.
func (e *UnknownReferenceError) Unwrap() error {
	return ErrUnknownReference
}

// InvalidTableStructureError indicates a violation of the fallback invariant:
// at most one row without predicates, and only in the last position.
type InvalidTableStructureError struct {
	Table    string
	RowID    string
	RowIndex int
	Reason   string
}

// Error returns the error message.
func (e *InvalidTableStructureError) Error() string {
	if e.RowIndex >= 0 && e.RowID != "" {
		return fmt.Sprintf("table %q: row %d (%s): %s", e.Table, e.RowIndex, e.RowID, e.Reason)
	}
	return fmt.Sprintf("table %q: %s", e.Table, e.Reason)
}

// Unwrap returns ErrInvalidTableStructure.
func (e *InvalidTableStructureError) Unwrap() error {
	return ErrInvalidTableStructure
}

// UnsupportedOperatorError indicates an operator that a field type does not support.
type UnsupportedOperatorError struct {
	Field    string
	Type     FieldType
	Operator Operator
}

// Error returns the error message.
func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("operator %s is not supported for %s field %q", e.Operator, e.Type, e.Field)
}

// Unwrap returns ErrUnsupportedOperator.
func (e *UnsupportedOperatorError) Unwrap() error {
	return ErrUnsupportedOperator
}

// FieldNotFoundError indicates a predicate or outcome references an undeclared field.
type FieldNotFoundError struct {
	Side      string
	FieldName string
}

// Error returns the error message.
func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("%s field not found: %q", e.Side, e.FieldName)
}

// Unwrap returns ErrFieldNotFound.
func (e *FieldNotFoundError) Unwrap() error {
	return ErrFieldNotFound
}

// RowNotFoundError indicates a row ID that does not exist in the table.
type RowNotFoundError struct {
	ID string
}

// Error returns the error message.
func (e *RowNotFoundError) Error() string {
	return fmt.Sprintf("row not found: %q", e.ID)
}

// Unwrap returns ErrRowNotFound.
func (e *RowNotFoundError) Unwrap() error {
	return ErrRowNotFound
}

// EvaluationError locates a predicate failure inside a table.
type EvaluationError struct {
	Table    string
	RowID    string
	RowIndex int
	Field    string
	Operator Operator
	Cause    error
}

// Error returns the error message.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("table %q row %d (%s): %s %s: %v", e.Table, e.RowIndex, e.RowID, e.Field, e.Operator, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *EvaluationError) Unwrap() error {
	return e.Cause
}
