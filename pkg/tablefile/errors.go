package tablefile

import (
	"errors"
	"fmt"
)

// ErrInvalidDocument indicates a table document that cannot be parsed or built.
var ErrInvalidDocument = errors.New("invalid table document")

// Error locates a problem inside a table document.
type Error struct {
	// Source is the file path or a caller supplied name.
	Source string

	// Path points into the document, e.g. rows[2].when.age.
	Path string

	// Line is the 1-based YAML line, or 0 when unknown.
	Line int

	// Err is the underlying error.
	Err error
}

// Error returns the error message.
func (e *Error) Error() string {
	loc := e.Source
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, e.Line)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %v", loc, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", loc, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches ErrInvalidDocument.
func (e *Error) Is(target error) bool {
	return target == ErrInvalidDocument
}
