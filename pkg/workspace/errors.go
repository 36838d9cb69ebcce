package workspace

import (
	"errors"
	"fmt"
	"strings"

	"mercator-hq/verdict/pkg/ruletest"
)

// Common sentinel errors.
var (
	// ErrRuleNotFound indicates no rule has the requested slug.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrRuleExists indicates a slug is already taken.
	ErrRuleExists = errors.New("rule already exists")

	// ErrInvalidRule indicates a rule that cannot be added to the workspace.
	ErrInvalidRule = errors.New("invalid rule")

	// ErrPublishBlocked indicates critical rule tests failed during publish.
	ErrPublishBlocked = errors.New("publish blocked by failing critical tests")

	// ErrVersionNotFound indicates a missing published version.
	ErrVersionNotFound = errors.New("version not found")

	// ErrUnsupportedRepository indicates a repository URL with an unknown scheme.
	ErrUnsupportedRepository = errors.New("unsupported repository")
)

// RuleError reports a failed operation on one rule.
type RuleError struct {
	Slug string
	Op   string
	Err  error
}

// Error returns the error message.
func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %q: %s: %v", e.Slug, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *RuleError) Unwrap() error {
	return e.Err
}

// PublishBlockedError lists the critical tests that blocked a publish.
type PublishBlockedError struct {
	Slug     string
	Failures []ruletest.Result
}

// Error returns the error message.
func (e *PublishBlockedError) Error() string {
	names := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		names[i] = f.Test.Name
	}
	return fmt.Sprintf("rule %q: publish blocked by %d failing critical test(s): %s",
		e.Slug, len(e.Failures), strings.Join(names, ", "))
}

// Unwrap returns ErrPublishBlocked.
func (e *PublishBlockedError) Unwrap() error {
	return ErrPublishBlocked
}

// VersionNotFoundError indicates a missing published version.
type VersionNotFoundError struct {
	Slug    string
	Version int
}

// Error returns the error message.
func (e *VersionNotFoundError) Error() string {
	return fmt.Sprintf("rule %q: version %d not found", e.Slug, e.Version)
}

// Unwrap returns ErrVersionNotFound.
func (e *VersionNotFoundError) Unwrap() error {
	return ErrVersionNotFound
}

// RepositoryError reports a failed repository operation.
type RepositoryError struct {
	Backend   string
	Operation string
	Cause     error
}

// Error returns the error message.
func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s %s failed: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *RepositoryError) Unwrap() error {
	return e.Cause
}

// NewRepositoryError creates a RepositoryError.
func NewRepositoryError(backend, operation string, cause error) *RepositoryError {
	return &RepositoryError{Backend: backend, Operation: operation, Cause: cause}
}

func notFound(slug, op string) error {
	return &RuleError{Slug: slug, Op: op, Err: ErrRuleNotFound}
}
