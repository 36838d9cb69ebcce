package cli

import (
	"errors"
	"fmt"
)

// ErrTestsFailed is returned by commands whose rule tests did not all pass.
var ErrTestsFailed = errors.New("rule tests failed")

// Exit codes returned by the verdict binary.
const (
	ExitOK          = 0
	ExitError       = 1
	ExitTestsFailed = 2
	ExitConfigError = 3
)

// ConfigError represents an error in configuration.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// CommandError represents an error from a command execution.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
	}
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
	}
}

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	var cfgErr *ConfigError
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrTestsFailed):
		return ExitTestsFailed
	case errors.As(err, &cfgErr):
		return ExitConfigError
	default:
		return ExitError
	}
}
