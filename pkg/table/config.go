package table

import (
	"fmt"
	"runtime"
)

// Settings controls how a table treats requests and what Validate enforces.
type Settings struct {
	// SchemaValidation rejects requests with unknown fields or wrongly typed values.
	// Default: true.
	SchemaValidation bool `json:"schema_validation" yaml:"schema_validation"`

	// RequireAllProperties rejects requests that omit any declared input.
	// Default: false (missing inputs take their default).
	RequireAllProperties bool `json:"require_all_properties" yaml:"require_all_properties"`

	// RequireFallback makes Validate fail when the table has no fallback row.
	// Default: false.
	RequireFallback bool `json:"require_fallback" yaml:"require_fallback"`

	// BulkWorkers bounds the number of concurrent evaluations in BulkSolve.
	// Default: GOMAXPROCS.
	BulkWorkers int `json:"bulk_workers" yaml:"bulk_workers"`
}

// DefaultSettings returns the default table settings.
func DefaultSettings() *Settings {
	return &Settings{
		SchemaValidation:     true,
		RequireAllProperties: false,
		RequireFallback:      false,
		BulkWorkers:          runtime.GOMAXPROCS(0),
	}
}

// Validate validates the settings.
func (s *Settings) Validate() error {
	if s.BulkWorkers <= 0 {
		return fmt.Errorf("%w: bulk workers must be positive", ErrInvalidSettings)
	}
	return nil
}

// WithSchemaValidation enables or disables request schema validation.
func (s *Settings) WithSchemaValidation(enabled bool) *Settings {
	s.SchemaValidation = enabled
	return s
}

// WithRequireAllProperties enables or disables the missing input check.
func (s *Settings) WithRequireAllProperties(enabled bool) *Settings {
	s.RequireAllProperties = enabled
	return s
}

// WithRequireFallback enables or disables the fallback requirement.
func (s *Settings) WithRequireFallback(enabled bool) *Settings {
	s.RequireFallback = enabled
	return s
}

// WithBulkWorkers sets the BulkSolve worker count.
func (s *Settings) WithBulkWorkers(n int) *Settings {
	s.BulkWorkers = n
	return s
}
