package workspace

import (
	"regexp"
	"time"

	"mercator-hq/verdict/pkg/config"
	"mercator-hq/verdict/pkg/ruletest"
	"mercator-hq/verdict/pkg/table"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Rule is a decision table with the metadata the workspace keeps for it.
type Rule struct {
	// ID is assigned on Create and survives renames.
	ID string `json:"id"`

	// Slug addresses the rule in the API and the repository.
	Slug string `json:"slug"`

	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Folder      string `json:"folder,omitempty"`

	// Version is the last published version, 0 if never published.
	Version int `json:"version"`

	// ContinuousTesting runs Tests on every publish.
	ContinuousTesting bool `json:"continuous_testing"`

	Table *table.Table    `json:"-"`
	Tests []ruletest.Test `json:"tests,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Status is the lifecycle state of the rule's table.
func (r *Rule) Status() table.State {
	if r.Table == nil {
		return table.StatePending
	}
	return r.Table.State()
}

// SettingsFromConfig returns the table settings the engine section selects.
func SettingsFromConfig(cfg config.EngineConfig) *table.Settings {
	s := table.DefaultSettings().
		WithSchemaValidation(!cfg.DisableSchemaValidation).
		WithRequireAllProperties(cfg.RequireAllProperties).
		WithRequireFallback(cfg.RequireFallback)
	if cfg.BulkWorkers > 0 {
		s = s.WithBulkWorkers(cfg.BulkWorkers)
	}
	return s
}
