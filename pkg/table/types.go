package table

import (
	"strings"
	"time"
)

// FieldType is the declared type of a request or response field.
type FieldType string

const (
	// TypeNumber holds float64 values. Any Go integer or float is accepted
	// and normalized.
	TypeNumber FieldType = "number"

	// TypeBoolean holds bool values.
	TypeBoolean FieldType = "boolean"

	// TypeString holds string values.
	TypeString FieldType = "string"
)

// ParseFieldType parses a field type name. Matching is case-insensitive.
func ParseFieldType(s string) (FieldType, error) {
	switch FieldType(strings.ToLower(strings.TrimSpace(s))) {
	case TypeNumber:
		return TypeNumber, nil
	case TypeBoolean:
		return TypeBoolean, nil
	case TypeString:
		return TypeString, nil
	default:
		return "", &InvalidTypeError{Type: s}
	}
}

// Valid reports whether t is one of the supported field types.
func (t FieldType) Valid() bool {
	return t == TypeNumber || t == TypeBoolean || t == TypeString
}

// Combinator determines how a row aggregates its predicates.
type Combinator string

const (
	// CombinatorAll matches when every predicate holds.
	CombinatorAll Combinator = "ALL"

	// CombinatorAny matches when at least one predicate holds.
	CombinatorAny Combinator = "ANY"
)

// ParseCombinator parses "all" or "any" in any case. An empty string is ALL.
func ParseCombinator(s string) (Combinator, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(CombinatorAll):
		return CombinatorAll, nil
	case string(CombinatorAny):
		return CombinatorAny, nil
	default:
		return "", &InvalidTableStructureError{RowIndex: -1, Reason: "unknown combinator " + s}
	}
}

// State is the lifecycle state of a table.
type State string

const (
	// StatePending means the table changed since it was last validated.
	StatePending State = "PENDING"

	// StateValid means the table passed Validate and can be published.
	StateValid State = "VALID"

	// StatePublished means the table is live. Edits require Reopen.
	StatePublished State = "PUBLISHED"
)

// Request maps input field names to values.
type Request map[string]any

// Response maps output field names to values.
type Response map[string]any

// Outcome is the set of response assignments a row makes when it matches.
type Outcome map[string]any

// Decision is the result of solving a request against a table.
type Decision struct {
	// Table is the table name.
	Table string `json:"table"`

	// Response is the matched outcome merged over output defaults.
	Response Response `json:"response"`

	// RowID is the stable identifier of the matched row.
	RowID string `json:"row_id"`

	// RowIndex is the position of the matched row.
	RowIndex int `json:"row_index"`

	// Fallback is true when no explicit row matched.
	Fallback bool `json:"fallback"`

	// Duration is the time spent solving.
	Duration time.Duration `json:"duration"`
}
