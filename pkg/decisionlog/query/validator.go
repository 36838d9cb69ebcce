package query

import (
	"fmt"

	"mercator-hq/verdict/pkg/decisionlog"
)

const (
	// DefaultLimit is the number of records returned when no limit is set.
	DefaultLimit = 100

	// MinLimit is the smallest accepted explicit limit.
	MinLimit = 50

	// MaxLimit is the largest number of records a single query may return.
	MaxLimit = 1000
)

// ValidSortFields contains the fields that can be used for sorting.
var ValidSortFields = map[string]bool{
	"solved_at": true,
	"duration":  true,
}

// ValidSortOrders contains the valid sort orders.
var ValidSortOrders = map[string]bool{
	"asc":  true,
	"desc": true,
}

var validStatuses = map[string]bool{
	decisionlog.StatusSuccess:  true,
	decisionlog.StatusError:    true,
	decisionlog.StatusFallback: true,
}

// Validate checks a query and returns a *decisionlog.QueryError describing
// the first invalid parameter.
func Validate(q *decisionlog.Query) error {
	if q.Limit != 0 && (q.Limit < MinLimit || q.Limit > MaxLimit) {
		return decisionlog.NewQueryError(q, fmt.Errorf("limit must be between %d and %d, got %d", MinLimit, MaxLimit, q.Limit))
	}

	if q.Offset < 0 {
		return decisionlog.NewQueryError(q, fmt.Errorf("offset must be >= 0, got %d", q.Offset))
	}

	if q.SortBy != "" && !ValidSortFields[q.SortBy] {
		return decisionlog.NewQueryError(q, fmt.Errorf("invalid sort field: %s", q.SortBy))
	}

	if q.SortOrder != "" && !ValidSortOrders[q.SortOrder] {
		return decisionlog.NewQueryError(q, fmt.Errorf("invalid sort order: %s (must be 'asc' or 'desc')", q.SortOrder))
	}

	if q.StartTime != nil && q.EndTime != nil && q.StartTime.After(*q.EndTime) {
		return decisionlog.NewQueryError(q, fmt.Errorf("start_time must be before end_time"))
	}

	if q.Status != "" && !validStatuses[q.Status] {
		return decisionlog.NewQueryError(q, fmt.Errorf("invalid status: %s (must be 'success', 'error', or 'fallback')", q.Status))
	}

	return nil
}

// ApplyDefaults applies default values to a query.
func ApplyDefaults(q *decisionlog.Query) {
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.SortBy == "" {
		q.SortBy = "solved_at"
	}
	if q.SortOrder == "" {
		q.SortOrder = "desc"
	}
}
