package decisionlog

import (
	"context"
	"io"
	"time"

	"mercator-hq/verdict/pkg/table"
)

// Record is the audit trail of a single solve.
type Record struct {
	// ID is a UUID assigned by the recorder.
	ID string `json:"id"`

	// Slug identifies the rule that was solved.
	Slug string `json:"slug"`

	// Version is the published version solved, 0 for a draft.
	Version int `json:"version"`

	// RowID is the matched row, empty when the solve failed.
	RowID string `json:"row_id,omitempty"`

	// Fallback is true when the fallback row answered.
	Fallback bool `json:"fallback"`

	// Request is the request as solved, after redaction.
	Request table.Request `json:"request"`

	// RequestHash is the SHA-256 of the request before redaction.
	RequestHash string `json:"request_hash"`

	// Response is the decided response, nil when the solve failed.
	Response table.Response `json:"response,omitempty"`

	// Error is the solve error message.
	Error string `json:"error,omitempty"`

	// Duration is the time spent solving.
	Duration time.Duration `json:"duration"`

	// SolvedAt is when the solve finished.
	SolvedAt time.Time `json:"solved_at"`

	// BatchID groups the records of one bulk solve.
	BatchID string `json:"batch_id,omitempty"`
}

// Status values accepted by Query.Status.
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusFallback = "fallback"
)

// Status classifies the record as success, error or fallback.
func (r *Record) Status() string {
	switch {
	case r.Error != "":
		return StatusError
	case r.Fallback:
		return StatusFallback
	default:
		return StatusSuccess
	}
}

// Query defines filter parameters for querying decision records.
type Query struct {
	// Time range
	StartTime *time.Time `json:"start_time,omitempty"` // Inclusive start time
	EndTime   *time.Time `json:"end_time,omitempty"`   // Inclusive end time

	// Filters
	Slug    string `json:"slug,omitempty"`
	RowID   string `json:"row_id,omitempty"`
	BatchID string `json:"batch_id,omitempty"`
	Status  string `json:"status,omitempty"` // "success", "error", "fallback"

	// Pagination. A zero Limit returns every matching record.
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// Sorting
	SortBy    string `json:"sort_by,omitempty"`    // "solved_at", "duration"
	SortOrder string `json:"sort_order,omitempty"` // "asc", "desc"
}

// Storage defines the interface for decision log backends.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Store persists a record.
	Store(ctx context.Context, record *Record) error

	// Query returns the records matching the query filters.
	// Returns an empty slice if no records match.
	Query(ctx context.Context, query *Query) ([]*Record, error)

	// QueryStream streams matching records. Both channels are closed when
	// the query completes; errCh carries at most one error.
	QueryStream(ctx context.Context, query *Query) (<-chan *Record, <-chan error, error)

	// Count returns the number of records matching the query filters.
	Count(ctx context.Context, query *Query) (int64, error)

	// Delete removes matching records and returns how many were removed.
	// Pagination and sorting are ignored.
	Delete(ctx context.Context, query *Query) (int64, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Exporter writes records in a specific format.
type Exporter interface {
	Export(ctx context.Context, records []*Record, w io.Writer) error
}
