package query

import (
	"errors"
	"strings"
	"testing"
	"time"

	"mercator-hq/verdict/pkg/decisionlog"
)

func TestValidate(t *testing.T) {
	now := time.Now()
	past := now.Add(-24 * time.Hour)

	tests := []struct {
		name    string
		query   *decisionlog.Query
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid query with all filters",
			query: &decisionlog.Query{
				StartTime: &past,
				EndTime:   &now,
				Slug:      "health-plans",
				RowID:     "row-1",
				Status:    decisionlog.StatusFallback,
				Limit:     100,
				SortBy:    "duration",
				SortOrder: "asc",
			},
		},
		{name: "zero limit", query: &decisionlog.Query{}},
		{name: "lower bound", query: &decisionlog.Query{Limit: MinLimit}},
		{name: "upper bound", query: &decisionlog.Query{Limit: MaxLimit}},
		{name: "limit too small", query: &decisionlog.Query{Limit: 10}, wantErr: true, errMsg: "limit must be between"},
		{name: "limit too large", query: &decisionlog.Query{Limit: 1001}, wantErr: true, errMsg: "limit must be between"},
		{name: "negative offset", query: &decisionlog.Query{Offset: -1}, wantErr: true, errMsg: "offset"},
		{name: "unknown sort field", query: &decisionlog.Query{SortBy: "cost"}, wantErr: true, errMsg: "sort field"},
		{name: "unknown sort order", query: &decisionlog.Query{SortOrder: "up"}, wantErr: true, errMsg: "sort order"},
		{name: "reversed time range", query: &decisionlog.Query{StartTime: &now, EndTime: &past}, wantErr: true, errMsg: "start_time"},
		{name: "unknown status", query: &decisionlog.Query{Status: "blocked"}, wantErr: true, errMsg: "invalid status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.query)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}
			if !errors.Is(err, decisionlog.ErrInvalidQuery) {
				t.Errorf("Validate() error = %v, want ErrInvalidQuery", err)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.errMsg)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	q := &decisionlog.Query{}
	ApplyDefaults(q)

	if q.Limit != DefaultLimit {
		t.Errorf("Limit = %d, want %d", q.Limit, DefaultLimit)
	}
	if q.SortBy != "solved_at" || q.SortOrder != "desc" {
		t.Errorf("sort = %s %s, want solved_at desc", q.SortBy, q.SortOrder)
	}

	q = &decisionlog.Query{Limit: 500, SortOrder: "asc"}
	ApplyDefaults(q)
	if q.Limit != 500 || q.SortOrder != "asc" {
		t.Errorf("ApplyDefaults overwrote explicit values: %+v", q)
	}
}
