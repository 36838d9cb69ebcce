package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/verdict/pkg/decisionlog"
	"mercator-hq/verdict/pkg/table"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newSQLite(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(&SQLiteConfig{
		Path:         filepath.Join(t.TempDir(), "decisions.db"),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// backends returns every storage implementation under test.
func backends(t *testing.T) map[string]decisionlog.Storage {
	return map[string]decisionlog.Storage{
		"memory": NewMemoryStorage(),
		"sqlite": newSQLite(t),
	}
}

// seed stores five records, one minute apart:
// 0,1 plans/hsa, 2 plans fallback, 3 plans error, 4 pricing/base in batch b1.
func seed(t *testing.T, s decisionlog.Storage) {
	t.Helper()
	records := []*decisionlog.Record{
		{Slug: "plans", RowID: "hsa", Response: table.Response{"plan": "HSA"}},
		{Slug: "plans", RowID: "hsa", Response: table.Response{"plan": "HSA"}},
		{Slug: "plans", RowID: "fb", Fallback: true, Response: table.Response{"plan": "Standard"}},
		{Slug: "plans", Error: "no matching row"},
		{Slug: "pricing", RowID: "base", BatchID: "b1", Response: table.Response{"price": 10.0}},
	}
	for i, r := range records {
		r.ID = fmt.Sprintf("rec-%d", i)
		r.Version = 1
		r.Request = table.Request{"age": float64(30 + i)}
		r.RequestHash = fmt.Sprintf("hash-%d", i)
		r.Duration = time.Duration(i+1) * time.Millisecond
		r.SolvedAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.Store(context.Background(), r); err != nil {
			t.Fatalf("Store(%s) error = %v", r.ID, err)
		}
	}
}

func ids(records []*decisionlog.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestStorage_StoreAndQuery(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)

			got, err := s.Query(context.Background(), &decisionlog.Query{RowID: "fb"})
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(got) != 1 {
				t.Fatalf("Query() returned %d records, want 1", len(got))
			}

			r := got[0]
			if r.ID != "rec-2" || r.Slug != "plans" || r.Version != 1 || !r.Fallback {
				t.Errorf("record = %+v", r)
			}
			if r.Request["age"] != float64(32) {
				t.Errorf("request = %v", r.Request)
			}
			if r.Response["plan"] != "Standard" {
				t.Errorf("response = %v", r.Response)
			}
			if r.RequestHash != "hash-2" || r.Duration != 3*time.Millisecond {
				t.Errorf("hash/duration = %q %v", r.RequestHash, r.Duration)
			}
			if !r.SolvedAt.Equal(base.Add(2 * time.Minute)) {
				t.Errorf("solved_at = %v", r.SolvedAt)
			}
		})
	}
}

func TestStorage_Filters(t *testing.T) {
	from := base.Add(time.Minute)
	to := base.Add(3 * time.Minute)

	tests := []struct {
		name  string
		query decisionlog.Query
		want  []string
	}{
		{name: "all newest first", query: decisionlog.Query{}, want: []string{"rec-4", "rec-3", "rec-2", "rec-1", "rec-0"}},
		{name: "slug", query: decisionlog.Query{Slug: "pricing"}, want: []string{"rec-4"}},
		{name: "status success", query: decisionlog.Query{Slug: "plans", Status: decisionlog.StatusSuccess}, want: []string{"rec-1", "rec-0"}},
		{name: "status error", query: decisionlog.Query{Status: decisionlog.StatusError}, want: []string{"rec-3"}},
		{name: "status fallback", query: decisionlog.Query{Status: decisionlog.StatusFallback}, want: []string{"rec-2"}},
		{name: "batch", query: decisionlog.Query{BatchID: "b1"}, want: []string{"rec-4"}},
		{name: "time range inclusive", query: decisionlog.Query{StartTime: &from, EndTime: &to, SortOrder: "asc"}, want: []string{"rec-1", "rec-2", "rec-3"}},
		{name: "sort by duration", query: decisionlog.Query{SortBy: "duration", SortOrder: "asc", Limit: 2}, want: []string{"rec-0", "rec-1"}},
		{name: "offset", query: decisionlog.Query{SortOrder: "asc", Offset: 3}, want: []string{"rec-3", "rec-4"}},
		{name: "offset past end", query: decisionlog.Query{Offset: 10}, want: []string{}},
	}

	for name, s := range backends(t) {
		seed(t, s)
		for _, tt := range tests {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				q := tt.query
				got, err := s.Query(context.Background(), &q)
				if err != nil {
					t.Fatalf("Query() error = %v", err)
				}
				if fmt.Sprint(ids(got)) != fmt.Sprint(tt.want) {
					t.Errorf("Query() = %v, want %v", ids(got), tt.want)
				}
			})
		}
	}
}

func TestStorage_CountAndDelete(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			ctx := context.Background()

			n, err := s.Count(ctx, &decisionlog.Query{Slug: "plans"})
			if err != nil || n != 4 {
				t.Fatalf("Count() = %d, %v, want 4", n, err)
			}

			cutoff := base.Add(time.Minute)
			deleted, err := s.Delete(ctx, &decisionlog.Query{EndTime: &cutoff})
			if err != nil || deleted != 2 {
				t.Fatalf("Delete() = %d, %v, want 2", deleted, err)
			}

			n, _ = s.Count(ctx, &decisionlog.Query{})
			if n != 3 {
				t.Errorf("Count() after delete = %d, want 3", n)
			}
		})
	}
}

func TestStorage_QueryStream(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)

			recordsCh, errCh, err := s.QueryStream(context.Background(), &decisionlog.Query{Slug: "plans", SortOrder: "asc"})
			if err != nil {
				t.Fatalf("QueryStream() error = %v", err)
			}

			var got []string
			for r := range recordsCh {
				got = append(got, r.ID)
			}
			if err := <-errCh; err != nil {
				t.Fatalf("stream error = %v", err)
			}
			if fmt.Sprint(got) != "[rec-0 rec-1 rec-2 rec-3]" {
				t.Errorf("streamed %v", got)
			}
		})
	}
}

func TestSQLiteStorage_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.db")
	cfg := DefaultSQLiteConfig()
	cfg.Path = path

	s, err := NewSQLiteStorage(cfg)
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}
	seed(t, s)
	s.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file missing: %v", err)
	}

	s, err = NewSQLiteStorage(cfg)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()

	n, err := s.Count(context.Background(), &decisionlog.Query{})
	if err != nil || n != 5 {
		t.Errorf("Count() after reopen = %d, %v, want 5", n, err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}
