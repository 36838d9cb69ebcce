package retention

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/verdict/pkg/decisionlog"
	"mercator-hq/verdict/pkg/decisionlog/storage"
)

var now = time.Date(2026, 6, 30, 12, 0, 0, 0, time.UTC)

// seedDaily stores one record per day, the newest solved at now.
func seedDaily(t *testing.T, s decisionlog.Storage, days int) {
	t.Helper()
	for i := 0; i < days; i++ {
		r := &decisionlog.Record{
			ID:       fmt.Sprintf("rec-%02d", i),
			Slug:     "plans",
			SolvedAt: now.AddDate(0, 0, -i),
		}
		if err := s.Store(context.Background(), r); err != nil {
			t.Fatal(err)
		}
	}
}

func newTestPruner(s decisionlog.Storage, cfg *Config) *Pruner {
	p := NewPruner(s, cfg)
	p.now = func() time.Time { return now }
	return p
}

func TestPruner_Prune(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		wantDeleted int64
		wantOldest  string
	}{
		{name: "by age", config: Config{RetentionDays: 7}, wantDeleted: 3, wantOldest: "rec-06"},
		{name: "by count", config: Config{MaxRecords: 4}, wantDeleted: 6, wantOldest: "rec-03"},
		{name: "age then count", config: Config{RetentionDays: 7, MaxRecords: 5}, wantDeleted: 5, wantOldest: "rec-04"},
		{name: "nothing configured", config: Config{}, wantDeleted: 0, wantOldest: "rec-09"},
		{name: "count within limit", config: Config{MaxRecords: 50}, wantDeleted: 0, wantOldest: "rec-09"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStorage()
			seedDaily(t, store, 10)

			cfg := tt.config
			deleted, err := newTestPruner(store, &cfg).Prune(context.Background())
			if err != nil {
				t.Fatalf("Prune() error = %v", err)
			}
			if deleted != tt.wantDeleted {
				t.Errorf("Prune() deleted %d, want %d", deleted, tt.wantDeleted)
			}

			left, _ := store.Query(context.Background(), &decisionlog.Query{SortOrder: "asc", Limit: 1})
			if len(left) != 1 || left[0].ID != tt.wantOldest {
				t.Errorf("oldest remaining = %v, want %s", left, tt.wantOldest)
			}
		})
	}
}

func TestPruner_ArchivesBeforeDelete(t *testing.T) {
	store := storage.NewMemoryStorage()
	seedDaily(t, store, 10)
	dir := filepath.Join(t.TempDir(), "archive")

	p := newTestPruner(store, &Config{RetentionDays: 7, ArchiveBeforeDelete: true, ArchivePath: dir})
	if _, err := p.Prune(context.Background()); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("archive dir entries = %v, err %v", entries, err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	for _, id := range []string{"rec-07", "rec-08", "rec-09"} {
		if !strings.Contains(string(data), id) {
			t.Errorf("archive missing %s", id)
		}
	}
}

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name        string
		schedule    string
		wantRunning bool
		wantError   bool
	}{
		{name: "valid daily schedule", schedule: "0 3 * * *", wantRunning: true},
		{name: "valid hourly schedule", schedule: "0 * * * *", wantRunning: true},
		{name: "empty schedule", schedule: ""},
		{name: "invalid schedule", schedule: "invalid cron", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPruner(storage.NewMemoryStorage(), &Config{PruneSchedule: tt.schedule, RetentionDays: 30})

			err := p.Start(context.Background())
			defer p.Stop()

			if (err != nil) != tt.wantError {
				t.Fatalf("Start() error = %v, wantError %v", err, tt.wantError)
			}
			if p.scheduler.IsRunning() != tt.wantRunning {
				t.Errorf("IsRunning() = %v, want %v", p.scheduler.IsRunning(), tt.wantRunning)
			}
			if !tt.wantRunning && p.NextPruning() != nil {
				t.Error("NextPruning() != nil for an idle scheduler")
			}
		})
	}
}

func TestScheduler_StopsWithContext(t *testing.T) {
	p := NewPruner(storage.NewMemoryStorage(), &Config{PruneSchedule: "0 3 * * *"})

	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for p.scheduler.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("scheduler still running after context cancellation")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
