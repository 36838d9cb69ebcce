package storage

import (
	"context"
	"sort"
	"sync"

	"mercator-hq/verdict/pkg/decisionlog"
)

// MemoryStorage implements decisionlog.Storage in memory. Records are kept
// in insertion order.
type MemoryStorage struct {
	records []*decisionlog.Record
	mu      sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Store persists a copy of the record.
func (s *MemoryStorage) Store(_ context.Context, record *decisionlog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recordCopy := *record
	s.records = append(s.records, &recordCopy)
	return nil
}

// Query retrieves the records matching the query filters.
func (s *MemoryStorage) Query(_ context.Context, query *decisionlog.Query) ([]*decisionlog.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.selectRecords(query), nil
}

// QueryStream streams the records matching the query filters.
func (s *MemoryStorage) QueryStream(ctx context.Context, query *decisionlog.Query) (<-chan *decisionlog.Record, <-chan error, error) {
	s.mu.RLock()
	results := s.selectRecords(query)
	s.mu.RUnlock()

	recordsCh := make(chan *decisionlog.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(recordsCh)
		defer close(errCh)

		for _, record := range results {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case recordsCh <- record:
			}
		}
	}()

	return recordsCh, errCh, nil
}

// Count returns the number of records matching the query filters.
func (s *MemoryStorage) Count(_ context.Context, query *decisionlog.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, record := range s.records {
		if matchesQuery(record, query) {
			count++
		}
	}
	return count, nil
}

// Delete removes the records matching the query filters.
func (s *MemoryStorage) Delete(_ context.Context, query *decisionlog.Query) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	var deleted int64
	for _, record := range s.records {
		if matchesQuery(record, query) {
			deleted++
			continue
		}
		kept = append(kept, record)
	}
	for i := len(kept); i < len(s.records); i++ {
		s.records[i] = nil
	}
	s.records = kept

	return deleted, nil
}

// Close drops every record.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	return nil
}

// selectRecords filters, sorts and paginates. The caller holds the lock.
func (s *MemoryStorage) selectRecords(query *decisionlog.Query) []*decisionlog.Record {
	results := []*decisionlog.Record{}
	for _, record := range s.records {
		if matchesQuery(record, query) {
			recordCopy := *record
			results = append(results, &recordCopy)
		}
	}

	asc := query.SortOrder == "asc"
	byDuration := query.SortBy == "duration"
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if byDuration {
			if asc {
				return a.Duration < b.Duration
			}
			return a.Duration > b.Duration
		}
		if asc {
			return a.SolvedAt.Before(b.SolvedAt)
		}
		return a.SolvedAt.After(b.SolvedAt)
	})
	if !asc {
		// Newest insertion first among equal keys, matching SQLite's rowid order.
		reverseTies(results, byDuration)
	}

	if query.Offset >= len(results) {
		return []*decisionlog.Record{}
	}
	results = results[query.Offset:]
	if query.Limit > 0 && query.Limit < len(results) {
		results = results[:query.Limit]
	}
	return results
}

// reverseTies reverses each run of records with equal sort keys.
func reverseTies(records []*decisionlog.Record, byDuration bool) {
	equal := func(a, b *decisionlog.Record) bool {
		if byDuration {
			return a.Duration == b.Duration
		}
		return a.SolvedAt.Equal(b.SolvedAt)
	}
	for start := 0; start < len(records); {
		end := start + 1
		for end < len(records) && equal(records[start], records[end]) {
			end++
		}
		for i, j := start, end-1; i < j; i, j = i+1, j-1 {
			records[i], records[j] = records[j], records[i]
		}
		start = end
	}
}

// matchesQuery checks if a record matches the query filters.
func matchesQuery(record *decisionlog.Record, query *decisionlog.Query) bool {
	if query.StartTime != nil && record.SolvedAt.Before(*query.StartTime) {
		return false
	}
	if query.EndTime != nil && record.SolvedAt.After(*query.EndTime) {
		return false
	}
	if query.Slug != "" && record.Slug != query.Slug {
		return false
	}
	if query.RowID != "" && record.RowID != query.RowID {
		return false
	}
	if query.BatchID != "" && record.BatchID != query.BatchID {
		return false
	}
	if query.Status != "" && record.Status() != query.Status {
		return false
	}
	return true
}
