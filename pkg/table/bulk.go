package table

import (
	"context"
	"sync"
)

// BulkResult is the outcome of one request in a BulkSolve batch.
type BulkResult struct {
	Decision *Decision
	Err      error
}

// BulkSolve evaluates requests in parallel against one snapshot of the
// table. results[i] always belongs to requests[i]. When ctx is cancelled,
// requests that have not started yet fail with ctx.Err().
func (t *Table) BulkSolve(ctx context.Context, requests []Request) []BulkResult {
	results := make([]BulkResult, len(requests))
	if len(requests) == 0 {
		return results
	}

	s := t.current.Load()
	workers := s.settings.BulkWorkers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(requests) {
		workers = len(requests)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := ctx.Err(); err != nil {
					results[i] = BulkResult{Err: err}
					continue
				}
				decision, err := t.solve(ctx, s, requests[i])
				results[i] = BulkResult{Decision: decision, Err: err}
			}
		}()
	}

	dispatched := 0
dispatch:
	for ; dispatched < len(requests); dispatched++ {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- dispatched:
		}
	}
	close(jobs)
	wg.Wait()

	for i := dispatched; i < len(requests); i++ {
		results[i] = BulkResult{Err: ctx.Err()}
	}

	t.logger.Debug("bulk solve finished", "table", t.name, "requests", len(requests), "workers", workers)
	return results
}
