package llm

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DefaultBatchConcurrency bounds batch execution when the caller passes a
// non-positive limit.
const DefaultBatchConcurrency = 3

// BatchItem pairs one submitted request with its outcome. Exactly one of
// Response and Err is set.
type BatchItem struct {
	Index    int           `json:"index"`
	Request  *ChatRequest  `json:"request"`
	Response *ChatResponse `json:"response,omitempty"`
	Err      error         `json:"error,omitempty"`
}

// RunBatch executes independent requests concurrently under a weighted
// admission gate: at most concurrency requests run at once, the rest queue.
// One request's failure never cancels or blocks its siblings, and every
// input produces exactly one BatchItem, returned in input order regardless
// of completion order. The executor applies no backend-specific throttling;
// each backend's own process manages its external rate limits.
func (r *Router) RunBatch(ctx context.Context, requests []*ChatRequest, concurrency int) []BatchItem {
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}

	items := make([]BatchItem, len(requests))
	sem := semaphore.NewWeighted(int64(concurrency))

	var wg sync.WaitGroup
	for i, req := range requests {
		items[i] = BatchItem{Index: i, Request: req}

		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				items[i].Err = err
				return
			}
			defer sem.Release(1)

			resp, err := r.Completion(ctx, req)
			if err != nil {
				items[i].Err = err
				return
			}
			items[i].Response = resp
		}()
	}
	wg.Wait()

	failed := 0
	for _, item := range items {
		if item.Err != nil {
			failed++
		}
	}
	r.logger.Info("batch finished",
		zap.Int("total", len(items)),
		zap.Int("failed", failed),
		zap.Int("concurrency", concurrency),
	)
	return items
}
