package workflow

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"storyforge/internal/logging"
)

// Runner executes many independent workflow requests in parallel, bounded
// by a concurrency limit so external API rate limits are respected.
// Requests share nothing: each gets its own request-scoped state inside
// the engine.
type Runner struct {
	engine *Engine
	sem    *semaphore.Weighted
}

// NewRunner creates a runner around the engine with the given concurrent
// request bound.
func NewRunner(engine *Engine, maxConcurrent int) *Runner {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Runner{
		engine: engine,
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Run processes all requests and returns results in input order. A request
// whose prompt is malformed yields a failed result rather than aborting
// the batch. Cancelling ctx stops admission of new requests and cancels
// in-flight ones.
func (r *Runner) Run(ctx context.Context, reqs []Request) []*Result {
	results := make([]*Result, len(reqs))
	var wg sync.WaitGroup

	logging.Workflow("batch of %d requests starting", len(reqs))

	for i, req := range reqs {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			// Context cancelled while waiting for a slot.
			results[i] = &Result{
				Request: req,
				Status:  StatusFailed,
				Message: "batch cancelled before this request started",
			}
			continue
		}

		wg.Add(1)
		go func(i int, req Request) {
			defer wg.Done()
			defer r.sem.Release(1)

			result, err := r.engine.Run(ctx, req)
			if err != nil {
				result = &Result{
					Request: req,
					Status:  StatusFailed,
					Message: err.Error(),
				}
			}
			results[i] = result
		}(i, req)
	}

	wg.Wait()
	logging.Workflow("batch of %d requests complete", len(reqs))

	return results
}
