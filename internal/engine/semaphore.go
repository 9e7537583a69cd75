package engine

import "context"

// semaphore bounds the number of concurrent Execute calls admitted at once
// (spec.md §5 execution.max_concurrent, default 10), adapted from the
// teacher's buffered-channel concurrency gate
// (internal/engine/executor.go's per-step semaphore) to admission of whole
// executions rather than steps within one.
type semaphore chan struct{}

func newSemaphore(limit int) semaphore {
	if limit <= 0 {
		limit = 10
	}
	return make(semaphore, limit)
}

// acquire blocks until a slot is free or ctx is done.
func (s semaphore) acquire(ctx context.Context) error {
	select {
	case s <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s semaphore) release() { <-s }
