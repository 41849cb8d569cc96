package shipservice

import (
	"context"
	"sync"
	"time"

	"shipyard/internal/shiperr"
)

// waiterQueue implements the FIFO cancellable wait used by the
// capacity=wait policy: a blocked allocator waits on its own channel,
// woken either by a release (wake) or its own deadline.
type waiterQueue struct {
	mu      sync.Mutex
	waiters []chan struct{}
}

func newWaiterQueue() *waiterQueue {
	return &waiterQueue{}
}

// wait blocks until woken by wake, the context is cancelled, or timeout
// elapses, whichever comes first. It returns nil in all wake-up cases
// except context cancellation and timeout, both surfaced as errors so the
// caller stops retrying instead of looping forever.
func (q *waiterQueue) wait(ctx context.Context, timeout time.Duration) error {
	ch := make(chan struct{}, 1)

	q.mu.Lock()
	q.waiters = append(q.waiters, ch)
	q.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		q.remove(ch)
		return ctx.Err()
	case <-timer.C:
		q.remove(ch)
		return shiperr.New(shiperr.KindCapacityWaitTimeout, "timed out waiting for ship capacity")
	}
}

// wake releases the oldest waiter in FIFO order, if any.
func (q *waiterQueue) wake() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.waiters) == 0 {
		return
	}
	next := q.waiters[0]
	q.waiters = q.waiters[1:]
	select {
	case next <- struct{}{}:
	default:
	}
}

func (q *waiterQueue) remove(target chan struct{}) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, ch := range q.waiters {
		if ch == target {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return
		}
	}
}
