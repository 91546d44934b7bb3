package authority

import (
	"context"
	"sync"

	"github.com/docflowGM/holocron/internal/governance/delta"
)

// entityQueue serializes mutations for one entity in strict FIFO order and
// tracks whether an integrity pass is outstanding. Queues for different
// entities share nothing.
type entityQueue struct {
	mu      sync.Mutex
	busy    bool
	waiters []chan struct{}

	pendingIntegrity bool
	latest           *delta.Snapshot
}

// acquire admits the caller once every earlier caller has released. A
// canceled context removes the caller from the queue.
func (q *entityQueue) acquire(ctx context.Context) error {
	q.mu.Lock()
	if !q.busy {
		q.busy = true
		q.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	q.waiters = append(q.waiters, ready)
	q.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		q.mu.Lock()
		for i, waiter := range q.waiters {
			if waiter == ready {
				q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
				q.mu.Unlock()
				return ctx.Err()
			}
		}
		q.mu.Unlock()
		// admission already granted between Done and lock; pass it on
		q.release()
		return ctx.Err()
	}
}

// release hands admission to the oldest waiter, or marks the queue idle.
func (q *entityQueue) release() {
	q.mu.Lock()
	if len(q.waiters) > 0 {
		next := q.waiters[0]
		q.waiters = q.waiters[1:]
		q.mu.Unlock()
		close(next)
		return
	}
	q.busy = false
	q.mu.Unlock()
}

// settled reports whether no mutation is queued or running and no
// integrity pass is outstanding.
func (q *entityQueue) settled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.busy && len(q.waiters) == 0 && !q.pendingIntegrity
}
