// Package queue implements the bounded FIFO both retrievers feed and the
// Supervisor drains (spec.md §3 Queue, §4.6). Grounded on the teacher's
// internal/engine.Frontier — a condvar-guarded container/heap — simplified
// from a priority heap to a plain bounded slice ring, since items here
// arrive already ordered by their retriever and carry no priority field.
// Unlike Frontier, Put blocks with backpressure once the queue is full
// (spec.md I3 "bounded"), and PeekTimeout exists so the Supervisor can wait
// for data without giving up its ability to recheck retriever health.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/opentender/tendersync/internal/types"
)

// Queue is a thread-safe bounded FIFO of opaque feed items.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	items    []types.Item
	capacity int
	closed   bool
}

// New builds a Queue bounded at capacity (spec.md RetrieverParams.QueueSize).
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue{
		items:    make([]types.Item, 0, capacity),
		capacity: capacity,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Put appends item, blocking while the queue is at capacity. Returns
// ErrQueueClosed if the queue is closed before or during the wait, and the
// ctx error if ctx is cancelled first.
func (q *Queue) Put(ctx context.Context, item types.Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) >= q.capacity && !q.closed && ctx.Err() == nil {
		q.waitUnlocked(ctx, q.notFull)
	}
	if q.closed {
		return types.ErrQueueClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	q.items = append(q.items, item)
	q.notEmpty.Signal()
	return nil
}

// Get removes and returns the oldest item. ok is false only if the queue is
// both closed and empty.
func (q *Queue) Get() (types.Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}

	item := q.items[0]
	q.items = q.items[1:]
	q.notFull.Signal()
	return item, true
}

// PeekTimeout blocks up to d waiting for the queue to become non-empty,
// returning true as soon as it does (or already is) without removing
// anything. Used by the Supervisor to wait for throughput while still
// periodically rechecking retriever health (spec.md §4.6).
func (q *Queue) PeekTimeout(d time.Duration) bool {
	deadline := time.Now().Add(d)
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		timer := time.AfterFunc(remaining, func() {
			q.mu.Lock()
			q.notEmpty.Broadcast()
			q.mu.Unlock()
		})
		q.notEmpty.Wait()
		timer.Stop()
	}
	return len(q.items) > 0
}

// Len reports the current number of buffered items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close unblocks every waiting Put/Get; subsequent Puts fail.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// waitUnlocked waits on cond, but also wakes on ctx cancellation by
// spawning a one-shot watcher goroutine per call. Only used from Put,
// which is not on the hot per-item path, so the extra goroutine is cheap.
func (q *Queue) waitUnlocked(ctx context.Context, cond *sync.Cond) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()
	cond.Wait()
}
