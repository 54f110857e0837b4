// Package source provides op sources for an ioq.Scheduler: a
// per-stream FIFO queue fed by the caller and a generator driven by a
// coroutine.
package source

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gammazero/deque"
	"github.com/webriots/ioq"
)

// Queue is an in-memory op source. Ops are enqueued per stream and
// handed to the scheduler in FIFO order, the hinted stream first.
// Queue provides the Acquire, Release and CancelAcquire halves of
// ioq.Callbacks.
type Queue struct {
	mu       sync.Mutex
	cond     sync.Cond
	streams  map[ioq.StreamID]*deque.Deque[*ioq.Op]
	order    []ioq.StreamID // Streams in first-enqueue order
	queued   int
	pending  int // Acquired and not yet released
	waiting  int // Acquire calls blocked in wait
	canceled bool

	enqueued atomic.Uint64
	acquired atomic.Uint64
	released atomic.Uint64

	onRelease func(*ioq.Op)
}

// NewQueue returns an empty queue. onRelease, if not nil, is called
// for every released op after the queue's own accounting.
func NewQueue(onRelease func(*ioq.Op)) *Queue {
	q := &Queue{
		streams:   make(map[ioq.StreamID]*deque.Deque[*ioq.Op]),
		onRelease: onRelease,
	}
	q.cond.L = &q.mu
	return q
}

// Enqueue appends ops to their streams. It fails with ioq.ErrCanceled
// once acquisition has been canceled.
func (q *Queue) Enqueue(ops ...*ioq.Op) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.canceled {
		return ioq.ErrCanceled
	}
	for _, op := range ops {
		fifo := q.streams[op.StreamID]
		if fifo == nil {
			fifo = new(deque.Deque[*ioq.Op])
			q.streams[op.StreamID] = fifo
			q.order = append(q.order, op.StreamID)
		}
		fifo.PushBack(op)
		q.queued++
	}
	q.enqueued.Add(uint64(len(ops)))
	q.cond.Broadcast()
	return nil
}

// Acquire implements the acquire callback.
func (q *Queue) Acquire(ctx context.Context, hint ioq.StreamID, ops []*ioq.Op, wait bool) (int, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.cond.Broadcast()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.canceled || ctx.Err() != nil {
			return 0, ioq.ErrCanceled
		}
		if q.queued > 0 {
			n := q.fillLocked(hint, ops)
			return n, nil
		}
		if !wait {
			return 0, ioq.ErrShouldWait
		}
		q.waiting++
		q.cond.Wait()
		q.waiting--
	}
}

func (q *Queue) fillLocked(hint ioq.StreamID, ops []*ioq.Op) int {
	n := 0
	take := func(id ioq.StreamID) {
		fifo := q.streams[id]
		for fifo != nil && fifo.Len() > 0 && n < len(ops) {
			ops[n] = fifo.PopFront()
			n++
		}
	}
	take(hint)
	for _, id := range q.order {
		if n == len(ops) {
			break
		}
		if id != hint {
			take(id)
		}
	}
	q.queued -= n
	q.pending += n
	q.acquired.Add(uint64(n))
	if q.queued == 0 {
		q.cond.Broadcast()
	}
	return n
}

// Release implements the release callback.
func (q *Queue) Release(_ context.Context, op *ioq.Op) {
	q.mu.Lock()
	q.pending--
	q.cond.Broadcast()
	q.mu.Unlock()

	q.released.Add(1)
	if q.onRelease != nil {
		q.onRelease(op)
	}
}

// CancelAcquire implements the cancel callback. Blocked and later
// Acquire calls return ioq.ErrCanceled.
func (q *Queue) CancelAcquire(context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.canceled = true
	q.cond.Broadcast()
}

// WaitEmpty blocks until every enqueued op has been acquired and
// released, or ctx is done.
func (q *Queue) WaitEmpty(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.cond.Broadcast()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.queued > 0 || q.pending > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.cond.Wait()
	}
	return nil
}

// Len returns the number of ops not yet acquired.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queued
}

// Waiting returns the number of Acquire calls blocked for ops.
func (q *Queue) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiting
}

// Streams returns the ids of streams that have had ops enqueued,
// sorted.
func (q *Queue) Streams() []ioq.StreamID {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := slices.Clone(q.order)
	slices.Sort(ids)
	return ids
}

// Counts reports how many ops were enqueued, acquired and released.
func (q *Queue) Counts() (enqueued, acquired, released uint64) {
	return q.enqueued.Load(), q.acquired.Load(), q.released.Load()
}
