package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/webriots/ioq"
)

func TestQueueHintFirst(t *testing.T) {
	r := require.New(t)

	q := NewQueue(nil)
	a1 := &ioq.Op{StreamID: 1}
	a2 := &ioq.Op{StreamID: 1}
	b1 := &ioq.Op{StreamID: 2}
	b2 := &ioq.Op{StreamID: 2}
	r.NoError(q.Enqueue(a1, a2, b1, b2))
	r.Equal(4, q.Len())
	r.Equal([]ioq.StreamID{1, 2}, q.Streams())

	ops := make([]*ioq.Op, 3)
	n, err := q.Acquire(context.Background(), 2, ops, false)
	r.NoError(err)
	r.Equal(3, n)
	r.Equal([]*ioq.Op{b1, b2, a1}, ops)

	n, err = q.Acquire(context.Background(), 2, ops, false)
	r.NoError(err)
	r.Equal(1, n)
	r.Same(a2, ops[0])

	n, err = q.Acquire(context.Background(), 1, ops, false)
	r.ErrorIs(err, ioq.ErrShouldWait)
	r.Zero(n)

	enq, acq, rel := q.Counts()
	r.Equal(uint64(4), enq)
	r.Equal(uint64(4), acq)
	r.Zero(rel)
}

func TestQueueWaitWakesOnEnqueue(t *testing.T) {
	r := require.New(t)

	q := NewQueue(nil)
	got := make(chan int, 1)
	go func() {
		n, _ := q.Acquire(context.Background(), 7, make([]*ioq.Op, 4), true)
		got <- n
	}()

	r.Eventually(func() bool { return q.Waiting() == 1 }, time.Second, time.Millisecond)
	r.NoError(q.Enqueue(&ioq.Op{StreamID: 7}))

	select {
	case n := <-got:
		r.Equal(1, n)
	case <-time.After(time.Second):
		r.Fail("acquire not woken")
	}
}

func TestQueueCancel(t *testing.T) {
	r := require.New(t)

	q := NewQueue(nil)
	errc := make(chan error, 1)
	go func() {
		_, err := q.Acquire(context.Background(), 1, make([]*ioq.Op, 1), true)
		errc <- err
	}()

	r.Eventually(func() bool { return q.Waiting() == 1 }, time.Second, time.Millisecond)
	q.CancelAcquire(context.Background())
	r.ErrorIs(<-errc, ioq.ErrCanceled)
	r.ErrorIs(q.Enqueue(&ioq.Op{}), ioq.ErrCanceled)

	_, err := q.Acquire(context.Background(), 1, make([]*ioq.Op, 1), false)
	r.ErrorIs(err, ioq.ErrCanceled)
}

func TestQueueContextCancel(t *testing.T) {
	r := require.New(t)

	q := NewQueue(nil)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := q.Acquire(ctx, 1, make([]*ioq.Op, 1), true)
		errc <- err
	}()

	r.Eventually(func() bool { return q.Waiting() == 1 }, time.Second, time.Millisecond)
	cancel()
	r.ErrorIs(<-errc, ioq.ErrCanceled)
}

func TestQueueWaitEmpty(t *testing.T) {
	r := require.New(t)

	var released []*ioq.Op
	q := NewQueue(func(op *ioq.Op) { released = append(released, op) })
	op := &ioq.Op{StreamID: 3}
	r.NoError(q.Enqueue(op))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	r.ErrorIs(q.WaitEmpty(ctx), context.DeadlineExceeded)

	ops := make([]*ioq.Op, 1)
	n, err := q.Acquire(context.Background(), 3, ops, false)
	r.NoError(err)
	r.Equal(1, n)

	done := make(chan error, 1)
	go func() { done <- q.WaitEmpty(context.Background()) }()
	q.Release(context.Background(), op)
	r.NoError(<-done)
	r.Equal([]*ioq.Op{op}, released)
}
