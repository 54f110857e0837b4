package source

import (
	"context"
	"sync"

	"github.com/webriots/coro"
	"github.com/webriots/ioq"
)

// Generator is an op source backed by a coroutine. The producer
// function yields ops one at a time and runs only while Acquire is
// pulling from it, so a workload can be written as straight-line code
// without buffering it up front.
type Generator struct {
	mu     sync.Mutex
	resume func(struct{}) (*ioq.Op, bool)
	cancel func()
	done   bool

	canceled   chan struct{}
	cancelOnce sync.Once
}

// NewGenerator returns a generator that produces the ops yielded by
// fn. fn returns when the workload is exhausted.
func NewGenerator(fn func(yield func(*ioq.Op))) *Generator {
	g := &Generator{canceled: make(chan struct{})}
	g.resume, g.cancel = coro.New(
		func(yield func(*ioq.Op) struct{}, _ func() struct{}) (z *ioq.Op) {
			fn(func(op *ioq.Op) { yield(op) })
			return
		},
	)
	return g
}

// Acquire implements the acquire callback. The hint is ignored; every
// op goes to the stream it names. Once the producer is exhausted a
// waiting Acquire blocks until it is canceled.
func (g *Generator) Acquire(ctx context.Context, _ ioq.StreamID, ops []*ioq.Op, wait bool) (int, error) {
	g.mu.Lock()
	n := 0
	if !g.isCanceled() {
		for !g.done && n < len(ops) {
			op, ok := g.resume(struct{}{})
			if !ok || op == nil {
				g.done = true
				break
			}
			ops[n] = op
			n++
		}
	}
	g.mu.Unlock()

	switch {
	case n > 0:
		return n, nil
	case g.isCanceled():
		return 0, ioq.ErrCanceled
	case !wait:
		return 0, ioq.ErrShouldWait
	}

	select {
	case <-g.canceled:
	case <-ctx.Done():
	}
	return 0, ioq.ErrCanceled
}

// CancelAcquire implements the cancel callback.
func (g *Generator) CancelAcquire(context.Context) {
	g.cancelOnce.Do(func() { close(g.canceled) })
}

// Exhausted reports whether the producer has returned.
func (g *Generator) Exhausted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.done
}

// Close stops the producer. Ops it has not yet yielded are never
// produced.
func (g *Generator) Close() {
	g.CancelAcquire(context.Background())
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.done {
		g.done = true
		g.cancel()
	}
}

func (g *Generator) isCanceled() bool {
	select {
	case <-g.canceled:
		return true
	default:
		return false
	}
}
