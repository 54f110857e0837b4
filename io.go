package ioq

import "context"

// Callbacks is implemented by the client that supplies and executes
// ops. Every callback is made with no scheduler locks held and may
// block.
type Callbacks interface {
	// Acquire fills ops with up to len(ops) ops and returns the number
	// written. hint names the stream whose turn caused the call; the
	// source may return ops for any open stream. If wait is true the
	// call may block until ops are available. It returns ErrShouldWait
	// when wait is false and nothing is available, and ErrCanceled once
	// CancelAcquire has been called. Any other error is fatal.
	Acquire(ctx context.Context, hint StreamID, ops []*Op, wait bool) (int, error)

	// Issue executes op. It returns nil when the op completed (or
	// failed) synchronously, with the outcome in op.Result, and
	// ErrAsync when the op will be completed through
	// Scheduler.Complete. A synchronous completion that leaves
	// op.Result at ErrPending is recorded as success. Any other error
	// is fatal to the scheduler.
	Issue(ctx context.Context, op *Op) error

	// Release is called exactly once for every acquired op. The
	// scheduler keeps no reference to op afterwards.
	Release(ctx context.Context, op *Op)

	// CancelAcquire makes blocked and future Acquire calls return
	// ErrCanceled.
	CancelAcquire(ctx context.Context)

	// Fatal reports an unrecoverable error. It runs on its own
	// goroutine and the scheduler shuts itself down after it is
	// called.
	Fatal(ctx context.Context, err error)
}

// Funcs adapts a set of functions to the Callbacks interface. Every
// field must be set.
type Funcs struct {
	AcquireFn       func(ctx context.Context, hint StreamID, ops []*Op, wait bool) (int, error)
	IssueFn         func(ctx context.Context, op *Op) error
	ReleaseFn       func(ctx context.Context, op *Op)
	CancelAcquireFn func(ctx context.Context)
	FatalFn         func(ctx context.Context, err error)
}

func (f *Funcs) Acquire(ctx context.Context, hint StreamID, ops []*Op, wait bool) (int, error) {
	return f.AcquireFn(ctx, hint, ops, wait)
}

func (f *Funcs) Issue(ctx context.Context, op *Op) error {
	return f.IssueFn(ctx, op)
}

func (f *Funcs) Release(ctx context.Context, op *Op) {
	f.ReleaseFn(ctx, op)
}

func (f *Funcs) CancelAcquire(ctx context.Context) {
	f.CancelAcquireFn(ctx)
}

func (f *Funcs) Fatal(ctx context.Context, err error) {
	f.FatalFn(ctx, err)
}

func (f *Funcs) complete() bool {
	return f.AcquireFn != nil &&
		f.IssueFn != nil &&
		f.ReleaseFn != nil &&
		f.CancelAcquireFn != nil &&
		f.FatalFn != nil
}
