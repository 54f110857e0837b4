package ioq

import (
	"context"
	"errors"
	"fmt"
	"runtime/trace"
)

const (
	workerTraceTaskType    = "ioq-worker"
	acquireTraceRegionType = "ioq-acquire"
	issueTraceRegionType   = "ioq-issue"
	workerTraceCategory    = "ioq"
)

// worker is one execution context of the pool. It repeatedly asks the
// dispatcher for a turn and performs it.
type worker struct {
	id    int
	sched *Scheduler
	buf   []*Op // Acquire batch buffer
}

func newWorker(s *Scheduler, id int) *worker {
	return &worker{id: id, sched: s, buf: make([]*Op, s.cfg.AcquireBatch)}
}

func (w *worker) run(ctx context.Context) {
	var tracer *trace.Task

	ctx, tracer = trace.NewTask(withWorker(ctx, w.id), workerTraceTaskType)
	defer tracer.End()

	// Issued ops outlive shutdown's cancellation of acquire.
	ictx := context.WithoutCancel(ctx)

	w.logf(ctx, "START")
	for {
		t := w.sched.disp.next()
		switch t.kind {
		case turnAcquire:
			w.acquire(ctx, t)
		case turnIssue:
			w.issue(ictx, t.op)
		default:
			w.logf(ctx, "EXIT")
			return
		}
	}
}

func (w *worker) acquire(ctx context.Context, t turn) {
	s := w.sched
	w.logf(ctx, "ACQUIRE hint %d batch %d wait %v", t.hint, t.n, t.wait)

	region := trace.StartRegion(ctx, acquireTraceRegionType)
	n, err := s.cb.Acquire(ctx, t.hint, w.buf[:t.n], t.wait)
	region.End()

	if n < 0 || n > t.n {
		_ = s.violation(fmt.Sprintf("acquire count %d of %d", n, t.n), OpUnacquired)
		n = max(0, min(n, t.n))
	}
	if n > 0 {
		s.admit(w.buf[:n])
		clear(w.buf[:n])
	}

	switch {
	case err == nil:
		s.disp.acquireDone(n == 0, false)
	case errors.Is(err, ErrShouldWait):
		s.disp.acquireDone(true, false)
	case errors.Is(err, ErrCanceled), ctx.Err() != nil:
		w.logf(ctx, "ACQUIRE CANCELED")
		s.disp.acquireDone(false, true)
	default:
		// Escalate before freeing the slot so no other worker acquires.
		s.escalate(fmt.Errorf("ioq: acquire: %w", err))
		s.disp.acquireDone(false, true)
	}
}

func (w *worker) issue(ctx context.Context, op *Op) {
	s := w.sched

	region := trace.StartRegion(ctx, issueTraceRegionType)
	err := s.cb.Issue(ctx, op)
	region.End()

	switch {
	case err == nil:
		_ = s.complete(op, nil, false)
	case errors.Is(err, ErrAsync):
		// Completed through Scheduler.Complete; op may already be
		// released.
	default:
		_ = s.complete(op, err, true)
		s.escalate(fmt.Errorf("ioq: issue: %w", err))
	}
}

func (w *worker) logf(ctx context.Context, format string, args ...any) {
	if trace.IsEnabled() {
		trace.Logf(ctx, workerTraceCategory, "worker %d "+format, append([]any{w.id}, args...)...)
	}
}
