package ioq

import (
	"fmt"

	"go.uber.org/zap"
)

// Complete reports the completion of an op whose Issue call returned
// ErrAsync. It may be called from any goroutine, before or after Issue
// returns. The op is released before Complete returns.
//
// Completing an op that is not issued, including a second completion
// of the same op or an op held by another scheduler, is a protocol
// violation: it is logged, counted and returned as an error wrapping
// ErrProtocol.
func (s *Scheduler) Complete(op *Op, result error) error {
	if op == nil {
		return fmt.Errorf("ioq: complete nil op: %w", ErrInvalidArgument)
	}
	return s.complete(op, result, true)
}

// complete moves op from Issued to Completed and releases it. The
// first completion wins. setResult is false for synchronous
// completions, whose result the executor already stored; a result
// still ErrPending then becomes nil.
func (s *Scheduler) complete(op *Op, result error, setResult bool) error {
	if op.owner.Load() != s {
		return s.violation("complete unowned", op.State())
	}
	if !op.transition(OpIssued, OpCompleted) {
		return s.violation("complete", op.State())
	}
	st := op.stream
	if st == nil || !st.retire(op) {
		panic("ioq: issued op missing from its stream")
	}
	switch {
	case setResult:
		op.Result = result
	case op.Result == ErrPending:
		op.Result = nil
	}
	s.release(op, st)
	return nil
}

// abandon completes a ready op that will never be handed to the
// executor. It still passes through Issued.
func (s *Scheduler) abandon(op *Op) {
	st := op.stream
	if !op.step(OpReady, OpCompleted) {
		panic("ioq: abandoned op in state " + op.State().String())
	}
	op.Result = ErrCanceled
	s.release(op, st)
}

// release hands op back to the source and returns its admission slot.
// op must not be touched once the Release callback has been entered.
func (s *Scheduler) release(op *Op, st *Stream) {
	op.stream = nil
	op.owner.Store(nil)
	if !op.transition(OpCompleted, OpReleased) {
		panic("ioq: released op in state " + op.State().String())
	}
	st.released.Add(1)
	s.cb.Release(s.ctx, op)
	s.disp.retired(st)
}

// admit takes ownership of freshly acquired ops and queues them on
// their streams. Ops for streams that are not open are released with
// a StreamError result.
func (s *Scheduler) admit(ops []*Op) {
	accepted := ops[:0]
	for _, op := range ops {
		if op == nil {
			_ = s.violation("acquire nil", OpUnacquired)
			continue
		}
		if !op.admit() {
			_ = s.violation("acquire", op.State())
			continue
		}
		op.Result = ErrPending
		op.owner.Store(s)
		accepted = append(accepted, op)
	}
	if len(accepted) == 0 {
		return
	}

	s.mu.RLock()
	rejected := s.disp.admit(accepted, s.lookupLocked)
	s.mu.RUnlock()

	for _, op := range rejected {
		s.log.Warn("op for stream that is not open", zap.Uint32("stream", uint32(op.StreamID)))
		op.Result = &StreamError{Op: "enqueue", ID: op.StreamID, Err: ErrNotFound}
		op.owner.Store(nil)
		op.step(OpAcquired, OpReleased)
		s.cb.Release(s.ctx, op)
	}
}

// violation reports a broken callback contract. With strict protocol
// enabled the violation is fatal.
func (s *Scheduler) violation(what string, state OpState) error {
	err := fmt.Errorf("ioq: %s op in state %v: %w", what, state, ErrProtocol)
	s.violations.Add(1)
	s.log.Error("protocol violation", zap.Error(err))
	if s.cfg.StrictProtocol {
		s.escalate(err)
	}
	return err
}
