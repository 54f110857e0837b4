package ioq

import (
	"errors"
	"strconv"
)

var (
	// ErrInvalidArgument reports a bad id, priority or worker count.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrAlreadyExists reports a stream id that is already open.
	ErrAlreadyExists = errors.New("stream already exists")
	// ErrNotFound reports a stream id that is not open.
	ErrNotFound = errors.New("stream not found")
	// ErrBusy reports a stream that still has ready or issued ops.
	ErrBusy = errors.New("stream busy")
	// ErrBadState reports a call made in the wrong lifecycle state.
	ErrBadState = errors.New("bad state")

	// ErrCanceled is returned by Acquire once CancelAcquire has been
	// called. It is also the result of ready ops that were aborted
	// before they could be issued.
	ErrCanceled = errors.New("canceled")
	// ErrShouldWait is returned by a non-blocking Acquire that has no
	// ops available.
	ErrShouldWait = errors.New("should wait")
	// ErrAsync is returned by Issue when the op will be completed
	// later through Scheduler.Complete.
	ErrAsync = errors.New("completes asynchronously")
	// ErrPending is the Result of an op that has not completed yet.
	ErrPending = errors.New("pending")

	// ErrProtocol reports a client that broke the callback contract,
	// for example by completing an op twice.
	ErrProtocol = errors.New("protocol violation")
	// ErrDrainTimeout reports ops that did not complete within the
	// drain timeout during shutdown.
	ErrDrainTimeout = errors.New("drain timed out")
)

// StreamError records a failed stream operation and the stream it
// applied to.
type StreamError struct {
	Op  string
	ID  StreamID
	Err error
}

func (e *StreamError) Error() string {
	return "ioq: " + e.Op + " stream " + strconv.FormatUint(uint64(e.ID), 10) + ": " + e.Err.Error()
}

func (e *StreamError) Unwrap() error { return e.Err }
