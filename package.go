// Package ioq provides an asynchronous I/O op scheduler. It sits
// between an op source and an op executor, admits ops into
// priority-tagged streams, orders them fairly, issues them on a pool
// of workers and tracks each op through to its release.
//
// Key components:
//
//   - Op: The unit of work. An op carries an opcode, flags, the id of
//     the stream it belongs to and its result. It moves through
//     Unacquired, Acquired, Ready, Issued, Completed and Released,
//     in that order.
//
//   - Stream: A priority-tagged channel of ops with a ready queue and
//     an issued queue. Ops within a stream are issued in acquisition
//     order.
//
//   - Scheduler: The lifecycle controller. It owns the stream table,
//     the dispatcher and the worker pool, and walks the state machine
//     Initialized, Ready, Serving, ShuttingDown, ShutDown.
//
//   - Callbacks: Interface implemented by the client. Acquire pulls
//     ops from the source, Issue hands them to the executor, Release
//     returns them, CancelAcquire unblocks the source during shutdown
//     and Fatal reports unrecoverable errors.
//
// Streams are serviced by smooth weighted round-robin keyed by
// priority: higher priorities receive proportionally more turns and
// no stream with work is starved. A global in-flight bound applies
// backpressure to the source.
package ioq
