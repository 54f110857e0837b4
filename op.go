package ioq

import (
	"strconv"
	"sync/atomic"
)

// Opcode is the logical operation an op performs. The scheduler never
// interprets it beyond carrying it to the executor.
type Opcode uint32

const (
	OpUnknown Opcode = iota
	OpRead
	OpWrite
	OpDiscard
	OpRename
	OpSync
	OpCommand
)

var opcodeNames = [...]string{
	OpUnknown: "unknown",
	OpRead:    "read",
	OpWrite:   "write",
	OpDiscard: "discard",
	OpRename:  "rename",
	OpSync:    "sync",
	OpCommand: "command",
}

func (c Opcode) String() string {
	if int(c) < len(opcodeNames) {
		return opcodeNames[c]
	}
	return "opcode(" + strconv.FormatUint(uint64(c), 10) + ")"
}

// OpFlags are ordering hints supplied by the source. Ops in a stream
// are always issued in acquisition order, so barriers are carried to
// the executor unchanged.
type OpFlags uint32

const (
	FlagReadBarrier OpFlags = 1 << iota
	FlagWriteBarrier

	FlagFullBarrier = FlagReadBarrier | FlagWriteBarrier
)

// OpState is the position of an op in its lifecycle.
type OpState uint32

const (
	OpUnacquired OpState = iota
	OpAcquired
	OpReady
	OpIssued
	OpCompleted
	OpReleased
)

var opStateNames = [...]string{
	OpUnacquired: "unacquired",
	OpAcquired:   "acquired",
	OpReady:      "ready",
	OpIssued:     "issued",
	OpCompleted:  "completed",
	OpReleased:   "released",
}

func (s OpState) String() string {
	if int(s) < len(opStateNames) {
		return opStateNames[s]
	}
	return "opstate(" + strconv.FormatUint(uint64(s), 10) + ")"
}

// Op is the generic unit of I/O scheduled by a Scheduler. Sources
// usually embed it, or point Cookie at, their own request type. The
// scheduler never allocates or frees ops; an op must not be reused
// until it has been released.
type Op struct {
	Opcode   Opcode
	Flags    OpFlags
	StreamID StreamID

	// Result is the outcome of the op. It is ErrPending from
	// acquisition until completion. Executors completing an op
	// synchronously set it before Issue returns.
	Result error

	// Cookie is opaque to the scheduler.
	Cookie any

	state  atomic.Uint32             // OpState
	owner  atomic.Pointer[Scheduler] // Scheduler holding the op, nil once released
	seq    uint64                    // acquisition order, guarded by dispatcher.mu
	stream *Stream                   // owning stream while admitted
}

// State reports the current lifecycle state of the op.
func (op *Op) State() OpState {
	return OpState(op.state.Load())
}

func (op *Op) transition(from, to OpState) bool {
	return op.state.CompareAndSwap(uint32(from), uint32(to))
}

// step moves op through every state after from, up to and including
// to. It reports false if op was not in from.
func (op *Op) step(from, to OpState) bool {
	for st := from; st < to; st++ {
		if !op.transition(st, st+1) {
			return false
		}
	}
	return true
}

// admit moves a fresh or previously released op to Acquired.
func (op *Op) admit() bool {
	for {
		s := op.state.Load()
		if OpState(s) != OpUnacquired && OpState(s) != OpReleased {
			return false
		}
		if op.state.CompareAndSwap(s, uint32(OpAcquired)) {
			return true
		}
	}
}
