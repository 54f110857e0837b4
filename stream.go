package ioq

import (
	"sync"
	"sync/atomic"

	"github.com/gammazero/deque"
)

// StreamID is the caller-chosen identifier of a stream.
type StreamID uint32

// Stream is an ordered, priority-tagged channel of ops. Its queues are
// guarded by the stream's own lock; its scheduling state is guarded by
// the dispatcher lock.
type Stream struct {
	noCopy   noCopy
	id       StreamID
	priority uint32
	weight   int

	// Guarded by dispatcher.mu.
	inflight    int  // Ops in ready or issued
	nready      int  // Ops in ready
	issueCredit int  // Smooth round-robin credit for issue turns
	acqCredit   int  // Smooth round-robin credit for acquire turns
	closed      bool // Removed from the table

	acquired atomic.Uint64
	issuedN  atomic.Uint64
	released atomic.Uint64

	mu     sync.Mutex
	ready  deque.Deque[*Op] // Acquired ops awaiting issue, in acquisition order
	issued deque.Deque[*Op] // In-flight ops, in issue order
}

func newStream(id StreamID, priority uint32) *Stream {
	w := int(priority)
	if w == 0 {
		// Lowest priority still gets a turn.
		w = 1
	}
	return &Stream{id: id, priority: priority, weight: w}
}

// ID returns the stream identifier.
func (s *Stream) ID() StreamID { return s.id }

// Priority returns the stream priority.
func (s *Stream) Priority() uint32 { return s.priority }

func (s *Stream) pushReady(op *Op) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready.PushBack(op)
}

// headSeq returns the acquisition sequence of the oldest ready op.
func (s *Stream) headSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready.Len() == 0 {
		return ^uint64(0)
	}
	return s.ready.Front().seq
}

// issueHead moves the oldest ready op to the issued queue.
func (s *Stream) issueHead() *Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready.Len() == 0 {
		return nil
	}
	op := s.ready.PopFront()
	if !op.transition(OpReady, OpIssued) {
		panic("ioq: ready op in state " + op.State().String())
	}
	s.issued.PushBack(op)
	return op
}

// retire removes op from the issued queue. It reports false if op was
// not issued on this stream.
func (s *Stream) retire(op *Op) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.issued.Index(func(o *Op) bool { return o == op })
	if i < 0 {
		return false
	}
	s.issued.Remove(i)
	return true
}

// drainReady empties the ready queue and returns its ops in order.
func (s *Stream) drainReady() []*Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := make([]*Op, 0, s.ready.Len())
	for s.ready.Len() > 0 {
		ops = append(ops, s.ready.PopFront())
	}
	return ops
}

// empty reports whether both queues are empty.
func (s *Stream) empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready.Len() == 0 && s.issued.Len() == 0
}

func (s *Stream) lens() (ready, issued int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready.Len(), s.issued.Len()
}
