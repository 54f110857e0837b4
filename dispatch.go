package ioq

import (
	"context"
	"slices"
	"sync"
)

type turnKind int

const (
	turnExit turnKind = iota
	turnAcquire
	turnIssue
)

// turn is the unit of work handed to a worker by the dispatcher.
type turn struct {
	kind turnKind
	hint StreamID // Acquire: stream whose turn it is
	n    int      // Acquire: batch size
	wait bool     // Acquire: nothing is ready, the source may block
	op   *Op      // Issue: op already moved to the issued queue
}

// dispatcher decides which stream is serviced next, both when pulling
// ops from the source and when handing ready ops to workers.
type dispatcher struct {
	cfg  *Config
	mu   sync.Mutex
	cond sync.Cond

	// The fields below are guarded by mu.
	rotation    []*Stream     // Open streams in open order
	ready       int           // Ops in ready queues
	outstanding int           // Ops acquired and not yet released
	acquiring   bool          // A worker is inside Acquire
	dry         bool          // Last non-blocking acquire returned nothing
	canceled    bool          // No further acquires
	seq         uint64        // Acquisition counter
	drained     chan struct{} // Closed once canceled with nothing outstanding
	isDrained   bool
}

func newDispatcher(cfg *Config) *dispatcher {
	d := &dispatcher{cfg: cfg, drained: make(chan struct{})}
	d.cond.L = &d.mu
	return d
}

func (d *dispatcher) add(st *Stream) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rotation = append(d.rotation, st)
	d.cond.Broadcast()
}

// remove takes st out of the rotation if its queues are empty. An op
// being released may still hold an admission slot on st.
func (d *dispatcher) remove(st *Stream) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !st.empty() {
		return ErrBusy
	}
	st.closed = true
	d.rotation = slices.DeleteFunc(d.rotation, func(s *Stream) bool { return s == st })
	return nil
}

// next blocks until there is a turn for the calling worker.
func (d *dispatcher) next() turn {
	d.mu.Lock()
	defer d.mu.Unlock()
	for {
		if !d.canceled && !d.acquiring && !(d.dry && d.ready > 0) {
			if st, n := d.acquireTurnLocked(); st != nil {
				d.acquiring = true
				return turn{kind: turnAcquire, hint: st.id, n: n, wait: d.ready == 0}
			}
		}
		if d.ready > 0 {
			d.dry = false
			return turn{kind: turnIssue, op: d.issueTurnLocked()}
		}
		if d.canceled {
			return turn{kind: turnExit}
		}
		d.cond.Wait()
	}
}

// acquireTurnLocked picks the stream whose turn it is to receive ops
// and the batch size to request for it. Streams at capacity are
// skipped without earning credit.
func (d *dispatcher) acquireTurnLocked() (*Stream, int) {
	room := d.cfg.MaxInFlight - d.outstanding
	if room <= 0 {
		return nil, 0
	}
	var best *Stream
	total := 0
	for _, st := range d.rotation {
		if st.inflight >= d.cfg.StreamDepth {
			continue
		}
		st.acqCredit += st.weight
		total += st.weight
		if best == nil || st.acqCredit > best.acqCredit {
			best = st
		}
	}
	if best == nil {
		return nil, 0
	}
	best.acqCredit -= total
	return best, min(d.cfg.AcquireBatch, room, d.cfg.StreamDepth-best.inflight)
}

// issueTurnLocked pops the next ready op. Ties between streams with
// equal credit go to the one whose head op has waited longest.
func (d *dispatcher) issueTurnLocked() *Op {
	var best *Stream
	var bestSeq uint64
	total := 0
	for _, st := range d.rotation {
		if st.nready == 0 {
			continue
		}
		st.issueCredit += st.weight
		total += st.weight
		seq := st.headSeq()
		if best == nil ||
			st.issueCredit > best.issueCredit ||
			(st.issueCredit == best.issueCredit && seq < bestSeq) {
			best, bestSeq = st, seq
		}
	}
	if best == nil {
		panic("ioq: ready ops without a ready stream")
	}
	best.issueCredit -= total
	op := best.issueHead()
	best.nready--
	d.ready--
	best.issuedN.Add(1)
	return op
}

// admit queues acquired ops on their streams. Ops whose stream is not
// open are returned for release.
func (d *dispatcher) admit(ops []*Op, lookup func(StreamID) *Stream) (rejected []*Op) {
	d.mu.Lock()
	defer d.mu.Unlock()
	admitted := 0
	for _, op := range ops {
		st := lookup(op.StreamID)
		if st == nil || st.closed {
			rejected = append(rejected, op)
			continue
		}
		d.seq++
		op.seq = d.seq
		op.stream = st
		st.inflight++
		st.nready++
		d.ready++
		d.outstanding++
		st.acquired.Add(1)
		op.transition(OpAcquired, OpReady)
		st.pushReady(op)
		admitted++
	}
	if admitted > 0 {
		d.cond.Broadcast()
	}
	return rejected
}

// acquireDone frees the acquire slot. canceled stops further acquires.
func (d *dispatcher) acquireDone(dry, canceled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquiring = false
	d.dry = dry
	if canceled {
		d.canceled = true
	}
	d.checkDrainedLocked()
	d.cond.Broadcast()
}

// retired returns the admission slot held by a released op of st.
func (d *dispatcher) retired(st *Stream) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st.inflight--
	d.outstanding--
	d.checkDrainedLocked()
	d.cond.Broadcast()
}

// cancel stops further acquires. Workers drain what is ready and exit.
func (d *dispatcher) cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.canceled = true
	d.checkDrainedLocked()
	d.cond.Broadcast()
}

// abort cancels and takes every ready op out of its stream. The ops
// keep their admission slots until they are released.
func (d *dispatcher) abort() []*Op {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.canceled = true
	var ops []*Op
	for _, st := range d.rotation {
		if st.nready == 0 {
			continue
		}
		drained := st.drainReady()
		st.nready -= len(drained)
		d.ready -= len(drained)
		ops = append(ops, drained...)
	}
	d.checkDrainedLocked()
	d.cond.Broadcast()
	return ops
}

func (d *dispatcher) checkDrainedLocked() {
	if d.isDrained || !d.canceled || d.acquiring || d.outstanding > 0 {
		return
	}
	d.isDrained = true
	close(d.drained)
}

// waitDrained blocks until the dispatcher is canceled with nothing
// outstanding, or ctx is done.
func (d *dispatcher) waitDrained(ctx context.Context) error {
	select {
	case <-d.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *dispatcher) counts() (ready, outstanding int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready, d.outstanding
}

// clear drops every stream from the rotation.
func (d *dispatcher) clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, st := range d.rotation {
		st.closed = true
	}
	d.rotation = nil
}
