package ioq

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestDispatcher(cfg Config, streams ...*Stream) (*dispatcher, func(StreamID) *Stream) {
	d := newDispatcher(&cfg)
	table := newStreamTable()
	for _, st := range streams {
		table.insert(st)
		d.add(st)
	}
	return d, table.lookup
}

func acquired(ops ...*Op) []*Op {
	for _, op := range ops {
		if !op.admit() {
			panic("op not admissible")
		}
	}
	return ops
}

func TestIssueRotation(t *testing.T) {
	r := require.New(t)

	a, b, c := newStream(1, 8), newStream(2, 8), newStream(3, 8)
	d, lookup := newTestDispatcher(DefaultConfig(), a, b, c)

	var ops []*Op
	for _, id := range []StreamID{1, 1, 1, 2, 2, 2, 3, 3, 3} {
		ops = append(ops, &Op{StreamID: id})
	}
	r.Empty(d.admit(acquired(ops...), lookup))
	r.Equal(9, d.ready)

	var order []StreamID
	for d.ready > 0 {
		order = append(order, d.issueTurnLocked().StreamID)
	}
	r.Equal([]StreamID{1, 2, 3, 1, 2, 3, 1, 2, 3}, order)
	for _, op := range ops {
		r.Equal(OpIssued, op.State())
	}
}

func TestIssueFIFOWithinStream(t *testing.T) {
	r := require.New(t)

	st := newStream(4, DefaultPriority)
	d, lookup := newTestDispatcher(DefaultConfig(), st)

	ops := []*Op{{StreamID: 4}, {StreamID: 4}, {StreamID: 4}}
	r.Empty(d.admit(acquired(ops...), lookup))
	for _, want := range ops {
		r.Same(want, d.issueTurnLocked())
	}
	ready, issued := st.lens()
	r.Zero(ready)
	r.Equal(3, issued)
}

func TestAcquireWeights(t *testing.T) {
	r := require.New(t)

	cfg := DefaultConfig()
	cfg.MaxInFlight = 1 << 20
	cfg.StreamDepth = 1 << 20

	hi, lo, zero := newStream(1, MaxPriority), newStream(2, 1), newStream(3, 0)
	d, _ := newTestDispatcher(cfg, hi, lo, zero)

	turns := map[StreamID]int{}
	for range 33 * 10 {
		st, n := d.acquireTurnLocked()
		r.NotNil(st)
		r.Equal(cfg.AcquireBatch, n)
		turns[st.id]++
	}
	r.Equal(310, turns[1])
	r.Equal(10, turns[2])
	r.Equal(10, turns[3])
}

func TestAcquireCapacity(t *testing.T) {
	r := require.New(t)

	cfg := DefaultConfig()
	cfg.MaxInFlight = 10
	cfg.StreamDepth = 4
	cfg.AcquireBatch = 8

	a, b := newStream(1, 8), newStream(2, 8)
	d, lookup := newTestDispatcher(cfg, a, b)

	st, n := d.acquireTurnLocked()
	r.Same(a, st)
	r.Equal(4, n)
	r.Empty(d.admit(acquired(&Op{StreamID: 1}, &Op{StreamID: 1}, &Op{StreamID: 1}, &Op{StreamID: 1}), lookup))

	// a is full and earns no credit while skipped.
	st, n = d.acquireTurnLocked()
	r.Same(b, st)
	r.Equal(4, n)
	r.Empty(d.admit(acquired(&Op{StreamID: 2}, &Op{StreamID: 2}, &Op{StreamID: 2}, &Op{StreamID: 2}), lookup))

	st, _ = d.acquireTurnLocked()
	r.Nil(st)

	r.NoError(d.remove(newStream(9, 0)))
	r.Equal(2, len(d.rotation))
	r.ErrorIs(d.remove(a), ErrBusy)

	cfg2 := DefaultConfig()
	cfg2.MaxInFlight = 2
	d2, lookup2 := newTestDispatcher(cfg2, newStream(1, 8))
	r.Empty(d2.admit(acquired(&Op{StreamID: 1}), lookup2))
	_, n = d2.acquireTurnLocked()
	r.Equal(1, n)
}

func TestAdmitUnknownStream(t *testing.T) {
	r := require.New(t)

	d, lookup := newTestDispatcher(DefaultConfig(), newStream(1, 8))
	good, bad := &Op{StreamID: 1}, &Op{StreamID: 2}
	rejected := d.admit(acquired(good, bad), lookup)
	r.Equal([]*Op{bad}, rejected)
	r.Equal(OpReady, good.State())
	r.Equal(OpAcquired, bad.State())
	ready, outstanding := d.counts()
	r.Equal(1, ready)
	r.Equal(1, outstanding)
}

func TestNextTurns(t *testing.T) {
	r := require.New(t)

	st := newStream(1, 8)
	d, lookup := newTestDispatcher(DefaultConfig(), st)

	tn := d.next()
	r.Equal(turnAcquire, tn.kind)
	r.Equal(StreamID(1), tn.hint)
	r.True(tn.wait)

	r.Empty(d.admit(acquired(&Op{StreamID: 1}), lookup))
	d.acquireDone(true, false)

	// Dry source with ready ops: issue instead of acquiring again.
	tn = d.next()
	r.Equal(turnIssue, tn.kind)
	r.Equal(OpIssued, tn.op.State())

	tn = d.next()
	r.Equal(turnAcquire, tn.kind)
	r.True(tn.wait)
	d.acquireDone(false, true)

	r.Equal(turnExit, d.next().kind)
	select {
	case <-d.drained:
		r.Fail("drained with an op outstanding")
	default:
	}

	st.retire(st.issued.Front())
	d.retired(st)
	<-d.drained
}

func TestAbort(t *testing.T) {
	r := require.New(t)

	a, b := newStream(1, 8), newStream(2, 8)
	d, lookup := newTestDispatcher(DefaultConfig(), a, b)
	r.Empty(d.admit(acquired(&Op{StreamID: 1}, &Op{StreamID: 2}, &Op{StreamID: 2}), lookup))

	ops := d.abort()
	r.Len(ops, 3)
	r.True(d.canceled)
	ready, outstanding := d.counts()
	r.Zero(ready)
	r.Equal(3, outstanding)
	r.True(a.empty())
	r.True(b.empty())
}
