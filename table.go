package ioq

import "slices"

// streamTable maps ids to open streams. It is guarded by the
// scheduler's table lock.
type streamTable struct {
	streams map[StreamID]*Stream
}

func newStreamTable() *streamTable {
	return &streamTable{streams: make(map[StreamID]*Stream)}
}

func (t *streamTable) lookup(id StreamID) *Stream {
	return t.streams[id]
}

func (t *streamTable) insert(s *Stream) bool {
	if _, ok := t.streams[s.id]; ok {
		return false
	}
	t.streams[s.id] = s
	return true
}

func (t *streamTable) remove(id StreamID) {
	delete(t.streams, id)
}

func (t *streamTable) len() int {
	return len(t.streams)
}

// ids returns the open stream ids in ascending order.
func (t *streamTable) ids() []StreamID {
	ids := make([]StreamID, 0, len(t.streams))
	for id := range t.streams {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
