package ioq

// StreamStats is a snapshot of one stream.
type StreamStats struct {
	ID       StreamID
	Priority uint32
	Ready    int    // Ops waiting to be issued
	InFlight int    // Ops issued and not yet completed
	Acquired uint64 // Ops admitted since the stream opened
	Issued   uint64 // Ops issued since the stream opened
	Released uint64 // Ops released since the stream opened
}

// Stats is a snapshot of a scheduler.
type Stats struct {
	State       State
	Workers     int
	Ready       int    // Ops waiting to be issued
	Outstanding int    // Ops acquired and not yet released
	Violations  uint64 // Protocol violations reported
	Streams     []StreamStats
}

// Stats returns a snapshot of the scheduler and its open streams,
// ordered by stream id.
func (s *Scheduler) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		State:      s.state,
		Workers:    s.nworkers,
		Violations: s.violations.Load(),
	}
	st.Ready, st.Outstanding = s.disp.counts()
	if s.table == nil {
		return st
	}
	for _, id := range s.table.ids() {
		st.Streams = append(st.Streams, streamStats(s.table.lookup(id)))
	}
	return st
}

// StreamStats returns a snapshot of one open stream.
func (s *Scheduler) StreamStats(id StreamID) (StreamStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.lookupLocked(id)
	if st == nil {
		return StreamStats{}, &StreamError{Op: "stats", ID: id, Err: ErrNotFound}
	}
	return streamStats(st), nil
}

func streamStats(st *Stream) StreamStats {
	ready, issued := st.lens()
	return StreamStats{
		ID:       st.id,
		Priority: st.priority,
		Ready:    ready,
		InFlight: issued,
		Acquired: st.acquired.Load(),
		Issued:   st.issuedN.Load(),
		Released: st.released.Load(),
	}
}
