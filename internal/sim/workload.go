// Package sim drives an ioq.Scheduler with a synthetic workload and a
// simulated device.
package sim

import (
	"encoding/binary"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/webriots/ioq"
	"github.com/webriots/ioq/internal/config"
	"github.com/webriots/ioq/source"
)

// Request is carried in the cookie of every simulated op.
type Request struct {
	ID       uuid.UUID
	Seq      int // Position within its stream
	Created  time.Time
	Released time.Time
}

// Workload produces the ops of a run through a coroutine-backed
// generator. Ops are interleaved across streams in proportion to what
// remains of each.
func Workload(runID uuid.UUID, cfg config.WorkloadConfig) *source.Generator {
	streams := cfg.Streams
	seed := cfg.Seed
	return source.NewGenerator(func(yield func(*ioq.Op)) {
		rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
		left := make([]int, len(streams))
		total := 0
		for i, st := range streams {
			left[i] = st.Ops
			total += st.Ops
		}
		var name [12]byte
		for total > 0 {
			pick := rng.IntN(total)
			i := 0
			for pick >= left[i] {
				pick -= left[i]
				i++
			}
			st := streams[i]
			seq := st.Ops - left[i]
			left[i]--
			total--

			binary.BigEndian.PutUint32(name[:4], st.ID)
			binary.BigEndian.PutUint64(name[4:], uint64(seq))
			op := &ioq.Op{
				Opcode:   ioq.OpWrite,
				StreamID: ioq.StreamID(st.ID),
				Cookie: &Request{
					ID:      uuid.NewSHA1(runID, name[:]),
					Seq:     seq,
					Created: time.Now(),
				},
			}
			if rng.Float64() < st.ReadRatio {
				op.Opcode = ioq.OpRead
			}
			yield(op)
		}
	})
}
