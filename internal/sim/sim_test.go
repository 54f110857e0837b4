package sim

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/webriots/ioq"
	"github.com/webriots/ioq/internal/config"
)

func drain(t *testing.T, w config.WorkloadConfig) []*ioq.Op {
	gen := Workload(uuid.New(), w)
	defer gen.Close()
	var ops []*ioq.Op
	buf := make([]*ioq.Op, 16)
	for {
		n, err := gen.Acquire(context.Background(), 0, buf, false)
		ops = append(ops, buf[:n]...)
		if err != nil {
			require.ErrorIs(t, err, ioq.ErrShouldWait)
			return ops
		}
	}
}

func TestWorkload(t *testing.T) {
	r := require.New(t)

	w := config.WorkloadConfig{
		Seed: 7,
		Streams: []config.StreamConfig{
			{ID: 1, Priority: 31, Ops: 40, ReadRatio: 1},
			{ID: 2, Priority: 1, Ops: 25, ReadRatio: 0},
		},
	}
	ops := drain(t, w)
	r.Len(ops, 65)

	ids := map[uuid.UUID]bool{}
	next := map[ioq.StreamID]int{}
	for _, op := range ops {
		req := op.Cookie.(*Request)
		r.False(ids[req.ID])
		ids[req.ID] = true
		r.Equal(next[op.StreamID], req.Seq)
		next[op.StreamID]++
		if op.StreamID == 1 {
			r.Equal(ioq.OpRead, op.Opcode)
		} else {
			r.Equal(ioq.OpWrite, op.Opcode)
		}
	}
	r.Equal(40, next[1])
	r.Equal(25, next[2])

	again := drain(t, w)
	for i := range ops {
		r.Equal(ops[i].StreamID, again[i].StreamID)
	}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Scheduler.Workers = 3
	cfg.Scheduler.MaxInFlight = 16
	cfg.Workload.Streams = []config.StreamConfig{
		{ID: 1, Priority: 20, Ops: 150, ReadRatio: 0.5},
		{ID: 2, Priority: 2, Ops: 150, ReadRatio: 0.5},
	}
	cfg.Executor = config.ExecutorConfig{JitterUS: 20, AsyncRatio: 0.5, FailureRate: 0.1}
	return cfg
}

func TestRun(t *testing.T) {
	r := require.New(t)

	cfg := testConfig()
	var observed *ioq.Scheduler
	res, err := Run(context.Background(), cfg, zap.NewNop(), WithObserver(func(s *ioq.Scheduler) {
		observed = s
		r.Equal(ioq.StateReady, s.State())
	}))
	r.NoError(err)
	r.NotNil(observed)
	r.Empty(res.Error)
	r.False(res.Interrupted)
	r.Equal(300, res.Ops)
	r.Equal(uint64(300), res.Released)
	r.Zero(res.Violations)
	r.Len(res.Streams, 2)

	var failed uint64
	for _, st := range res.Streams {
		r.Equal(uint64(st.Ops), st.Completed+st.Failed)
		r.Zero(st.Canceled)
		failed += st.Failed
	}
	r.Positive(failed)
}

func TestRunAllFail(t *testing.T) {
	r := require.New(t)

	cfg := testConfig()
	cfg.Executor.FailureRate = 1
	res, err := Run(context.Background(), cfg, zap.NewNop())
	r.NoError(err)
	for _, st := range res.Streams {
		r.Equal(uint64(st.Ops), st.Failed)
	}
}

func TestRunInterrupted(t *testing.T) {
	r := require.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Run(ctx, testConfig(), zap.NewNop())
	r.NoError(err)
	r.True(res.Interrupted)
	r.LessOrEqual(res.Released, uint64(res.Ops))
}

func TestExecutorSync(t *testing.T) {
	r := require.New(t)

	e := NewExecutor(config.ExecutorConfig{FailureRate: 1}, 1, zap.NewNop())
	op := &ioq.Op{}
	r.NoError(e.Issue(context.Background(), op))
	r.ErrorIs(op.Result, ErrMedia)
}

type completions chan error

func (c completions) Complete(_ *ioq.Op, result error) error {
	c <- result
	return nil
}

func TestExecutorAsync(t *testing.T) {
	r := require.New(t)

	c := make(completions, 1)
	e := NewExecutor(config.ExecutorConfig{AsyncRatio: 1, LatencyUS: 100}, 1, zap.NewNop())
	e.Bind(c)
	r.ErrorIs(e.Issue(context.Background(), &ioq.Op{}), ioq.ErrAsync)
	e.Wait()
	r.NoError(<-c)
}
