package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/webriots/ioq"
	"github.com/webriots/ioq/internal/config"
)

// StreamResult summarizes one stream of a run.
type StreamResult struct {
	ID            uint32 `json:"id" yaml:"id" msgpack:"id"`
	Priority      uint32 `json:"priority" yaml:"priority" msgpack:"priority"`
	Ops           int    `json:"ops" yaml:"ops" msgpack:"ops"`
	Completed     uint64 `json:"completed" yaml:"completed" msgpack:"completed"`
	Failed        uint64 `json:"failed" yaml:"failed" msgpack:"failed"`
	Canceled      uint64 `json:"canceled" yaml:"canceled" msgpack:"canceled"`
	MeanLatencyUS int64  `json:"mean_latency_us" yaml:"mean_latency_us" msgpack:"mean_latency_us"`
	MaxLatencyUS  int64  `json:"max_latency_us" yaml:"max_latency_us" msgpack:"max_latency_us"`
}

// Result summarizes a run.
type Result struct {
	RunID       string         `json:"run_id" yaml:"run_id" msgpack:"run_id"`
	Started     time.Time      `json:"started" yaml:"started" msgpack:"started"`
	ElapsedMS   int64          `json:"elapsed_ms" yaml:"elapsed_ms" msgpack:"elapsed_ms"`
	Workers     int            `json:"workers" yaml:"workers" msgpack:"workers"`
	Ops         int            `json:"ops" yaml:"ops" msgpack:"ops"`
	Released    uint64         `json:"released" yaml:"released" msgpack:"released"`
	Violations  uint64         `json:"violations" yaml:"violations" msgpack:"violations"`
	Interrupted bool           `json:"interrupted" yaml:"interrupted" msgpack:"interrupted"`
	Error       string         `json:"error,omitempty" yaml:"error,omitempty" msgpack:"error,omitempty"`
	Streams     []StreamResult `json:"streams" yaml:"streams" msgpack:"streams"`
}

// Option configures Run.
type Option func(*runOptions)

type runOptions struct {
	observe func(*ioq.Scheduler)
}

// WithObserver calls fn with the scheduler once its streams are open
// and before it serves.
func WithObserver(fn func(*ioq.Scheduler)) Option {
	return func(o *runOptions) { o.observe = fn }
}

// SchedulerOptions converts the scheduler section of the config.
func SchedulerOptions(c config.SchedulerConfig, log *zap.Logger) []ioq.Option {
	return []ioq.Option{
		ioq.WithMaxInFlight(c.MaxInFlight),
		ioq.WithStreamDepth(c.StreamDepth),
		ioq.WithAcquireBatch(c.AcquireBatch),
		ioq.WithDrainTimeout(time.Duration(c.DrainTimeoutMS) * time.Millisecond),
		ioq.WithStrictProtocol(c.StrictProtocol),
		ioq.WithLogger(log),
	}
}

// Run executes the configured workload to completion, or until ctx is
// done, and returns its summary. The returned error is the scheduler's
// fatal error, if any; the result is valid either way.
func Run(ctx context.Context, cfg *config.Config, log *zap.Logger, opts ...Option) (*Result, error) {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}

	runID := uuid.New()
	log = log.With(zap.Stringer("run", runID))

	gen := Workload(runID, cfg.Workload)
	defer gen.Close()
	exec := NewExecutor(cfg.Executor, cfg.Workload.Seed, log)
	rec := newRecorder(cfg.Workload.Streams)

	fatal := make(chan error, 1)
	sched, err := ioq.New(&ioq.Funcs{
		AcquireFn:       gen.Acquire,
		IssueFn:         exec.Issue,
		ReleaseFn:       rec.release,
		CancelAcquireFn: gen.CancelAcquire,
		FatalFn: func(_ context.Context, err error) {
			select {
			case fatal <- err:
			default:
			}
		},
	}, SchedulerOptions(cfg.Scheduler, log)...)
	if err != nil {
		return nil, err
	}
	exec.Bind(sched)

	if err := sched.Init(); err != nil {
		return nil, err
	}
	for _, st := range cfg.Workload.Streams {
		if err := sched.StreamOpen(ioq.StreamID(st.ID), st.Priority); err != nil {
			return nil, err
		}
	}
	if o.observe != nil {
		o.observe(sched)
	}

	res := &Result{
		RunID:   runID.String(),
		Started: time.Now().UTC(),
		Workers: cfg.Scheduler.Workers,
		Ops:     cfg.TotalOps(),
	}
	log.Info("run started", zap.Int("ops", res.Ops), zap.Int("streams", len(cfg.Workload.Streams)))
	if err := sched.Serve(cfg.Scheduler.Workers); err != nil {
		return nil, err
	}

	select {
	case <-rec.done:
	case <-fatal:
	case <-ctx.Done():
		res.Interrupted = true
		log.Warn("run interrupted", zap.Error(context.Cause(ctx)))
	}

	runErr := sched.Shutdown()
	exec.Wait()
	res.ElapsedMS = time.Since(res.Started).Milliseconds()
	res.Violations = sched.Stats().Violations
	if err := sched.Destroy(); err != nil {
		runErr = errors.Join(runErr, err)
	}

	res.Released, res.Streams = rec.summary()
	if runErr != nil {
		res.Error = runErr.Error()
	}
	log.Info("run finished",
		zap.Uint64("released", res.Released),
		zap.Int64("elapsed_ms", res.ElapsedMS),
		zap.Error(runErr),
	)
	return res, runErr
}

type tally struct {
	StreamResult
	latency time.Duration
	max     time.Duration
}

// recorder accounts released ops and signals once all are back.
type recorder struct {
	mu       sync.Mutex
	streams  map[uint32]*tally
	order    []uint32
	total    int
	released uint64
	done     chan struct{}
}

func newRecorder(streams []config.StreamConfig) *recorder {
	r := &recorder{
		streams: make(map[uint32]*tally, len(streams)),
		done:    make(chan struct{}),
	}
	for _, st := range streams {
		r.streams[st.ID] = &tally{StreamResult: StreamResult{ID: st.ID, Priority: st.Priority, Ops: st.Ops}}
		r.order = append(r.order, st.ID)
		r.total += st.Ops
	}
	if r.total == 0 {
		close(r.done)
	}
	return r
}

func (r *recorder) release(_ context.Context, op *ioq.Op) {
	now := time.Now()
	req, ok := op.Cookie.(*Request)
	if !ok {
		panic(fmt.Sprintf("sim: op without request cookie: %T", op.Cookie))
	}
	req.Released = now

	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.streams[uint32(op.StreamID)]
	switch {
	case op.Result == nil:
		t.Completed++
	case errors.Is(op.Result, ioq.ErrCanceled):
		t.Canceled++
	default:
		t.Failed++
	}
	lat := now.Sub(req.Created)
	t.latency += lat
	t.max = max(t.max, lat)

	r.released++
	if r.released == uint64(r.total) {
		close(r.done)
	}
}

func (r *recorder) summary() (uint64, []StreamResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StreamResult, 0, len(r.order))
	for _, id := range r.order {
		t := r.streams[id]
		sr := t.StreamResult
		if n := t.Completed + t.Failed + t.Canceled; n > 0 {
			sr.MeanLatencyUS = (t.latency / time.Duration(n)).Microseconds()
		}
		sr.MaxLatencyUS = t.max.Microseconds()
		out = append(out, sr)
	}
	return r.released, out
}
