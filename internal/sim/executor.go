package sim

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/webriots/ioq"
	"github.com/webriots/ioq/internal/config"
)

// ErrMedia is the result of an op the simulated device failed.
var ErrMedia = errors.New("sim: media error")

// Completer is the part of the scheduler the executor needs for
// deferred completions.
type Completer interface {
	Complete(op *ioq.Op, result error) error
}

// Executor is a simulated device. Each op takes the configured
// latency; a share of ops completes asynchronously from a timer and a
// share fails with ErrMedia.
type Executor struct {
	cfg config.ExecutorConfig
	log *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand

	sched   Completer
	pending sync.WaitGroup
}

// NewExecutor returns an executor seeded with seed.
func NewExecutor(cfg config.ExecutorConfig, seed uint64, log *zap.Logger) *Executor {
	return &Executor{
		cfg: cfg,
		log: log,
		rng: rand.New(rand.NewPCG(seed, ^seed)),
	}
}

// Bind sets the scheduler deferred completions are reported to. It
// must be called before the scheduler serves.
func (e *Executor) Bind(c Completer) {
	e.sched = c
}

type outcome struct {
	latency time.Duration
	async   bool
	result  error
}

func (e *Executor) roll() outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	o := outcome{latency: time.Duration(e.cfg.LatencyUS) * time.Microsecond}
	if e.cfg.JitterUS > 0 {
		o.latency += time.Duration(e.rng.IntN(e.cfg.JitterUS+1)) * time.Microsecond
	}
	o.async = e.rng.Float64() < e.cfg.AsyncRatio
	if e.rng.Float64() < e.cfg.FailureRate {
		o.result = ErrMedia
	}
	return o
}

// Issue implements the issue callback.
func (e *Executor) Issue(_ context.Context, op *ioq.Op) error {
	o := e.roll()
	if !o.async {
		if o.latency > 0 {
			time.Sleep(o.latency)
		}
		op.Result = o.result
		return nil
	}

	e.pending.Add(1)
	time.AfterFunc(o.latency, func() {
		defer e.pending.Done()
		if err := e.sched.Complete(op, o.result); err != nil {
			e.log.Warn("deferred completion rejected", zap.Error(err))
		}
	})
	return ioq.ErrAsync
}

// Wait blocks until every deferred completion has been delivered.
func (e *Executor) Wait() {
	e.pending.Wait()
}
