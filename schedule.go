package ioq

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// State is the lifecycle state of a Scheduler. States only move
// forward.
type State uint32

const (
	StateUninitialized State = iota
	StateInitialized
	StateReady
	StateServing
	StateShuttingDown
	StateShutDown
)

var stateNames = [...]string{
	StateUninitialized: "uninitialized",
	StateInitialized:   "initialized",
	StateReady:         "ready",
	StateServing:       "serving",
	StateShuttingDown:  "shutting-down",
	StateShutDown:      "shut-down",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "state(" + strconv.FormatUint(uint64(s), 10) + ")"
}

// Scheduler admits ops from a source into streams, issues them on a
// pool of workers and releases them once complete. A Scheduler is
// created with New and must be shut down before it is destroyed.
type Scheduler struct {
	noCopy noCopy
	cb     Callbacks
	cfg    Config
	log    *zap.Logger
	disp   *dispatcher

	ctx       context.Context         // Issue and release context
	stop      context.CancelFunc      // Cancels ctx on Destroy
	acqCtx    context.Context         // Acquire context, canceled when shutdown begins
	acqCancel context.CancelCauseFunc // Cancels acqCtx

	mu        sync.RWMutex // Table lock
	state     State
	table     *streamTable
	nworkers  int
	destroyed bool

	workers    sync.WaitGroup
	cancelOnce sync.Once
	fail       failure
	done       chan struct{} // Closed when shutdown completes
	violations atomic.Uint64
}

// New creates a Scheduler in the initialized state. Every callback
// must be provided.
func New(cb Callbacks, opts ...Option) (*Scheduler, error) {
	if cb == nil {
		return nil, fmt.Errorf("ioq: nil callbacks: %w", ErrInvalidArgument)
	}
	if f, ok := cb.(*Funcs); ok && (f == nil || !f.complete()) {
		return nil, fmt.Errorf("ioq: incomplete callbacks: %w", ErrInvalidArgument)
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Scheduler{
		cb:    cb,
		cfg:   cfg,
		log:   cfg.Logger.Named("ioq"),
		state: StateInitialized,
		done:  make(chan struct{}),
	}
	s.disp = newDispatcher(&s.cfg)
	s.ctx, s.stop = context.WithCancel(context.Background())
	s.acqCtx, s.acqCancel = context.WithCancelCause(s.ctx)
	s.fail.cancel = s.acqCancel
	return s, nil
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Init allocates the stream table and moves the scheduler to ready.
func (s *Scheduler) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInitialized {
		return fmt.Errorf("ioq: init in state %v: %w", s.state, ErrBadState)
	}
	s.table = newStreamTable()
	s.state = StateReady
	return nil
}

// StreamOpen opens a stream with the given id and priority. Use
// DefaultPriority when the caller has no preference.
func (s *Scheduler) StreamOpen(id StreamID, priority uint32) error {
	if priority > MaxPriority {
		return &StreamError{Op: "open", ID: id, Err: ErrInvalidArgument}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady && s.state != StateServing {
		return &StreamError{Op: "open", ID: id, Err: ErrBadState}
	}
	st := newStream(id, priority)
	if !s.table.insert(st) {
		return &StreamError{Op: "open", ID: id, Err: ErrAlreadyExists}
	}
	s.disp.add(st)
	s.log.Debug("stream opened", zap.Uint32("stream", uint32(id)), zap.Uint32("priority", priority))
	return nil
}

// StreamClose closes a stream that holds no ready or issued ops.
func (s *Scheduler) StreamClose(id StreamID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady && s.state != StateServing {
		return &StreamError{Op: "close", ID: id, Err: ErrBadState}
	}
	st := s.table.lookup(id)
	if st == nil {
		return &StreamError{Op: "close", ID: id, Err: ErrNotFound}
	}
	if err := s.disp.remove(st); err != nil {
		return &StreamError{Op: "close", ID: id, Err: err}
	}
	s.table.remove(id)
	s.log.Debug("stream closed", zap.Uint32("stream", uint32(id)))
	return nil
}

// Serve starts workers goroutines and returns. Between one and
// MaxWorkers workers are accepted; two or more let acquire and issue
// overlap.
func (s *Scheduler) Serve(workers int) error {
	if workers < 1 || workers > MaxWorkers {
		return fmt.Errorf("ioq: serve with %d workers: %w", workers, ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return fmt.Errorf("ioq: serve in state %v: %w", s.state, ErrBadState)
	}
	s.state = StateServing
	s.nworkers = workers
	for i := range workers {
		w := newWorker(s, i)
		s.workers.Add(1)
		go func() {
			defer s.workers.Done()
			w.run(s.acqCtx)
		}()
	}
	s.log.Info("serving",
		zap.Int("workers", workers),
		zap.Int("max_in_flight", s.cfg.MaxInFlight),
		zap.Int("streams", s.table.len()),
	)
	return nil
}

// Shutdown cancels acquisition, waits for outstanding ops to complete,
// releases whatever was never issued and joins the workers. Concurrent
// and repeated calls wait for the same shutdown. It returns the first
// fatal error, including ErrDrainTimeout when ops did not complete in
// time. Shutdown must not be called from a callback other than Fatal.
func (s *Scheduler) Shutdown() error {
	s.mu.Lock()
	switch s.state {
	case StateInitialized, StateReady, StateServing:
		s.state = StateShuttingDown
		s.mu.Unlock()
	case StateShuttingDown, StateShutDown:
		s.mu.Unlock()
		<-s.done
		return s.fail.Err()
	default:
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("ioq: shutdown in state %v: %w", st, ErrBadState)
	}

	s.log.Info("shutting down")
	s.drain()

	s.mu.Lock()
	s.state = StateShutDown
	s.mu.Unlock()
	close(s.done)

	err := s.fail.Err()
	s.log.Info("shut down", zap.Error(err))
	return err
}

func (s *Scheduler) drain() {
	s.cancelAcquire()

	// One deadline covers the drain and the join.
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DrainTimeout)
	defer cancel()

	drainErr := s.disp.waitDrained(ctx)
	if drainErr != nil {
		_, n := s.disp.counts()
		s.escalate(fmt.Errorf("ioq: shutdown with %d ops outstanding: %w", n, ErrDrainTimeout))
	}
	if err := s.joinWorkers(ctx); err != nil && drainErr == nil {
		s.escalate(fmt.Errorf("ioq: shutdown with workers running: %w", ErrDrainTimeout))
	}
	for _, op := range s.disp.abort() {
		s.abandon(op)
	}
}

func (s *Scheduler) joinWorkers(ctx context.Context) error {
	joined := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(joined)
	}()
	select {
	case <-joined:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cancelAcquire stops admission and unblocks the source.
func (s *Scheduler) cancelAcquire() {
	s.cancelOnce.Do(func() {
		s.disp.cancel()
		s.acqCancel(ErrCanceled)
		s.cb.CancelAcquire(s.ctx)
	})
}

// escalate reports an unrecoverable error once, aborts ops that were
// never issued and shuts the scheduler down.
func (s *Scheduler) escalate(err error) {
	if !s.fail.record(err) {
		return
	}
	s.log.Error("fatal", zap.Error(err))
	for _, op := range s.disp.abort() {
		s.abandon(op)
	}
	s.cancelAcquire()
	go func() {
		s.cb.Fatal(s.ctx, err)
		_ = s.Shutdown()
	}()
}

// Destroy releases the scheduler's resources. It is only valid after
// Shutdown has returned.
func (s *Scheduler) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateShutDown || s.destroyed {
		s.log.Error("destroy before shutdown", zap.Stringer("state", s.state))
		return fmt.Errorf("ioq: destroy in state %v: %w", s.state, ErrBadState)
	}
	s.destroyed = true
	s.disp.clear()
	s.table = nil
	s.stop()
	return nil
}

// lookupLocked requires s.mu held for reading.
func (s *Scheduler) lookupLocked(id StreamID) *Stream {
	if s.table == nil {
		return nil
	}
	return s.table.lookup(id)
}
