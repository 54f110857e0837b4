package ioq

import (
	"context"
	"sync"
)

// failure records the first unrecoverable error of a scheduler. The
// first error wins and cancels the acquire context with itself as
// the cause; later errors are dropped.
type failure struct {
	mu     sync.Mutex
	err    error                   // The first error recorded
	cancel context.CancelCauseFunc // Cancels the acquire context
}

// record stores err if no error has been recorded yet. It reports
// whether err was the first.
func (f *failure) record(err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false
	}
	f.err = err
	if f.cancel != nil {
		f.cancel(err)
	}
	return true
}

// Err returns the first recorded error, or nil.
func (f *failure) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}
