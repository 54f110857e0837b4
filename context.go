package ioq

import (
	"context"
)

// workerContextKey is a unique type used as a key for storing the
// worker index in callback contexts.
type workerContextKey struct{}

// withWorker returns a context carrying the index of the worker that
// makes callbacks with it.
func withWorker(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, workerContextKey{}, id)
}

// WorkerFromContext returns the index of the worker that made the
// callback receiving ctx. Only Acquire and Issue are made with a
// worker context.
func WorkerFromContext(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(workerContextKey{}).(int)
	return id, ok
}
