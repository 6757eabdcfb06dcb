// Package task runs long operations in the background and publishes their
// outcome exactly once.
package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Task is the handle of a background operation yielding a T.
type Task[T any] struct {
	id    uuid.UUID
	name  string
	done  chan struct{}
	value T
	err   error
}

// Go runs fn on its own goroutine. A panic in fn is recovered and reported
// as the task's error.
func Go[T any](ctx context.Context, logger *slog.Logger, name string, fn func(ctx context.Context) (T, error)) *Task[T] {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	t := &Task[T]{id: uuid.New(), name: name, done: make(chan struct{})}
	logger = logger.With("task", name, "task_id", t.id.String())

	go func() {
		start := time.Now()
		defer close(t.done)
		defer func() {
			if r := recover(); r != nil {
				t.err = fmt.Errorf("task %s panicked: %v", name, r)
				logger.Error("task panicked", "panic", r)
			}
		}()
		logger.Debug("task started")
		t.value, t.err = fn(ctx)
		logger.Debug("task finished", "duration", time.Since(start), "error", t.err)
	}()
	return t
}

// ID returns the unique task identifier.
func (t *Task[T]) ID() uuid.UUID { return t.id }

// Name returns the name given to Go.
func (t *Task[T]) Name() string { return t.name }

// Done is closed when the task has finished.
func (t *Task[T]) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes or ctx is done. Cancelling ctx does
// not stop the task.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Finished reports whether the task has finished.
func (t *Task[T]) Finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Result returns the outcome of a finished task, and zero values while it
// is still running.
func (t *Task[T]) Result() (T, error) {
	if !t.Finished() {
		var zero T
		return zero, nil
	}
	return t.value, t.err
}
