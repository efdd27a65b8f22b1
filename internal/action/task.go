package action

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Task is a handle to work running on its own goroutine.
//
// The result is published by closing Done, so Err is only meaningful once
// Done is closed.
type Task struct {
	id   string
	done chan struct{}
	err  error
}

func newTask() *Task {
	return &Task{id: uuid.NewString(), done: make(chan struct{})}
}

// Go runs fn on a new goroutine and returns its handle. A panic in fn is
// recovered and surfaces as the task error.
func Go(ctx context.Context, fn func(ctx context.Context) error) *Task {
	t := newTask()
	t.start(ctx, fn)
	return t
}

func (t *Task) start(ctx context.Context, fn func(ctx context.Context) error) {
	go func() {
		defer close(t.done)
		defer func() {
			if r := recover(); r != nil {
				t.err = fmt.Errorf("%w: %v", ErrPanicked, r)
			}
		}()
		t.err = fn(ctx)
	}()
}

func (t *Task) ID() string { return t.id }

func (t *Task) Done() <-chan struct{} { return t.done }

func (t *Task) IsDone() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Err returns the task error once it is done, nil before that.
func (t *Task) Err() error {
	if !t.IsDone() {
		return nil
	}
	return t.err
}

// Wait blocks until the task is done or ctx ends.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
