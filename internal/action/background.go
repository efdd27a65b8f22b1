package action

import (
	"context"
	"sync"
)

// Background starts each invocation on its own goroutine.
type Background struct {
	fn  Func
	opt options

	mu   sync.Mutex
	task *Task
}

func NewBackground(fn Func, opts ...Option) *Background {
	return &Background{fn: fn, opt: newOptions(opts)}
}

// Run spawns the work and returns immediately.
func (a *Background) Run(ctx context.Context) {
	t := newTask()
	a.mu.Lock()
	a.task = t
	a.mu.Unlock()

	t.start(ctx, func(ctx context.Context) error {
		return execute(ctx, a.fn, t.ID(), &a.opt).Err
	})
}

// Running reports whether the latest task has not finished yet.
func (a *Background) Running() bool {
	t := a.Task()
	return t != nil && !t.IsDone()
}

func (a *Background) RunID() string {
	if t := a.Task(); t != nil {
		return t.ID()
	}
	return ""
}

// Task returns the handle of the latest invocation, or nil before the first run.
func (a *Background) Task() *Task {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.task
}
