package action

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Sync executes its function inline. It can never overlap with itself when
// driven by a single reactor loop.
type Sync struct {
	fn  Func
	opt options

	running atomic.Bool
	mu      sync.Mutex
	runID   string
}

func NewSync(fn Func, opts ...Option) *Sync {
	return &Sync{fn: fn, opt: newOptions(opts)}
}

func (a *Sync) Run(ctx context.Context) {
	id := uuid.NewString()
	a.mu.Lock()
	a.runID = id
	a.mu.Unlock()

	a.running.Store(true)
	defer a.running.Store(false)
	execute(ctx, a.fn, id, &a.opt)
}

func (a *Sync) Running() bool { return a.running.Load() }

func (a *Sync) RunID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runID
}
