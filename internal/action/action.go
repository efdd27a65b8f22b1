package action

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	logx "tickd/pkg/logx"
)

// ErrPanicked wraps a panic recovered from a wrapped function.
var ErrPanicked = errors.New("action panicked")

// Func is the unit of work wrapped by an Action.
type Func func(ctx context.Context) error

// Action is an executable unit of work.
type Action interface {
	// Run executes (or starts) the work. It never returns the work's error.
	Run(ctx context.Context)
	// Running reports whether a previous invocation is still in flight.
	Running() bool
	// RunID identifies the latest invocation, for logging.
	RunID() string
}

// Result describes one finished invocation.
type Result struct {
	RunID    string
	Name     string
	Started  time.Time
	Duration time.Duration
	Err      error
}

// Panicked reports whether the invocation ended in a recovered panic.
func (r Result) Panicked() bool { return errors.Is(r.Err, ErrPanicked) }

type Option func(*options)

type options struct {
	name   string
	log    logx.Logger
	onDone func(Result)
}

// WithName sets the name used in logs and results.
func WithName(name string) Option { return func(o *options) { o.name = name } }

func WithLogger(log logx.Logger) Option { return func(o *options) { o.log = log } }

// OnDone installs a hook called after every invocation, success or not.
// For Background actions it runs on the task goroutine.
func OnDone(fn func(Result)) Option { return func(o *options) { o.onDone = fn } }

// OnDoneChain runs fn before any hook installed by an earlier option.
func OnDoneChain(fn func(Result)) Option {
	return func(o *options) {
		prev := o.onDone
		o.onDone = func(r Result) {
			fn(r)
			if prev != nil {
				prev(r)
			}
		}
	}
}

func newOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	if o.log.IsZero() {
		o.log = logx.Nop()
	}
	return o
}

// execute runs fn with panic recovery and reports the outcome.
func execute(ctx context.Context, fn Func, runID string, o *options) (res Result) {
	res = Result{RunID: runID, Name: o.name, Started: time.Now()}
	log := o.log.With(logx.String("run_id", runID))
	if o.name != "" {
		log = log.With(logx.String("action", o.name))
	}

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("%w: %v", ErrPanicked, r)
			log.Error("action panicked", logx.Any("panic", r), logx.Stack(debug.Stack()))
		}
		res.Duration = time.Since(res.Started)
		switch {
		case res.Err == nil:
			log.Debug("action finished", logx.Duration("took", res.Duration))
		case !res.Panicked():
			log.Error("action failed", logx.Err(res.Err), logx.Duration("took", res.Duration))
		}
		if o.onDone != nil {
			o.onDone(res)
		}
	}()

	if fn == nil {
		res.Err = errors.New("nil action func")
		return res
	}
	res.Err = fn(ctx)
	return res
}
