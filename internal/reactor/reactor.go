package reactor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"tickd/internal/action"
	"tickd/internal/eventbus"
	"tickd/internal/schedule"
	logx "tickd/pkg/logx"
)

type Reactor struct {
	log   logx.Logger
	bus   eventbus.Bus
	loc   *time.Location
	clock func() time.Time

	mu    sync.Mutex
	plans []*Plan
	seq   uint64

	active  atomic.Bool // loop goroutine owns the reactor
	running atomic.Bool // cleared by Stop
	wake    chan struct{}
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus, opts ...Option) *Reactor {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Reactor{
		log:   log,
		bus:   bus,
		clock: time.Now,
		wake:  make(chan struct{}, 1),
	}
	r.loc = loadLocation(cfg.Timezone, log)
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Now returns the reactor clock in the reactor location.
func (r *Reactor) Now() time.Time { return r.clock().In(r.loc) }

func (r *Reactor) Location() *time.Location { return r.loc }

// Running reports whether the loop is running and has not been asked to stop.
func (r *Reactor) Running() bool { return r.running.Load() }

// Len returns the number of registered plans.
func (r *Reactor) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.plans)
}

// Dispatch registers a plan. It is safe to call from any goroutine, including
// from an action run by the loop.
func (r *Reactor) Dispatch(s schedule.Schedule, a action.Action, opts ...PlanOption) *Plan {
	var o planOptions
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}

	r.mu.Lock()
	r.seq++
	if o.name == "" {
		o.name = fmt.Sprintf("plan-%d", r.seq)
	}
	r.mu.Unlock()

	p := newPlan(s, a, o, r.log, r.bus)

	r.mu.Lock()
	r.plans = append(r.plans, p)
	r.mu.Unlock()

	next, _ := p.NextRun()
	r.log.Debug("plan registered", logx.String("plan", p.name), logx.Time("next", next), logx.Bool("allow_multiple", o.allowMultiple))
	publish(r.bus, EventPlanRegistered, PlanEvent{Plan: p.name, Next: next})
	r.signal()
	return p
}

// Run drives the loop on the calling goroutine until Stop, ctx end, or no
// plans remain. It returns ctx.Err() when the context ended the loop.
func (r *Reactor) Run(ctx context.Context) error {
	if !r.claim() {
		return ErrAlreadyRunning
	}
	return r.loop(ctx)
}

// RunInBackground starts the loop on its own goroutine. The returned task
// completes with the loop result.
func (r *Reactor) RunInBackground(ctx context.Context) *action.Task {
	if !r.claim() {
		return action.Go(ctx, func(context.Context) error { return ErrAlreadyRunning })
	}
	return action.Go(ctx, r.loop)
}

// Stop asks the loop to exit. The current pass over due plans completes
// first; a running action is never interrupted. A pending sleep is cut short.
func (r *Reactor) Stop() {
	if r.running.CompareAndSwap(true, false) {
		r.log.Info("stop requested")
	}
	r.signal()
}

func (r *Reactor) claim() bool {
	if !r.active.CompareAndSwap(false, true) {
		return false
	}
	r.running.Store(true)
	return true
}

func (r *Reactor) loop(ctx context.Context) error {
	defer r.active.Store(false)
	defer r.running.Store(false)

	start := time.Now()
	r.log.Info("reactor started", logx.Int("plans", r.Len()), logx.String("tz", r.loc.String()))
	for r.running.Load() {
		if err := ctx.Err(); err != nil {
			r.log.Info("reactor stopped", logx.String("reason", "context done"), logx.Duration("uptime", time.Since(start)))
			return err
		}
		now := r.Now()
		earliest, remaining := r.cycle(ctx, now)
		if remaining == 0 {
			r.log.Info("reactor stopped", logx.String("reason", "no plans left"), logx.Duration("uptime", time.Since(start)))
			return nil
		}
		if !r.running.Load() {
			break
		}
		if earliest.IsZero() {
			continue
		}
		if d := earliest.Sub(r.Now()); d > 0 {
			if err := r.sleep(ctx, d); err != nil {
				r.log.Info("reactor stopped", logx.String("reason", "context done"), logx.Duration("uptime", time.Since(start)))
				return err
			}
		}
	}
	r.log.Info("reactor stopped", logx.String("reason", "stop requested"), logx.Duration("uptime", time.Since(start)))
	return nil
}

// cycle runs every due plan once and returns the earliest next run among the
// surviving plans together with the registry size after removals.
func (r *Reactor) cycle(ctx context.Context, now time.Time) (earliest time.Time, remaining int) {
	r.mu.Lock()
	plans := append([]*Plan(nil), r.plans...)
	r.mu.Unlock()

	var dead []*Plan
	for _, p := range plans {
		next, ok := p.NextRun()
		if ok && !now.Before(next) {
			p.Run(ctx, now)
			next, ok = p.NextRun()
		}
		if !ok {
			dead = append(dead, p)
			continue
		}
		if earliest.IsZero() || next.Before(earliest) {
			earliest = next
		}
	}
	return earliest, r.remove(dead)
}

func (r *Reactor) remove(dead []*Plan) int {
	if len(dead) == 0 {
		return r.Len()
	}
	r.mu.Lock()
	kept := r.plans[:0]
	for _, p := range r.plans {
		if !containsPlan(dead, p) {
			kept = append(kept, p)
		}
	}
	for i := len(kept); i < len(r.plans); i++ {
		r.plans[i] = nil
	}
	r.plans = kept
	n := len(kept)
	r.mu.Unlock()

	for _, p := range dead {
		r.log.Debug("plan removed", logx.String("plan", p.name), logx.Time("last_run", p.LastRun()))
		publish(r.bus, EventPlanRemoved, PlanEvent{Plan: p.name})
	}
	return n
}

func containsPlan(list []*Plan, p *Plan) bool {
	for _, q := range list {
		if q == p {
			return true
		}
	}
	return false
}

// sleep waits for d, a wake signal, or ctx end.
func (r *Reactor) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	case <-r.wake:
	}
	return nil
}

func (r *Reactor) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}
