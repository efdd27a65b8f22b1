package reactor

import (
	"context"
	"errors"
	"sync"
	"time"

	"tickd/internal/action"
	"tickd/internal/eventbus"
	"tickd/internal/schedule"
	logx "tickd/pkg/logx"
)

// maxSkipAdvance bounds how far a skipped plan fast-forwards a schedule that
// keeps producing past times.
const maxSkipAdvance = 1 << 16

// Plan binds a schedule to an action. Plans are created by Reactor.Dispatch.
type Plan struct {
	name          string
	schedule      schedule.Schedule
	action        action.Action
	allowMultiple bool

	log logx.Logger
	bus eventbus.Bus

	mu      sync.Mutex
	lastRun time.Time
	nextRun time.Time // zero once the schedule is exhausted
	runs    uint64
	skips   uint64
}

func newPlan(s schedule.Schedule, a action.Action, o planOptions, log logx.Logger, bus eventbus.Bus) *Plan {
	p := &Plan{
		name:          o.name,
		schedule:      s,
		action:        a,
		allowMultiple: o.allowMultiple,
		log:           log.With(logx.String("plan", o.name)),
		bus:           bus,
	}
	p.advance()
	return p
}

func (p *Plan) Name() string { return p.name }

// NextRun returns the next due time and false once the schedule is exhausted.
func (p *Plan) NextRun() (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextRun, !p.nextRun.IsZero()
}

// LastRun returns the cycle time of the latest execution, zero if none.
func (p *Plan) LastRun() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRun
}

// advance pulls the next time from the schedule. Errors other than
// exhaustion retire the plan.
func (p *Plan) advance() time.Time {
	t, err := p.schedule.Next()
	if err != nil {
		if !errors.Is(err, schedule.ErrExhausted) {
			p.log.Error("schedule failed; retiring plan", logx.Err(err))
		}
		t = time.Time{}
	}
	p.mu.Lock()
	p.nextRun = t
	p.mu.Unlock()
	return t
}

// Run executes the plan for the given cycle time. It reports false when the
// run was skipped because the previous invocation is still in flight.
func (p *Plan) Run(ctx context.Context, cycle time.Time) bool {
	if !p.allowMultiple && p.action.Running() {
		runID := p.action.RunID()
		next := p.advance()
		for i := 0; i < maxSkipAdvance && !next.IsZero() && !next.After(cycle); i++ {
			next = p.advance()
		}
		p.mu.Lock()
		p.skips++
		p.mu.Unlock()
		p.log.Warn("plan skipped, still running", logx.String("run_id", runID), logx.Time("next", next))
		publish(p.bus, EventPlanSkipped, PlanEvent{Plan: p.name, RunID: runID, Cycle: cycle, Next: next})
		return false
	}

	p.mu.Lock()
	p.lastRun = cycle
	p.runs++
	p.mu.Unlock()

	p.log.Debug("plan started", logx.Time("cycle", cycle))
	publish(p.bus, EventPlanStarted, PlanEvent{Plan: p.name, Cycle: cycle})
	p.action.Run(ctx)
	p.advance()
	return true
}

func (p *Plan) info() PlanInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PlanInfo{
		Name:          p.name,
		LastRun:       p.lastRun,
		NextRun:       p.nextRun,
		Running:       p.action.Running(),
		AllowMultiple: p.allowMultiple,
		Runs:          p.runs,
		Skips:         p.skips,
	}
}
