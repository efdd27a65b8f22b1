package reactor

import (
	"errors"
	"strings"
	"time"

	"tickd/internal/eventbus"
	logx "tickd/pkg/logx"
)

// ErrAlreadyRunning is returned when Run is called while the loop is active.
var ErrAlreadyRunning = errors.New("reactor already running")

// Event types published on the bus.
const (
	EventPlanRegistered = "plan.registered"
	EventPlanStarted    = "plan.started"
	EventPlanSkipped    = "plan.skipped"
	EventPlanRemoved    = "plan.removed"
	EventActionFinished = "action.finished"
	EventActionFailed   = "action.failed"
)

// Config controls the reactor.
type Config struct {
	Timezone string // IANA TZ used by the Schedule* helpers; empty means Local
}

// Option customizes a Reactor at construction.
type Option func(*Reactor)

// WithClock replaces time.Now as the source of cycle times.
func WithClock(now func() time.Time) Option {
	return func(r *Reactor) {
		if now != nil {
			r.clock = now
		}
	}
}

// PlanEvent is the payload of plan.* events.
type PlanEvent struct {
	Plan  string    `json:"plan"`
	RunID string    `json:"run_id,omitempty"`
	Cycle time.Time `json:"cycle,omitempty"`
	Next  time.Time `json:"next,omitempty"`
}

// ActionEvent is the payload of action.* events.
type ActionEvent struct {
	Action   string        `json:"action"`
	RunID    string        `json:"run_id"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
	Panicked bool          `json:"panicked,omitempty"`
}

// PlanOption customizes a dispatched Plan.
type PlanOption func(*planOptions)

type planOptions struct {
	name          string
	allowMultiple bool
}

// WithName sets the plan name used in logs, events and snapshots.
func WithName(name string) PlanOption {
	return func(o *planOptions) { o.name = strings.TrimSpace(name) }
}

// WithAllowMultiple lets the plan start its action while a previous
// invocation is still running.
func WithAllowMultiple(allow bool) PlanOption {
	return func(o *planOptions) { o.allowMultiple = allow }
}

func loadLocation(tz string, log logx.Logger) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Any("err", err))
		return time.Local
	}
	return loc
}

func publish(bus eventbus.Bus, typ string, data any) {
	if bus == nil {
		return
	}
	bus.Publish(eventbus.Event{Type: typ, Data: data})
}
