package reactor

import (
	"context"
	"time"

	"tickd/internal/action"
	"tickd/internal/schedule"
)

// ScheduleOneTime fires once at t.
func (r *Reactor) ScheduleOneTime(t time.Time) *schedule.OneTime {
	return schedule.NewOneTime(t)
}

// ScheduleInterval builds an Interval; a zero Start means the reactor's now.
func (r *Reactor) ScheduleInterval(cfg schedule.IntervalConfig) (*schedule.Interval, error) {
	if cfg.Start.IsZero() {
		cfg.Start = r.Now()
		if cfg.RandomizeStart {
			if p := cfg.Period(); p > 0 {
				cfg.Start = cfg.Start.Add(schedule.RandomOffset(p))
			}
			cfg.RandomizeStart = false
		}
	}
	return schedule.NewInterval(cfg)
}

// ScheduleCalendar builds a Calendar; a zero Start means the reactor's now.
func (r *Reactor) ScheduleCalendar(cfg schedule.CalendarConfig) (*schedule.Calendar, error) {
	if cfg.Start.IsZero() {
		cfg.Start = r.Now()
	}
	return schedule.NewCalendar(cfg)
}

// ScheduleDaily fires every day at hour:minute:second in the reactor location.
func (r *Reactor) ScheduleDaily(hour, minute, second int) (*schedule.Calendar, error) {
	return schedule.Daily(r.Now(), hour, minute, second)
}

// ScheduleHourly fires every hour at minute:second.
func (r *Reactor) ScheduleHourly(minute, second int) (*schedule.Interval, error) {
	return schedule.Hourly(r.Now(), minute, second)
}

func (r *Reactor) ScheduleCron(expr string) (*schedule.Cron, error) {
	return schedule.NewCron(schedule.CronConfig{Expr: expr, Start: r.Now(), Location: r.loc})
}

// ScheduleSpec parses a schedule string (see schedule.ParsedSpec) against
// the reactor clock. With spread set, interval schedules get a random start
// offset within one period.
func (r *Reactor) ScheduleSpec(raw string, spread bool) (schedule.Schedule, error) {
	ps, err := schedule.ParseSpec(raw, r.loc)
	if err != nil {
		return nil, err
	}
	return ps.Build(r.Now(), spread)
}

// Action wraps fn as an inline action that logs through the reactor logger
// and reports its outcome on the bus. A caller-supplied OnDone hook still
// runs after the event is published.
func (r *Reactor) Action(fn action.Func, opts ...action.Option) *action.Sync {
	return action.NewSync(fn, r.actionOptions(opts)...)
}

// BackgroundAction is Action for work started on its own goroutine.
func (r *Reactor) BackgroundAction(fn action.Func, opts ...action.Option) *action.Background {
	return action.NewBackground(fn, r.actionOptions(opts)...)
}

func (r *Reactor) actionOptions(opts []action.Option) []action.Option {
	out := make([]action.Option, 0, len(opts)+2)
	out = append(out, action.WithLogger(r.log))
	out = append(out, opts...)
	return append(out, action.OnDoneChain(r.reportResult))
}

func (r *Reactor) reportResult(res action.Result) {
	ev := ActionEvent{
		Action:   res.Name,
		RunID:    res.RunID,
		Started:  res.Started,
		Duration: res.Duration,
		Panicked: res.Panicked(),
	}
	typ := EventActionFinished
	if res.Err != nil {
		typ = EventActionFailed
		ev.Error = res.Err.Error()
	}
	publish(r.bus, typ, ev)
}

// Every is a shorthand for dispatching fn on a fixed period starting now.
func (r *Reactor) Every(d time.Duration, name string, fn func(ctx context.Context) error) (*Plan, error) {
	s, err := r.ScheduleInterval(schedule.IntervalConfig{Milliseconds: int(d / time.Millisecond)})
	if err != nil {
		return nil, err
	}
	return r.Dispatch(s, r.Action(fn, action.WithName(name)), WithName(name)), nil
}
