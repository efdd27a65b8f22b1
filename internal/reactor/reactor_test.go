package reactor

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tickd/internal/action"
	"tickd/internal/eventbus"
	"tickd/internal/schedule"
	logx "tickd/pkg/logx"
)

func fixedClock(t time.Time) Option {
	return WithClock(func() time.Time { return t })
}

func waitTask(t *testing.T, task *action.Task) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := task.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) && !task.IsDone() {
		t.Fatal("reactor loop did not finish in time")
	}
	return err
}

func TestRunPastOneTimeOnce(t *testing.T) {
	t.Parallel()
	r := New(Config{Timezone: "UTC"}, logx.Nop(), nil, fixedClock(t0))
	calls := 0
	r.Dispatch(r.ScheduleOneTime(t0.Add(-time.Hour)), r.Action(func(context.Context) error {
		calls++
		return nil
	}))

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if r.Len() != 0 {
		t.Fatalf("Len = %d, want 0", r.Len())
	}
	if r.Running() {
		t.Fatal("reactor should be stopped")
	}
}

func TestRunEmptyRegistryReturns(t *testing.T) {
	t.Parallel()
	r := New(Config{}, logx.Nop(), nil)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestDuePlansRunInRegistrationOrder(t *testing.T) {
	t.Parallel()
	r := New(Config{Timezone: "UTC"}, logx.Nop(), nil, fixedClock(t0))
	var order []string
	record := func(name string) action.Func {
		return func(context.Context) error {
			order = append(order, name)
			return nil
		}
	}
	r.Dispatch(r.ScheduleOneTime(t0.Add(-time.Minute)), r.Action(record("a")), WithName("a"))
	r.Dispatch(r.ScheduleOneTime(t0.Add(-2*time.Hour)), r.Action(record("b")), WithName("b"))
	r.Dispatch(r.ScheduleOneTime(t0), r.Action(record("c")), WithName("c"))

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.Join(order, ","); got != "a,b,c" {
		t.Fatalf("order = %s, want a,b,c", got)
	}
}

func TestStopFromAction(t *testing.T) {
	t.Parallel()
	r := New(Config{}, logx.Nop(), nil)
	s, err := r.ScheduleInterval(schedule.IntervalConfig{Milliseconds: 1})
	if err != nil {
		t.Fatalf("ScheduleInterval: %v", err)
	}
	calls := 0
	r.Dispatch(s, r.Action(func(context.Context) error {
		calls++
		if calls == 3 {
			r.Stop()
		}
		return nil
	}))

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1 (stop keeps plans)", r.Len())
	}
}

func TestStopFinishesCurrentPass(t *testing.T) {
	t.Parallel()
	r := New(Config{}, logx.Nop(), nil, fixedClock(t0))
	var order []string
	r.Dispatch(r.ScheduleOneTime(t0), r.Action(func(context.Context) error {
		order = append(order, "first")
		r.Stop()
		return nil
	}), WithName("first"))
	hourly, err := r.ScheduleInterval(schedule.IntervalConfig{Start: t0, Hours: 1})
	if err != nil {
		t.Fatalf("ScheduleInterval: %v", err)
	}
	r.Dispatch(hourly, r.Action(func(context.Context) error {
		order = append(order, "second")
		return nil
	}), WithName("second"))

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.Join(order, ","); got != "first,second" {
		t.Fatalf("order = %q, want first,second", got)
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
}

func TestRunAlreadyRunning(t *testing.T) {
	t.Parallel()
	r := New(Config{}, logx.Nop(), nil)
	s, err := r.ScheduleInterval(schedule.IntervalConfig{Start: time.Now().Add(time.Hour), Hours: 1})
	if err != nil {
		t.Fatalf("ScheduleInterval: %v", err)
	}
	r.Dispatch(s, r.Action(func(context.Context) error { return nil }))

	task := r.RunInBackground(context.Background())
	if !r.Running() {
		t.Fatal("Running should be true right after RunInBackground")
	}
	if err := r.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("Run err = %v, want ErrAlreadyRunning", err)
	}
	if err := waitTask(t, r.RunInBackground(context.Background())); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second RunInBackground err = %v, want ErrAlreadyRunning", err)
	}

	r.Stop()
	if err := waitTask(t, task); err != nil {
		t.Fatalf("loop err = %v", err)
	}
	if r.Running() {
		t.Fatal("Running after stop")
	}
	// The reactor can be started again once the loop has exited.
	r.Stop()
	again := r.RunInBackground(context.Background())
	r.Stop()
	if err := waitTask(t, again); err != nil {
		t.Fatalf("restart err = %v", err)
	}
}

func TestRunContextCancel(t *testing.T) {
	t.Parallel()
	r := New(Config{}, logx.Nop(), nil)
	s, err := r.ScheduleInterval(schedule.IntervalConfig{Start: time.Now().Add(time.Hour), Hours: 1})
	if err != nil {
		t.Fatalf("ScheduleInterval: %v", err)
	}
	r.Dispatch(s, r.Action(func(context.Context) error { return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	task := r.RunInBackground(ctx)
	cancel()
	if err := waitTask(t, task); !errors.Is(err, context.Canceled) {
		t.Fatalf("loop err = %v, want context.Canceled", err)
	}
}

func TestDispatchWakesSleepingLoop(t *testing.T) {
	t.Parallel()
	r := New(Config{}, logx.Nop(), nil)
	far, err := r.ScheduleInterval(schedule.IntervalConfig{Start: time.Now().Add(time.Hour), Hours: 1})
	if err != nil {
		t.Fatalf("ScheduleInterval: %v", err)
	}
	r.Dispatch(far, r.Action(func(context.Context) error { return nil }), WithName("far"))
	task := r.RunInBackground(context.Background())

	fired := make(chan struct{})
	r.Dispatch(r.ScheduleOneTime(time.Now()), r.Action(func(context.Context) error {
		close(fired)
		return nil
	}), WithName("soon"))

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatched plan did not run while the loop was sleeping")
	}
	r.Stop()
	if err := waitTask(t, task); err != nil {
		t.Fatalf("loop err = %v", err)
	}
}

func TestDispatchFromBackgroundAction(t *testing.T) {
	t.Parallel()
	r := New(Config{}, logx.Nop(), nil)
	s, err := r.ScheduleInterval(schedule.IntervalConfig{Milliseconds: 10})
	if err != nil {
		t.Fatalf("ScheduleInterval: %v", err)
	}

	var once sync.Once
	var childRuns atomic.Int32
	r.Dispatch(s, r.BackgroundAction(func(context.Context) error {
		once.Do(func() {
			r.Dispatch(r.ScheduleOneTime(time.Now()), r.Action(func(context.Context) error {
				childRuns.Add(1)
				r.Stop()
				return nil
			}), WithName("child"))
		})
		return nil
	}), WithName("parent"))

	if err := waitTask(t, r.RunInBackground(context.Background())); err != nil {
		t.Fatalf("loop err = %v", err)
	}
	if got := childRuns.Load(); got != 1 {
		t.Fatalf("child runs = %d, want 1", got)
	}
}

func TestSkipWhileBackgroundRunning(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	skipped, unsub := bus.Subscribe(64, EventPlanSkipped)
	defer unsub()

	r := New(Config{}, logx.Nop(), bus)
	s, err := r.ScheduleInterval(schedule.IntervalConfig{Milliseconds: 5})
	if err != nil {
		t.Fatalf("ScheduleInterval: %v", err)
	}
	release := make(chan struct{})
	var starts atomic.Int32
	r.Dispatch(s, r.BackgroundAction(func(context.Context) error {
		starts.Add(1)
		<-release
		return nil
	}), WithName("slow"))
	task := r.RunInBackground(context.Background())

	select {
	case ev := <-skipped:
		pe, ok := ev.Data.(PlanEvent)
		if !ok || pe.Plan != "slow" || pe.RunID == "" {
			t.Fatalf("skip event = %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no plan.skipped event")
	}
	if got := starts.Load(); got != 1 {
		t.Fatalf("starts = %d, want 1 while the first run is blocked", got)
	}
	r.Stop()
	close(release)
	if err := waitTask(t, task); err != nil {
		t.Fatalf("loop err = %v", err)
	}
}

func TestActionEventsPublished(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16, "action.")
	defer unsub()

	var buf bytes.Buffer
	r := New(Config{Timezone: "UTC"}, logx.NewJSON(&buf, "debug"), bus, fixedClock(t0))
	r.Dispatch(r.ScheduleOneTime(t0), r.Action(func(context.Context) error { return nil }, action.WithName("ok")))
	r.Dispatch(r.ScheduleOneTime(t0), r.Action(func(context.Context) error { return errors.New("boom") }, action.WithName("bad")))
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var got []string
	for len(got) < 2 {
		select {
		case ev := <-events:
			ae := ev.Data.(ActionEvent)
			got = append(got, ev.Type+":"+ae.Action+":"+ae.Error)
		default:
			t.Fatalf("events = %v, want 2", got)
		}
	}
	want := []string{"action.finished:ok:", "action.failed:bad:boom"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if !strings.Contains(buf.String(), "plan removed") {
		t.Fatalf("expected plan removal to be logged, got %s", buf.String())
	}
}

func TestSnapshot(t *testing.T) {
	t.Parallel()
	r := New(Config{Timezone: "UTC"}, logx.Nop(), nil, fixedClock(t0))
	daily, err := r.ScheduleDaily(9, 0, 0)
	if err != nil {
		t.Fatalf("ScheduleDaily: %v", err)
	}
	r.Dispatch(daily, r.Action(func(context.Context) error { return nil }), WithName("daily"))
	r.Dispatch(r.ScheduleOneTime(t0.Add(time.Minute)), r.Action(func(context.Context) error { return nil }), WithAllowMultiple(true))

	snap := r.Snapshot()
	if snap.Running || snap.Timezone != "UTC" || len(snap.Plans) != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if p := snap.Plans[0]; p.Name != "daily" || !p.NextRun.Equal(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("plan[0] = %+v", p)
	}
	if p := snap.Plans[1]; p.Name != "plan-2" || !p.AllowMultiple {
		t.Fatalf("plan[1] = %+v", p)
	}
}

func TestScheduleSugarUsesReactorClock(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	r := New(Config{Timezone: "UTC"}, logx.Nop(), nil, fixedClock(now))

	daily, err := r.ScheduleDaily(9, 0, 0)
	if err != nil {
		t.Fatalf("ScheduleDaily: %v", err)
	}
	if got, _ := daily.Next(); !got.Equal(time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("daily first = %v", got)
	}

	cal, err := r.ScheduleCalendar(schedule.CalendarConfig{Hours: []int{12}})
	if err != nil {
		t.Fatalf("ScheduleCalendar: %v", err)
	}
	if got, _ := cal.Next(); !got.Equal(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("calendar first = %v", got)
	}

	cr, err := r.ScheduleCron("*/15 * * * *")
	if err != nil {
		t.Fatalf("ScheduleCron: %v", err)
	}
	if got, _ := cr.Next(); !got.Equal(now) {
		t.Fatalf("cron first = %v, want %v", got, now)
	}

	spec, err := r.ScheduleSpec("every:30m", false)
	if err != nil {
		t.Fatalf("ScheduleSpec: %v", err)
	}
	if got, _ := spec.Next(); !got.Equal(now) {
		t.Fatalf("spec first = %v, want %v", got, now)
	}

	if _, err := r.ScheduleInterval(schedule.IntervalConfig{}); !errors.Is(err, schedule.ErrConfig) {
		t.Fatalf("zero interval err = %v, want ErrConfig", err)
	}
}
