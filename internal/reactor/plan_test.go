package reactor

import (
	"context"
	"errors"
	"testing"
	"time"

	"tickd/internal/schedule"
	logx "tickd/pkg/logx"
)

type fakeAction struct {
	running bool
	calls   int
}

func (a *fakeAction) Run(context.Context) { a.calls++ }
func (a *fakeAction) Running() bool       { return a.running }
func (a *fakeAction) RunID() string       { return "run-1" }

type brokenSchedule struct{}

func (brokenSchedule) Next() (time.Time, error) { return time.Time{}, schedule.ErrUnsatisfiable }

var t0 = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

func mustInterval(t *testing.T, start time.Time, period time.Duration) *schedule.Interval {
	t.Helper()
	s, err := schedule.NewInterval(schedule.IntervalConfig{Start: start, Milliseconds: int(period / time.Millisecond)})
	if err != nil {
		t.Fatalf("NewInterval: %v", err)
	}
	return s
}

func TestPlanRunsAndAdvances(t *testing.T) {
	t.Parallel()
	a := &fakeAction{}
	p := newPlan(mustInterval(t, t0, time.Minute), a, planOptions{name: "p"}, logx.Nop(), nil)

	next, ok := p.NextRun()
	if !ok || !next.Equal(t0) {
		t.Fatalf("NextRun = %v, %v; want %v", next, ok, t0)
	}
	if !p.Run(context.Background(), t0) {
		t.Fatal("Run reported skip")
	}
	if a.calls != 1 {
		t.Fatalf("calls = %d, want 1", a.calls)
	}
	if got := p.LastRun(); !got.Equal(t0) {
		t.Fatalf("LastRun = %v, want %v", got, t0)
	}
	if next, _ := p.NextRun(); !next.Equal(t0.Add(time.Minute)) {
		t.Fatalf("NextRun = %v, want %v", next, t0.Add(time.Minute))
	}
}

func TestPlanSkipsWhileRunning(t *testing.T) {
	t.Parallel()
	a := &fakeAction{running: true}
	p := newPlan(mustInterval(t, t0, time.Minute), a, planOptions{name: "busy"}, logx.Nop(), nil)

	cycle := t0.Add(5*time.Minute + 30*time.Second)
	if p.Run(context.Background(), cycle) {
		t.Fatal("Run should skip while the action is running")
	}
	if a.calls != 0 {
		t.Fatalf("calls = %d, want 0", a.calls)
	}
	next, ok := p.NextRun()
	if !ok || !next.After(cycle) {
		t.Fatalf("NextRun = %v, want after %v", next, cycle)
	}
	if want := t0.Add(6 * time.Minute); !next.Equal(want) {
		t.Fatalf("NextRun = %v, want %v", next, want)
	}
	if info := p.info(); info.Skips != 1 || info.Runs != 0 || !info.LastRun.IsZero() {
		t.Fatalf("info = %+v", info)
	}
}

func TestPlanAllowMultipleRunsAnyway(t *testing.T) {
	t.Parallel()
	a := &fakeAction{running: true}
	p := newPlan(mustInterval(t, t0, time.Minute), a, planOptions{name: "multi", allowMultiple: true}, logx.Nop(), nil)
	if !p.Run(context.Background(), t0) || a.calls != 1 {
		t.Fatalf("calls = %d, want 1", a.calls)
	}
}

func TestPlanScheduleErrorRetires(t *testing.T) {
	t.Parallel()
	p := newPlan(brokenSchedule{}, &fakeAction{}, planOptions{name: "broken"}, logx.Nop(), nil)
	if next, ok := p.NextRun(); ok || !next.IsZero() {
		t.Fatalf("NextRun = %v, %v; want exhausted", next, ok)
	}
}

func TestPlanOneTimeExhausts(t *testing.T) {
	t.Parallel()
	a := &fakeAction{}
	p := newPlan(schedule.NewOneTime(t0), a, planOptions{name: "once"}, logx.Nop(), nil)
	p.Run(context.Background(), t0)
	if _, ok := p.NextRun(); ok {
		t.Fatal("one-time plan should be exhausted after running")
	}
	if _, err := p.schedule.Next(); !errors.Is(err, schedule.ErrExhausted) {
		t.Fatalf("Next err = %v, want ErrExhausted", err)
	}
}
