package action

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	logx "tickd/pkg/logx"
)

func TestSyncRunsInline(t *testing.T) {
	t.Parallel()
	calls := 0
	var results []Result
	a := NewSync(func(ctx context.Context) error {
		calls++
		return nil
	}, WithName("inline"), OnDone(func(r Result) { results = append(results, r) }))

	if a.Running() {
		t.Fatal("Running before Run")
	}
	a.Run(context.Background())
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if a.Running() {
		t.Fatal("Sync must not be running once Run returns")
	}
	if len(results) != 1 || results[0].Err != nil || results[0].Name != "inline" {
		t.Fatalf("results = %+v", results)
	}
	if a.RunID() == "" || a.RunID() != results[0].RunID {
		t.Fatalf("RunID = %q, result RunID = %q", a.RunID(), results[0].RunID)
	}
}

func TestSyncContainsErrorsAndPanics(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := logx.NewJSON(&buf, "debug")

	var got []Result
	hook := OnDone(func(r Result) { got = append(got, r) })

	NewSync(func(ctx context.Context) error { return errors.New("boom") }, WithLogger(log), hook).Run(context.Background())
	NewSync(func(ctx context.Context) error { panic("kaboom") }, WithLogger(log), hook).Run(context.Background())

	if len(got) != 2 {
		t.Fatalf("results = %d, want 2", len(got))
	}
	if got[0].Err == nil || got[0].Panicked() {
		t.Fatalf("first result = %+v, want plain error", got[0])
	}
	if !got[1].Panicked() || !strings.Contains(got[1].Err.Error(), "kaboom") {
		t.Fatalf("second result = %+v, want panic", got[1])
	}
	out := buf.String()
	if !strings.Contains(out, "action failed") || !strings.Contains(out, "action panicked") {
		t.Fatalf("expected failure logs, got %s", out)
	}
}

func TestBackgroundReturnsImmediately(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	finished := make(chan Result, 1)
	a := NewBackground(func(ctx context.Context) error {
		<-release
		return nil
	}, OnDone(func(r Result) { finished <- r }))

	if a.Running() || a.RunID() != "" {
		t.Fatal("fresh Background should be idle")
	}
	a.Run(context.Background())
	if !a.Running() {
		t.Fatal("Background should be running while the task blocks")
	}
	id := a.RunID()
	if id == "" {
		t.Fatal("RunID empty while running")
	}

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.Task().Wait(ctx); err != nil {
		t.Fatalf("Wait error: %v", err)
	}
	if a.Running() {
		t.Fatal("Background still running after task finished")
	}
	select {
	case r := <-finished:
		if r.RunID != id {
			t.Fatalf("result RunID = %q, want %q", r.RunID, id)
		}
	case <-ctx.Done():
		t.Fatal("OnDone not called")
	}
}

func TestBackgroundContainsPanic(t *testing.T) {
	t.Parallel()
	a := NewBackground(func(ctx context.Context) error { panic("bad") })
	a.Run(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := a.Task().Wait(ctx)
	if !errors.Is(err, ErrPanicked) {
		t.Fatalf("task err = %v, want ErrPanicked", err)
	}
}

func TestGoTaskLifecycle(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	started := false
	release := make(chan struct{})
	task := Go(context.Background(), func(ctx context.Context) error {
		mu.Lock()
		started = true
		mu.Unlock()
		<-release
		return errors.New("done with error")
	})
	if task.IsDone() || task.Err() != nil {
		t.Fatal("task should be pending")
	}

	short, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := task.Wait(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait err = %v, want deadline", err)
	}

	close(release)
	<-task.Done()
	if task.Err() == nil || task.Err().Error() != "done with error" {
		t.Fatalf("Err = %v", task.Err())
	}
	mu.Lock()
	defer mu.Unlock()
	if !started {
		t.Fatal("fn never ran")
	}
}

func TestOnDoneChainOrder(t *testing.T) {
	t.Parallel()
	var order []string
	a := NewSync(func(ctx context.Context) error { return nil },
		OnDone(func(Result) { order = append(order, "user") }),
		OnDoneChain(func(Result) { order = append(order, "chained") }),
	)
	a.Run(context.Background())
	if strings.Join(order, ",") != "chained,user" {
		t.Fatalf("order = %v, want [chained user]", order)
	}
}
