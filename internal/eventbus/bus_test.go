package eventbus

import (
	"testing"
)

func TestPublishFiltersByPrefix(t *testing.T) {
	t.Parallel()
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	plans, unsubPlans := b.Subscribe(4, "plan.")
	defer unsubPlans()

	b.Publish(Event{Type: "plan.started"})
	b.Publish(Event{Type: "action.failed"})

	if len(all) != 2 {
		t.Fatalf("all subscriber got %d events, want 2", len(all))
	}
	if len(plans) != 1 {
		t.Fatalf("plan subscriber got %d events, want 1", len(plans))
	}
	e := <-plans
	if e.Type != "plan.started" || e.Time.IsZero() {
		t.Fatalf("unexpected event: %+v", e)
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	if got := b.Dropped(); got != 1 {
		t.Fatalf("Dropped = %d, want 1", got)
	}
	unsub()
	unsub()
	// Publishing after unsubscribe must not panic or deliver.
	b.Publish(Event{Type: "c"})
	n := 0
	for range ch {
		n++
	}
	if n != 1 {
		t.Fatalf("drained %d events, want 1", n)
	}
}
