package storage

import (
	"context"
	"sync/atomic"
	"time"

	"tickd/internal/eventbus"
	"tickd/internal/reactor"
	logx "tickd/pkg/logx"
)

const recorderBuffer = 256

// Recorder persists action.* events published by the reactor.
type Recorder struct {
	store Store
	log   logx.Logger

	ch    <-chan eventbus.Event
	unsub func()

	written atomic.Uint64
	failed  atomic.Uint64
}

// NewRecorder subscribes immediately so events published before Run starts
// are buffered rather than lost.
func NewRecorder(bus eventbus.Bus, store Store, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	ch, unsub := bus.Subscribe(recorderBuffer, "action.")
	return &Recorder{store: store, log: log, ch: ch, unsub: unsub}
}

// Run consumes events until ctx ends, then flushes what is already buffered.
func (r *Recorder) Run(ctx context.Context) error {
	defer r.unsub()
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return nil
		case ev, ok := <-r.ch:
			if !ok {
				return nil
			}
			r.record(ctx, ev)
		}
	}
}

// Written returns the number of runs persisted so far.
func (r *Recorder) Written() uint64 { return r.written.Load() }

func (r *Recorder) Failed() uint64 { return r.failed.Load() }

func (r *Recorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case ev, ok := <-r.ch:
			if !ok {
				return
			}
			r.record(ctx, ev)
		default:
			return
		}
	}
}

func (r *Recorder) record(ctx context.Context, ev eventbus.Event) {
	ae, ok := ev.Data.(reactor.ActionEvent)
	if !ok {
		return
	}
	rec := RunRecord{
		At:       ae.Started,
		Action:   ae.Action,
		RunID:    ae.RunID,
		TookMS:   ae.Duration.Milliseconds(),
		OK:       ev.Type == reactor.EventActionFinished,
		Error:    ae.Error,
		Panicked: ae.Panicked,
	}
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := r.store.AppendRun(wctx, rec); err != nil {
		r.failed.Add(1)
		r.log.Warn("run history append failed", logx.String("run_id", rec.RunID), logx.Any("err", err))
		return
	}
	r.written.Add(1)
}
