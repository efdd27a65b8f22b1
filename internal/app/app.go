package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"tickd/internal/eventbus"
	"tickd/internal/httpapi"
	"tickd/internal/reactor"
	"tickd/internal/runtime/supervisor"
	"tickd/internal/storage"
	logx "tickd/pkg/logx"
	"tickd/pkg/unitctl"
)

type App struct {
	cfgPath string
	cfgm    *ConfigManager
	log     logx.Logger
	logs    *logx.Service

	bus      eventbus.Bus
	store    storage.Store
	recorder *storage.Recorder
	reactor  *reactor.Reactor

	sup         *Supervisor
	reactorOpts []reactor.Option

	unitsOnce sync.Once
	units     *unitctl.Manager

	stopping  atomic.Bool
	plansDone atomic.Bool
}

// Option adjusts an App before Start.
type Option func(*App)

// WithReactorOptions forwards options to the reactor, e.g. a fixed clock.
func WithReactorOptions(opts ...reactor.Option) Option {
	return func(a *App) { a.reactorOpts = append(a.reactorOpts, opts...) }
}

func NewApp(cfgPath string, opts ...Option) (*App, error) {
	cfgm := NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     eventbus.New(),
	}
	for _, o := range opts {
		if o != nil {
			o(a)
		}
	}

	// Storage (optional)
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		_ = logSvc.Close()
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
		a.store = st
		a.recorder = storage.NewRecorder(a.bus, st, log.With(logx.String("comp", "history")))
		log.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	a.reactor = reactor.New(reactor.Config{Timezone: cfg.Reactor.Timezone},
		log.With(logx.String("comp", "reactor")), a.bus, a.reactorOpts...)
	return a, nil
}

func (a *App) Reactor() *reactor.Reactor { return a.reactor }

// Store is nil when run history is disabled.
func (a *App) Store() storage.Store { return a.store }

// Done is closed when the app supervisor context is canceled (fatal error,
// every plan finished, or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// PlansDone reports whether the app ended because no plans were left.
func (a *App) PlansDone() bool { return a.plansDone.Load() }

// Status is the combined runtime view used for diagnostics.
type Status struct {
	Reactor    reactor.Snapshot    `json:"reactor"`
	Supervisor supervisor.Snapshot `json:"supervisor"`
	Dropped    uint64              `json:"events_dropped"`
}

func (a *App) Status() Status {
	st := Status{Reactor: a.reactor.Snapshot(), Dropped: a.bus.Dropped()}
	if a.sup != nil {
		st.Supervisor = a.sup.Snapshot()
	}
	return st
}

// Plans, Goroutines and History back the status endpoint.
func (a *App) Plans() reactor.Snapshot { return a.reactor.Snapshot() }

func (a *App) Goroutines() supervisor.Snapshot {
	if a.sup == nil {
		return supervisor.Snapshot{}
	}
	return a.sup.Snapshot()
}

func (a *App) History(ctx context.Context, limit int) ([]storage.RunRecord, error) {
	if a.store == nil {
		return nil, storage.ErrDisabled
	}
	return a.store.Recent(ctx, limit)
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *Config) error {
		_, _, err := mapStorageConfig(cfg)
		return err
	})

	cfg := a.cfgm.Get()
	n, err := a.dispatchPlans(cfg)
	if err != nil {
		a.sup.Cancel()
		return err
	}
	wd, err := a.dispatchWatchdog()
	if err != nil {
		a.sup.Cancel()
		return err
	}
	if n == 0 {
		a.log.Warn("no plans configured", logx.String("path", a.cfgPath))
	}

	if a.recorder != nil {
		a.sup.Go("history.recorder", a.recorder.Run)
	}

	a.sup.Go("reactor", func(c context.Context) error {
		err := a.reactor.Run(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			return err
		}
		if c.Err() == nil && !a.stopping.Load() {
			a.plansDone.Store(true)
			a.log.Info("all plans finished; shutting down")
			a.sup.Cancel()
		}
		return nil
	})

	// Optional: log events for observability/debug.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				// Keep this debug-level to avoid noise for frequent plans.
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	if hc := cfg.HTTP; hc != nil && strings.TrimSpace(hc.Listen) != "" {
		srv := httpapi.New(httpapi.Config{
			Addr:          hc.Listen,
			Token:         hc.Token,
			AllowInsecure: hc.AllowInsecure,
			Pprof:         hc.Pprof,
		}, a, a.log.With(logx.String("comp", "http")))
		a.sup.Go("http.status", srv.Run)
	}

	a.sup.GoRestart("config.watch", a.cfgm.Watch, supervisor.WithRestartBackoff(time.Second, 30*time.Second))

	a.notify(daemon.SdNotifyReady)
	a.log.Info("app started", logx.Int("plans", n), logx.Bool("watchdog", wd))
	return nil
}

// applyConfig hot-applies the logging section. Plans, reactor and storage
// are bound at startup and only reported.
func (a *App) applyConfig(oldCfg, newCfg *Config) {
	sections, attrs, changedPlans := SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(mapLoggingConfig(newCfg))
		case "plans":
			a.log.Warn("plans changed; restart required for changes to take effect", logx.Any("plans", changedPlans))
		case "reactor", "storage", "http":
			a.log.Warn(s + " config changed; restart required for changes to take effect")
		}
	}
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		if a.store != nil {
			_ = a.store.Close()
		}
		a.closeLogs()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.stopping.Store(true)
	a.notify(daemon.SdNotifyStopping)

	// Ask the loop to finish its current action, then cancel everything else.
	a.reactor.Stop()
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			elapsed := time.Since(start)
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", elapsed),
			)
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	// Supervised goroutines first: the recorder flushes into the store.
	step("supervisor", 3*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	step("units", time.Second, func(c context.Context) error {
		if a.units != nil {
			return a.units.Close()
		}
		return nil
	})
	step("storage", time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	a.closeLogs()
	return nil
}

func (a *App) closeLogs() {
	if a.logs != nil {
		_ = a.logs.Close()
	}
}

// Check registers the configured plans without starting anything and
// returns the resulting schedule.
func (a *App) Check() (reactor.Snapshot, error) {
	if _, err := a.dispatchPlans(a.cfgm.Get()); err != nil {
		return reactor.Snapshot{}, err
	}
	return a.reactor.Snapshot(), nil
}
