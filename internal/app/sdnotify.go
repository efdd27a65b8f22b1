package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"tickd/internal/action"
	"tickd/internal/reactor"
	"tickd/internal/schedule"
	logx "tickd/pkg/logx"
)

const watchdogPlan = "systemd.watchdog"

// sdNotify is swapped in tests.
var sdNotify = daemon.SdNotify

var sdWatchdogEnabled = daemon.SdWatchdogEnabled

func (a *App) notify(state string) {
	sent, err := sdNotify(false, state)
	if err != nil {
		a.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		a.log.Debug("sd_notify sent", logx.String("state", state))
	}
}

// dispatchWatchdog registers a plan pinging the systemd watchdog at half the
// configured interval. It reports whether the unit has a watchdog at all.
func (a *App) dispatchWatchdog() (bool, error) {
	every, err := sdWatchdogEnabled(false)
	if err != nil {
		a.log.Warn("systemd watchdog env invalid", logx.Err(err))
		return false, nil
	}
	if every <= 0 {
		return false, nil
	}
	period := every / 2
	if period < time.Millisecond {
		period = time.Millisecond
	}
	s, err := a.reactor.ScheduleInterval(schedule.IntervalConfig{Milliseconds: int(period / time.Millisecond)})
	if err != nil {
		return false, err
	}
	act := a.reactor.Action(func(ctx context.Context) error {
		_, err := sdNotify(false, daemon.SdNotifyWatchdog)
		return err
	}, action.WithName(watchdogPlan))
	a.reactor.Dispatch(s, act, reactor.WithName(watchdogPlan))
	a.log.Info("systemd watchdog enabled", logx.Duration("interval", every), logx.Duration("ping_every", period))
	return true, nil
}
