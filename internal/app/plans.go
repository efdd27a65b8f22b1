package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"tickd/internal/action"
	"tickd/internal/config"
	"tickd/internal/reactor"
	logx "tickd/pkg/logx"
	"tickd/pkg/unitctl"
)

const (
	// commandOutputLimit bounds how much combined output a failed command
	// carries into its error.
	commandOutputLimit = 2048
	commandWaitDelay   = 2 * time.Second
)

// dispatchPlans registers every enabled plan from cfg and returns how many
// were registered.
func (a *App) dispatchPlans(cfg *Config) (int, error) {
	n := 0
	for _, pc := range cfg.Plans {
		if pc.Disabled {
			a.log.Info("plan disabled", logx.String("plan", pc.Name))
			continue
		}
		if err := a.dispatchPlan(cfg, pc); err != nil {
			return n, fmt.Errorf("plan %q: %w", pc.Name, err)
		}
		n++
	}
	return n, nil
}

func (a *App) dispatchPlan(cfg *Config, pc config.PlanConfig) error {
	s, err := a.reactor.ScheduleSpec(pc.Schedule, cfg.Reactor.StartupSpread)
	if err != nil {
		return err
	}
	fn, err := a.planFunc(pc)
	if err != nil {
		return err
	}

	opts := []action.Option{action.WithName(pc.Name)}
	var act action.Action
	if pc.Background {
		act = a.reactor.BackgroundAction(fn, opts...)
	} else {
		act = a.reactor.Action(fn, opts...)
	}

	p := a.reactor.Dispatch(s, act, reactor.WithName(pc.Name), reactor.WithAllowMultiple(pc.AllowMultiple))
	next, _ := p.NextRun()
	a.log.Info("plan scheduled",
		logx.String("plan", pc.Name),
		logx.String("schedule", pc.Schedule),
		logx.Time("next", next),
		logx.Bool("background", pc.Background),
	)
	return nil
}

func (a *App) planFunc(pc config.PlanConfig) (action.Func, error) {
	timeout := pc.TimeoutDuration()
	if pc.Unit != nil {
		op, err := unitctl.ParseOp(pc.Unit.Op)
		if err != nil {
			return nil, err
		}
		return unitFunc(func() unitDoer { return a.unitManager() }, op, pc.Unit.Name, timeout), nil
	}
	if len(pc.Command) == 0 {
		return nil, errors.New("command or unit required")
	}
	env, err := planEnv(pc)
	if err != nil {
		return nil, err
	}
	return commandFunc(pc.Command, pc.Dir, env, timeout, a.log.With(logx.String("plan", pc.Name))), nil
}

// planEnv reads env_file (if any) and appends the inline env entries, which
// win on duplicate keys.
func planEnv(pc config.PlanConfig) ([]string, error) {
	if strings.TrimSpace(pc.EnvFile) == "" {
		return pc.Env, nil
	}
	vars, err := godotenv.Read(pc.EnvFile)
	if err != nil {
		return nil, fmt.Errorf("env_file: %w", err)
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys)+len(pc.Env))
	for _, k := range keys {
		out = append(out, k+"="+vars[k])
	}
	return append(out, pc.Env...), nil
}

// commandFunc runs argv once per invocation. A non-zero exit becomes an
// error carrying the tail of the command's combined output.
func commandFunc(argv []string, dir string, env []string, timeout time.Duration, log logx.Logger) action.Func {
	args := append([]string(nil), argv...)
	extra := append([]string(nil), env...)
	return func(ctx context.Context) error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		cmd := exec.CommandContext(ctx, args[0], args[1:]...)
		cmd.Dir = dir
		if len(extra) > 0 {
			cmd.Env = append(os.Environ(), extra...)
		}
		out := &tailBuffer{max: commandOutputLimit}
		cmd.Stdout = out
		cmd.Stderr = out
		cmd.WaitDelay = commandWaitDelay

		start := time.Now()
		err := cmd.Run()
		took := time.Since(start)
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("%s: timed out after %s", args[0], timeout)
			}
			if tail := strings.TrimSpace(out.String()); tail != "" {
				return fmt.Errorf("%s: %w: %s", args[0], err, tail)
			}
			return fmt.Errorf("%s: %w", args[0], err)
		}
		log.Debug("command finished", logx.String("cmd", args[0]), logx.Duration("took", took), logx.Int("output_bytes", out.Total()))
		return nil
	}
}

type unitDoer interface {
	Do(ctx context.Context, op unitctl.Op, unit string) error
}

func unitFunc(units func() unitDoer, op unitctl.Op, name string, timeout time.Duration) action.Func {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	unit := unitctl.UnitName(name)
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return units().Do(ctx, op, unit)
	}
}

// unitManager connects lazily so configs without unit plans never touch dbus.
func (a *App) unitManager() *unitctl.Manager {
	a.unitsOnce.Do(func() { a.units = unitctl.New() })
	return a.units
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	max   int
	buf   bytes.Buffer
	total int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.total += len(p)
	b.buf.Write(p)
	if over := b.buf.Len() - b.max; over > 0 {
		b.buf.Next(over)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *tailBuffer) Total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}
