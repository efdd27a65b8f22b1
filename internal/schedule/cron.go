package schedule

import (
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Parser accepts both 5-field and 6-field (leading seconds) cron specs plus
// descriptors such as "@hourly" and "@every 5m".
var Parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CronConfig configures a Cron schedule. Zero Start means now, zero Until
// means unbounded. Location is applied to Start (and hence to the expression);
// nil keeps Start's own location.
type CronConfig struct {
	Expr     string
	Start    time.Time
	Until    time.Time
	Location *time.Location
}

// Cron fires on every instant matched by a robfig/cron expression.
type Cron struct {
	mu     sync.Mutex
	expr   string
	sched  cron.Schedule
	until  time.Time
	cursor time.Time
	done   bool
}

func NewCron(cfg CronConfig) (*Cron, error) {
	expr := strings.TrimSpace(cfg.Expr)
	if expr == "" {
		return nil, configErr("cron", nil, "expression required")
	}
	sched, err := Parser.Parse(expr)
	if err != nil {
		return nil, configErr("cron", expr, err.Error())
	}
	start := cfg.Start
	if start.IsZero() {
		start = timeNow()
	}
	if cfg.Location != nil {
		start = start.In(cfg.Location)
	}
	// cron.Schedule.Next is strictly-after; back off so start itself can match.
	return &Cron{expr: expr, sched: sched, until: cfg.Until, cursor: start.Add(-time.Second)}, nil
}

func (c *Cron) Next() (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return time.Time{}, ErrExhausted
	}
	t := c.sched.Next(c.cursor)
	if t.IsZero() {
		// robfig/cron gives up after five years without a match.
		c.done = true
		return time.Time{}, ErrUnsatisfiable
	}
	if !c.until.IsZero() && !t.Before(c.until) {
		c.done = true
		return time.Time{}, ErrExhausted
	}
	c.cursor = t
	return t, nil
}

func (c *Cron) Expr() string { return c.expr }
