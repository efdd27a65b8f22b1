package schedule

import (
	"hash/fnv"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// IntervalConfig configures an Interval schedule.
//
// All duration components are summed into a single period. A zero Start means
// "now" (or now plus a random offset in [0, period) when RandomizeStart is set,
// which spreads many schedules created at the same instant). A zero Until means
// unbounded.
type IntervalConfig struct {
	Start          time.Time
	Days           int
	Hours          int
	Minutes        int
	Seconds        int
	Milliseconds   int
	Until          time.Time
	RandomizeStart bool
}

// Period returns the normalized period.
func (c IntervalConfig) Period() time.Duration {
	return time.Duration(c.Days)*24*time.Hour +
		time.Duration(c.Hours)*time.Hour +
		time.Duration(c.Minutes)*time.Minute +
		time.Duration(c.Seconds)*time.Second +
		time.Duration(c.Milliseconds)*time.Millisecond
}

// Interval fires at start, start+period, start+2*period, ...
//
// Each value is derived from the previous one, not from the wall clock, so the
// sequence never drifts from its anchor even when the consumer falls behind.
type Interval struct {
	mu     sync.Mutex
	start  time.Time
	period time.Duration
	until  time.Time

	next time.Time
	done bool
}

func NewInterval(cfg IntervalConfig) (*Interval, error) {
	period := cfg.Period()
	if period <= 0 {
		return nil, configErr("period", period, "must be > 0")
	}
	start := cfg.Start
	if start.IsZero() {
		start = timeNow()
		if cfg.RandomizeStart {
			start = start.Add(RandomOffset(period))
		}
	}
	// An until at or before start yields an already exhausted schedule.
	return &Interval{start: start, period: period, until: cfg.Until, next: start}, nil
}

// Every is shorthand for an unbounded interval starting now.
func Every(d time.Duration) (*Interval, error) {
	return NewInterval(IntervalConfig{Milliseconds: int(d / time.Millisecond)})
}

func (i *Interval) Next() (time.Time, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.done {
		return time.Time{}, ErrExhausted
	}
	t := i.next
	if !i.until.IsZero() && !t.Before(i.until) {
		i.done = true
		return time.Time{}, ErrExhausted
	}
	i.next = t.Add(i.period)
	return t, nil
}

// Start returns the anchor of the sequence.
func (i *Interval) Start() time.Time { return i.start }

func (i *Interval) Period() time.Duration { return i.period }

var spreadSeq uint64

// RandomOffset returns a uniformly random offset in [0, period).
func RandomOffset(period time.Duration) time.Duration {
	if period <= 0 {
		return 0
	}
	seed := time.Now().UnixNano() ^ int64(atomic.AddUint64(&spreadSeq, 1)) ^ int64(fnv64a(period.String()))
	rng := rand.New(rand.NewSource(seed))
	return time.Duration(rng.Int63n(int64(period)))
}

func fnv64a(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
