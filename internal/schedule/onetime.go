package schedule

import (
	"sync/atomic"
	"time"
)

// OneTime fires exactly once at a fixed instant.
type OneTime struct {
	at   time.Time
	used atomic.Bool
}

func NewOneTime(at time.Time) *OneTime {
	return &OneTime{at: at}
}

func (o *OneTime) Next() (time.Time, error) {
	if o.used.Swap(true) {
		return time.Time{}, ErrExhausted
	}
	return o.at, nil
}

// At returns the configured instant.
func (o *OneTime) At() time.Time { return o.at }
