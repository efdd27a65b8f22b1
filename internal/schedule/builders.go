package schedule

import (
	"time"
)

// Daily fires every day at hour:minute:second on now's wall clock. The first
// fire is today, or tomorrow when that time of day has already passed.
func Daily(now time.Time, hour, minute, second int) (*Calendar, error) {
	if err := checkClock(hour, minute, second); err != nil {
		return nil, err
	}
	return NewCalendar(CalendarConfig{
		Start:   now,
		Hours:   []int{hour},
		Minutes: []int{minute},
		Seconds: []int{second},
	})
}

// Hourly fires every hour at minute:second. The first fire is within the
// current hour, or the next hour when it has already passed.
func Hourly(now time.Time, minute, second int) (*Interval, error) {
	if err := checkClock(0, minute, second); err != nil {
		return nil, err
	}
	y, m, d := now.Date()
	start := time.Date(y, m, d, now.Hour(), minute, second, 0, now.Location())
	if start.Before(now) {
		start = start.Add(time.Hour)
	}
	return NewInterval(IntervalConfig{Start: start, Hours: 1})
}

func checkClock(hour, minute, second int) error {
	if hour < 0 || hour > 23 {
		return configErr("hour", hour, "must be in [0,23]")
	}
	if minute < 0 || minute > 59 {
		return configErr("minute", minute, "must be in [0,59]")
	}
	if second < 0 || second > 59 {
		return configErr("second", second, "must be in [0,59]")
	}
	return nil
}
