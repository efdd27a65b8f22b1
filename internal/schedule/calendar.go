package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// maxCalendarDays bounds the day-by-day search in NextMatch. Eight years covers
// every day-of-month/weekday combination, leap years included.
const maxCalendarDays = 366 * 8

// Set is a match set for one calendar field. A nil Set matches every value;
// otherwise it holds a sorted, de-duplicated list of accepted values.
type Set []int

// All reports whether the set matches every value.
func (s Set) All() bool { return s == nil }

func (s Set) Match(v int) bool {
	if s == nil {
		return true
	}
	i := sort.SearchInts(s, v)
	return i < len(s) && s[i] == v
}

// next returns the smallest accepted value in [v, limit].
func (s Set) next(v, limit int) (int, bool) {
	if v > limit {
		return 0, false
	}
	if s == nil {
		return v, true
	}
	i := sort.SearchInts(s, v)
	if i >= len(s) || s[i] > limit {
		return 0, false
	}
	return s[i], true
}

// Fields is the resolved form of a calendar pattern.
//
// Days and Weekdays both have to match when both are restricted.
// Weekdays holds time.Weekday values (Sunday = 0).
type Fields struct {
	Days     Set
	Weekdays Set
	Hours    Set
	Minutes  Set
	Seconds  Set
}

func (f Fields) matchDay(t time.Time) bool {
	return f.Days.Match(t.Day()) && f.Weekdays.Match(int(t.Weekday()))
}

// NextMatch returns the earliest instant at or after `after` (rounded up to a
// whole second) that satisfies every field.
//
// Resolution cascades: the day is fixed first, then the hour, minute and second
// within that day. A field that cannot be satisfied carries into the next
// coarser unit.
func NextMatch(after time.Time, f Fields) (time.Time, error) {
	c := after
	if tr := c.Truncate(time.Second); tr.Before(c) {
		c = tr.Add(time.Second)
	}
	for i := 0; i <= maxCalendarDays; i++ {
		if f.matchDay(c) {
			if t, ok := f.timeOfDay(c); ok {
				return t, nil
			}
		}
		y, m, d := c.Date()
		c = time.Date(y, m, d+1, 0, 0, 0, 0, c.Location())
	}
	return time.Time{}, ErrUnsatisfiable
}

func (f Fields) timeOfDay(c time.Time) (time.Time, bool) {
	y, mo, d := c.Date()
	h, m, s := c.Clock()
	for h < 24 {
		nh, ok := f.Hours.next(h, 23)
		if !ok {
			return time.Time{}, false
		}
		if nh != h {
			h, m, s = nh, 0, 0
		}
		nm, ok := f.Minutes.next(m, 59)
		if !ok {
			h, m, s = h+1, 0, 0
			continue
		}
		if nm != m {
			m, s = nm, 0
		}
		if ns, ok := f.Seconds.next(s, 59); ok {
			t := time.Date(y, mo, d, h, m, ns, 0, c.Location())
			// A wall time inside a DST gap is normalized to another clock
			// reading; a repeated one (fall-back) may lie before c.
			if t.Hour() == h && t.Minute() == m && t.Second() == ns && !t.Before(c) {
				return t, true
			}
			s = ns + 1
			if s <= 59 {
				continue
			}
		}
		m, s = m+1, 0
		if m > 59 {
			h, m = h+1, 0
		}
	}
	return time.Time{}, false
}

// CalendarConfig configures a Calendar schedule.
//
// The most specific field provided decides the defaults of the others: coarser
// fields match everything, finer fields default to 0. Hours=[7] alone means
// every day at 07:00:00.
//
// DaysOfWeek accepts full English names in any case ("monday") or indexes
// "0".."6" with 0 = Monday. Weekdays is the typed equivalent; both are merged.
type CalendarConfig struct {
	Start      time.Time
	Days       []int
	DaysOfWeek []string
	Weekdays   []time.Weekday
	Hours      []int
	Minutes    []int
	Seconds    []int
	Until      time.Time
}

// Calendar fires on every instant matching its fields.
type Calendar struct {
	mu     sync.Mutex
	fields Fields
	start  time.Time
	until  time.Time
	cursor time.Time
	done   bool
}

func NewCalendar(cfg CalendarConfig) (*Calendar, error) {
	f, err := ResolveFields(cfg)
	if err != nil {
		return nil, err
	}
	start := cfg.Start
	if start.IsZero() {
		start = timeNow()
	}
	if _, err := NextMatch(start, f); err != nil {
		return nil, fmt.Errorf("calendar: %w", err)
	}
	return &Calendar{fields: f, start: start, until: cfg.Until, cursor: start}, nil
}

func (c *Calendar) Next() (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return time.Time{}, ErrExhausted
	}
	t, err := NextMatch(c.cursor, c.fields)
	if err != nil {
		return time.Time{}, err
	}
	if !c.until.IsZero() && !t.Before(c.until) {
		c.done = true
		return time.Time{}, ErrExhausted
	}
	c.cursor = t.Add(time.Second)
	return t, nil
}

func (c *Calendar) Fields() Fields { return c.fields }

// ResolveFields validates cfg and applies the most-specific-field defaults.
func ResolveFields(cfg CalendarConfig) (Fields, error) {
	days, err := newSet("days", cfg.Days, 1, 31)
	if err != nil {
		return Fields{}, err
	}
	wd := make([]int, 0, len(cfg.DaysOfWeek)+len(cfg.Weekdays))
	for _, raw := range cfg.DaysOfWeek {
		w, err := ParseWeekday(raw)
		if err != nil {
			return Fields{}, err
		}
		wd = append(wd, int(w))
	}
	for _, w := range cfg.Weekdays {
		if w < time.Sunday || w > time.Saturday {
			return Fields{}, configErr("days_of_week", int(w), "out of range")
		}
		wd = append(wd, int(w))
	}
	weekdays, err := newSet("days_of_week", wd, 0, 6)
	if err != nil {
		return Fields{}, err
	}
	hours, err := newSet("hours", cfg.Hours, 0, 23)
	if err != nil {
		return Fields{}, err
	}
	minutes, err := newSet("minutes", cfg.Minutes, 0, 59)
	if err != nil {
		return Fields{}, err
	}
	seconds, err := newSet("seconds", cfg.Seconds, 0, 59)
	if err != nil {
		return Fields{}, err
	}

	// 0 = day, 1 = hour, 2 = minute, 3 = second
	specific := -1
	if days != nil || weekdays != nil {
		specific = 0
	}
	if hours != nil {
		specific = 1
	}
	if minutes != nil {
		specific = 2
	}
	if seconds != nil {
		specific = 3
	}
	if specific < 0 {
		return Fields{}, configErr("calendar", nil, "at least one of days, days_of_week, hours, minutes, seconds is required")
	}
	zero := Set{0}
	if hours == nil && specific < 1 {
		hours = zero
	}
	if minutes == nil && specific < 2 {
		minutes = zero
	}
	if seconds == nil && specific < 3 {
		seconds = zero
	}
	return Fields{Days: days, Weekdays: weekdays, Hours: hours, Minutes: minutes, Seconds: seconds}, nil
}

func newSet(field string, vals []int, lo, hi int) (Set, error) {
	if len(vals) == 0 {
		return nil, nil
	}
	out := make([]int, 0, len(vals))
	for _, v := range vals {
		if v < lo || v > hi {
			return nil, configErr(field, v, fmt.Sprintf("must be in [%d,%d]", lo, hi))
		}
		out = append(out, v)
	}
	sort.Ints(out)
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return Set(out[:n]), nil
}

var weekdayNames = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

// ParseWeekday parses a full weekday name (case-insensitive) or an index
// "0".."6" where 0 is Monday.
func ParseWeekday(raw string) (time.Weekday, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if w, ok := weekdayNames[s]; ok {
		return w, nil
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, configErr("days_of_week", raw, "unknown weekday")
	}
	if i < 0 || i > 6 {
		return 0, configErr("days_of_week", i, "must be in [0,6]")
	}
	return time.Weekday((i + 1) % 7), nil
}
