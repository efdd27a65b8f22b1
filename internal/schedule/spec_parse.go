package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SpecKind describes the normalized kind of a schedule string.
type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
	SpecOnce
	SpecDaily
	SpecHourly
)

func (k SpecKind) String() string {
	switch k {
	case SpecCron:
		return "cron"
	case SpecInterval:
		return "interval"
	case SpecOnce:
		return "once"
	case SpecDaily:
		return "daily"
	case SpecHourly:
		return "hourly"
	default:
		return "unknown"
	}
}

// ParsedSpec represents a parsed schedule string.
//
// Supported forms:
//   - Cron: "*/5 * * * *", "0 30 7 * * *", "@hourly", "@every 55m"
//   - Interval duration: "55m", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
//
// Prefixes:
//   - "cron:" forces cron parsing
//   - "interval:" or "every:" forces interval parsing
//   - "once:" takes an RFC3339 or "2006-01-02 15:04:05" timestamp
//   - "daily:" takes HH:MM[:SS], "hourly:" takes MM[:SS]
type ParsedSpec struct {
	Kind   SpecKind
	Cron   string
	Every  time.Duration
	At     time.Time
	Hour   int
	Minute int
	Second int
	Source string // "cron" | "duration" | "hhmm" | "timestamp" | "clock"
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseSpec parses a schedule string. loc is used for timestamps without an
// explicit offset; nil means time.Local.
func ParseSpec(raw string, loc *time.Location) (ParsedSpec, error) {
	if loc == nil {
		loc = time.Local
	}
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, configErr("schedule", nil, "required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return ParsedSpec{}, configErr("schedule", raw, "cron expression required after 'cron:'")
		}
		return ParsedSpec{Kind: SpecCron, Cron: expr, Source: "cron"}, nil
	case strings.HasPrefix(low, "interval:"):
		return intervalSpec(raw, s[len("interval:"):])
	case strings.HasPrefix(low, "every:"):
		return intervalSpec(raw, s[len("every:"):])
	case strings.HasPrefix(low, "once:"):
		at, err := parseTimestamp(strings.TrimSpace(s[len("once:"):]), loc)
		if err != nil {
			return ParsedSpec{}, configErr("schedule", raw, err.Error())
		}
		return ParsedSpec{Kind: SpecOnce, At: at, Source: "timestamp"}, nil
	case strings.HasPrefix(low, "daily:"):
		h, m, sec, err := parseClock(strings.TrimSpace(s[len("daily:"):]), true)
		if err != nil {
			return ParsedSpec{}, configErr("schedule", raw, err.Error())
		}
		return ParsedSpec{Kind: SpecDaily, Hour: h, Minute: m, Second: sec, Source: "clock"}, nil
	case strings.HasPrefix(low, "hourly:"):
		_, m, sec, err := parseClock(strings.TrimSpace(s[len("hourly:"):]), false)
		if err != nil {
			return ParsedSpec{}, configErr("schedule", raw, err.Error())
		}
		return ParsedSpec{Kind: SpecHourly, Minute: m, Second: sec, Source: "clock"}, nil
	}

	// any whitespace or leading '@' => cron
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return ParsedSpec{Kind: SpecCron, Cron: s, Source: "cron"}, nil
	}
	if reHHMM.MatchString(s) {
		d, err := parseHHMMDuration(s)
		if err != nil {
			return ParsedSpec{}, configErr("schedule", raw, err.Error())
		}
		return ParsedSpec{Kind: SpecInterval, Every: d, Source: "hhmm"}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return ParsedSpec{}, configErr("schedule", raw, "interval must be > 0")
		}
		return ParsedSpec{Kind: SpecInterval, Every: d, Source: "duration"}, nil
	}

	return ParsedSpec{}, configErr("schedule", raw,
		"use cron like '*/5 * * * *', HH:MM like '02:30', duration like '55m', or a once:/daily:/hourly: prefix")
}

// Build turns the parsed spec into a Schedule anchored at now. With spread set,
// interval schedules start at a random offset within one period.
func (p ParsedSpec) Build(now time.Time, spread bool) (Schedule, error) {
	switch p.Kind {
	case SpecCron:
		return NewCron(CronConfig{Expr: p.Cron, Start: now})
	case SpecInterval:
		start := now
		if spread {
			start = start.Add(RandomOffset(p.Every))
		}
		return NewInterval(IntervalConfig{Start: start, Milliseconds: int(p.Every / time.Millisecond)})
	case SpecOnce:
		return NewOneTime(p.At), nil
	case SpecDaily:
		return Daily(now, p.Hour, p.Minute, p.Second)
	case SpecHourly:
		return Hourly(now, p.Minute, p.Second)
	default:
		return nil, configErr("schedule", p.Kind, "unsupported kind")
	}
}

// Parse is ParseSpec followed by Build without startup spread.
func Parse(raw string, now time.Time) (Schedule, error) {
	ps, err := ParseSpec(raw, now.Location())
	if err != nil {
		return nil, err
	}
	return ps.Build(now, false)
}

func intervalSpec(raw, v string) (ParsedSpec, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return ParsedSpec{}, configErr("schedule", raw, "interval required")
	}
	if reHHMM.MatchString(v) {
		d, err := parseHHMMDuration(v)
		if err != nil {
			return ParsedSpec{}, configErr("schedule", raw, err.Error())
		}
		return ParsedSpec{Kind: SpecInterval, Every: d, Source: "hhmm"}, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return ParsedSpec{}, configErr("schedule", raw, "use HH:MM or Go duration like '55m'/'2h30m'")
	}
	if d <= 0 {
		return ParsedSpec{}, configErr("schedule", raw, "interval must be > 0")
	}
	return ParsedSpec{Kind: SpecInterval, Every: d, Source: "duration"}, nil
}

func parseHHMMDuration(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if mm > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", v)
	}
	d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	if d <= 0 {
		return 0, fmt.Errorf("interval must be > 0")
	}
	return d, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("timestamp required")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q (use RFC3339 or '2006-01-02 15:04:05')", s)
}

// parseClock parses HH:MM[:SS] (withHour) or MM[:SS].
func parseClock(s string, withHour bool) (hour, minute, second int, err error) {
	parts := strings.Split(s, ":")
	want := 1
	if withHour {
		want = 2
	}
	if len(parts) != want && len(parts) != want+1 {
		if withHour {
			return 0, 0, 0, fmt.Errorf("invalid time %q, expected HH:MM[:SS]", s)
		}
		return 0, 0, 0, fmt.Errorf("invalid time %q, expected MM[:SS]", s)
	}
	vals := make([]int, 3)
	offset := 0
	if !withHour {
		offset = 1
	}
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid number %q in %q", p, s)
		}
		vals[i+offset] = n
	}
	if err := checkClock(vals[0], vals[1], vals[2]); err != nil {
		return 0, 0, 0, err
	}
	return vals[0], vals[1], vals[2], nil
}
