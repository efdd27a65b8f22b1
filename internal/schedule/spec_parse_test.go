package schedule

import (
	"errors"
	"testing"
	"time"
)

func TestParseSpecVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     SpecKind
		source   string
		duration time.Duration
	}{
		{name: "cron", raw: "*/5 * * * *", kind: SpecCron, source: "cron"},
		{name: "prefixed cron", raw: "cron:0 0 * * *", kind: SpecCron, source: "cron"},
		{name: "descriptor", raw: "@hourly", kind: SpecCron, source: "cron"},
		{name: "duration", raw: "10m", kind: SpecInterval, source: "duration", duration: 10 * time.Minute},
		{name: "prefixed interval", raw: "interval:45s", kind: SpecInterval, source: "duration", duration: 45 * time.Second},
		{name: "every hhmm", raw: "every:01:30", kind: SpecInterval, source: "hhmm", duration: 90 * time.Minute},
		{name: "hhmm", raw: "01:30", kind: SpecInterval, source: "hhmm", duration: 90 * time.Minute},
		{name: "once", raw: "once:2024-05-01T10:00:00Z", kind: SpecOnce, source: "timestamp"},
		{name: "daily", raw: "daily:07:30", kind: SpecDaily, source: "clock"},
		{name: "hourly", raw: "hourly:15:30", kind: SpecHourly, source: "clock"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSpec(tt.raw, time.UTC)
			if err != nil {
				t.Fatalf("ParseSpec(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if got.Source != tt.source {
				t.Fatalf("Source = %s, want %s", got.Source, tt.source)
			}
			if tt.kind == SpecInterval && got.Every != tt.duration {
				t.Fatalf("Every = %v, want %v", got.Every, tt.duration)
			}
		})
	}
}

func TestParseSpecClockFields(t *testing.T) {
	t.Parallel()
	ps, err := ParseSpec("daily:23:15:05", nil)
	if err != nil {
		t.Fatalf("ParseSpec error: %v", err)
	}
	if ps.Hour != 23 || ps.Minute != 15 || ps.Second != 5 {
		t.Fatalf("unexpected clock: %d:%d:%d", ps.Hour, ps.Minute, ps.Second)
	}
	ps, err = ParseSpec("hourly:45", nil)
	if err != nil {
		t.Fatalf("ParseSpec error: %v", err)
	}
	if ps.Minute != 45 || ps.Second != 0 {
		t.Fatalf("unexpected clock: %d:%d", ps.Minute, ps.Second)
	}
}

func TestParseSpecInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "daily:24:00", "hourly:1:2:3", "once:yesterday", "every:-5m", "cron:"} {
		if _, err := ParseSpec(raw, time.UTC); !errors.Is(err, ErrConfig) {
			t.Fatalf("ParseSpec(%q) err = %v, want ErrConfig", raw, err)
		}
	}
}

func TestParseBuildsSchedule(t *testing.T) {
	t.Parallel()
	now := mustTime(t, "2024-01-01T10:00:00Z")
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "every:5m", want: "2024-01-01T10:00:00Z"},
		{raw: "0 30 * * * *", want: "2024-01-01T10:30:00Z"},
		{raw: "once:2024-01-02 09:00:00", want: "2024-01-02T09:00:00Z"},
		{raw: "daily:08:00", want: "2024-01-02T08:00:00Z"},
		{raw: "hourly:05", want: "2024-01-01T10:05:00Z"},
		{raw: "hourly:00", want: "2024-01-01T10:00:00Z"},
	}
	for _, tt := range tests {
		s, err := Parse(tt.raw, now)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", tt.raw, err)
		}
		got, err := s.Next()
		if err != nil {
			t.Fatalf("Parse(%q).Next error: %v", tt.raw, err)
		}
		if want := mustTime(t, tt.want); !got.Equal(want) {
			t.Fatalf("Parse(%q).Next = %s, want %s", tt.raw, got, tt.want)
		}
	}
}
