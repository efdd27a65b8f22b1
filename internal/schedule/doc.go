// Package schedule provides recurrence rules that lazily produce fire times.
//
// A Schedule is pulled, never pushed: the reactor asks for the next fire time
// after each run and retires the plan once the schedule reports ErrExhausted.
//
// Variants:
//   - OneTime: a single fixed instant
//   - Interval: anchored fixed period (no drift), optional until bound
//   - Calendar: day/weekday/hour/minute/second match sets with cascading resolution
//   - Cron: robfig/cron expression, optional start/until bounds
package schedule
