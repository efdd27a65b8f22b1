// Package reactor drives scheduled Plans from a single loop goroutine.
//
// A Plan pairs a schedule.Schedule with an action.Action. On every loop
// iteration the reactor runs the plans that are due, in registration order,
// drops the ones whose schedule is exhausted, and sleeps until the earliest
// remaining next run. The loop ends when Stop is called, the context ends, or
// no plans are left.
//
// Plans may be dispatched from any goroutine, including from inside a running
// action; a dispatch wakes a sleeping loop so an earlier run is not missed.
package reactor
