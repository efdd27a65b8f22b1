// Package action wraps units of work executed by the reactor.
//
// Sync runs inline and blocks the caller. Background spawns a Task and returns
// immediately; Running reports whether that task is still alive. Both recover
// panics, log failures and report a Result through the OnDone hook. Errors never
// propagate to the caller.
package action
