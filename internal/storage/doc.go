// Package storage persists run history.
//
// Drivers:
//   - "file": JSON Lines log, compacted to the retained tail
//   - "sqlite": SQLite database (build tag "sqlite")
//
// Recorder feeds a Store from action.* events on the bus.
package storage
