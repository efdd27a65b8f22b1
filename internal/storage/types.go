package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// DefaultRetain is the number of runs kept when Config.Retain is 0.
const DefaultRetain = 1000

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl)
//   - "sqlite": SQLite database file (build tag sqlite)
//   - "postgres": PostgreSQL via DSN (build tag postgres)
//   - "badger": embedded BadgerDB directory (build tag badger)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	DSN         string        // postgres only
	Retain      int           // runs kept; 0 means DefaultRetain
	BusyTimeout time.Duration // sqlite only; 0 means default
}

func (c Config) retain() int {
	if c.Retain <= 0 {
		return DefaultRetain
	}
	return c.Retain
}

// RunRecord is one finished action invocation.
// Keep it compact and schema-stable.
type RunRecord struct {
	At       time.Time `json:"at"`
	Action   string    `json:"action"`
	RunID    string    `json:"run_id"`
	TookMS   int64     `json:"took_ms"`
	OK       bool      `json:"ok"`
	Error    string    `json:"error,omitempty"`
	Panicked bool      `json:"panicked,omitempty"`
}

// Store is the run history API.
type Store interface {
	AppendRun(ctx context.Context, r RunRecord) error
	// Recent returns up to limit of the latest runs, oldest first.
	Recent(ctx context.Context, limit int) ([]RunRecord, error)
	Close() error
}
