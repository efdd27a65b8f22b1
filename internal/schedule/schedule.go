package schedule

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrExhausted signals that a schedule will never produce another fire time.
	// It is a normal termination signal, not a failure.
	ErrExhausted = errors.New("schedule exhausted")

	// ErrUnsatisfiable is returned when no instant can ever match a calendar pattern.
	ErrUnsatisfiable = errors.New("schedule pattern unsatisfiable")

	// ErrConfig is the sentinel wrapped by every *ConfigError.
	ErrConfig = errors.New("invalid schedule config")
)

// Schedule produces successive fire times.
//
// Next returns ErrExhausted once the schedule is done; further calls keep
// returning ErrExhausted.
type Schedule interface {
	Next() (time.Time, error)
}

// ConfigError describes an invalid recurrence parameter.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("schedule: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("schedule: %s=%v: %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

func configErr(field string, value any, reason string) error {
	return &ConfigError{Field: field, Value: value, Reason: reason}
}

var timeNow = time.Now
