// Package unitctl drives systemd units over D-Bus for scheduled unit actions.
package unitctl

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnsupported = errors.New("unitctl: unsupported OS (linux only)")

// Op is a unit job type.
type Op string

const (
	OpStart      Op = "start"
	OpStop       Op = "stop"
	OpRestart    Op = "restart"
	OpTryRestart Op = "try-restart"
	OpReload     Op = "reload"
)

// ParseOp accepts the systemctl verb names, case-insensitively.
func ParseOp(raw string) (Op, error) {
	switch op := Op(strings.ToLower(strings.TrimSpace(raw))); op {
	case OpStart, OpStop, OpRestart, OpTryRestart, OpReload:
		return op, nil
	case "":
		return "", errors.New("unit op required")
	default:
		return "", fmt.Errorf("unknown unit op %q (want start, stop, restart, try-restart or reload)", raw)
	}
}

var unitSuffixes = []string{
	".service", ".socket", ".timer", ".target", ".mount", ".path", ".slice", ".scope",
}

// UnitName returns name with ".service" appended when it has no unit suffix.
func UnitName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	for _, s := range unitSuffixes {
		if strings.HasSuffix(name, s) {
			return name
		}
	}
	return name + ".service"
}

// Status is the core state of a unit.
type Status struct {
	Name      string
	Active    string // active, inactive, failed, ...
	SubState  string // running, dead, ...
	LoadState string // loaded, not-found, ...
}

// Found reports whether systemd knows the unit.
func (s Status) Found() bool { return s.LoadState != "" && s.LoadState != "not-found" }

// JobError reports a job that systemd finished with a result other than "done".
type JobError struct {
	Op     Op
	Unit   string
	Result string // canceled, timeout, failed, dependency, skipped
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s %s: job %s", e.Op, e.Unit, e.Result)
}
