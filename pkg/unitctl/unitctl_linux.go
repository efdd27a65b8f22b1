//go:build linux

package unitctl

import (
	"context"
	"fmt"
	"sync"

	"github.com/coreos/go-systemd/v22/dbus"
)

// Manager holds a lazily opened system bus connection.
type Manager struct {
	mu   sync.Mutex
	conn *dbus.Conn
}

func New() *Manager { return &Manager{} }

func (m *Manager) connLocked(ctx context.Context) (*dbus.Conn, error) {
	if m.conn != nil && m.conn.Connected() {
		return m.conn, nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd: %w", err)
	}
	m.conn = conn
	return conn, nil
}

// Do queues a job for unit and waits until systemd reports its result.
func (m *Manager) Do(ctx context.Context, op Op, unit string) error {
	unit = UnitName(unit)
	m.mu.Lock()
	conn, err := m.connLocked(ctx)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	done := make(chan string, 1)
	switch op {
	case OpStart:
		_, err = conn.StartUnitContext(ctx, unit, "replace", done)
	case OpStop:
		_, err = conn.StopUnitContext(ctx, unit, "replace", done)
	case OpRestart:
		_, err = conn.RestartUnitContext(ctx, unit, "replace", done)
	case OpTryRestart:
		_, err = conn.TryRestartUnitContext(ctx, unit, "replace", done)
	case OpReload:
		_, err = conn.ReloadUnitContext(ctx, unit, "replace", done)
	default:
		return fmt.Errorf("unknown unit op %q", op)
	}
	if err != nil {
		return fmt.Errorf("failed to %s %s: %w", op, unit, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-done:
		if res != "done" {
			return &JobError{Op: op, Unit: unit, Result: res}
		}
		return nil
	}
}

// Status returns the core state of unit.
func (m *Manager) Status(ctx context.Context, unit string) (Status, error) {
	unit = UnitName(unit)
	m.mu.Lock()
	conn, err := m.connLocked(ctx)
	m.mu.Unlock()
	if err != nil {
		return Status{}, err
	}

	units, err := conn.ListUnitsByNamesContext(ctx, []string{unit})
	if err != nil {
		return Status{}, fmt.Errorf("status %s: %w", unit, err)
	}
	st := Status{Name: unit, LoadState: "not-found"}
	for _, u := range units {
		if u.Name == unit {
			st.Active = u.ActiveState
			st.SubState = u.SubState
			st.LoadState = u.LoadState
		}
	}
	return st, nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	return nil
}
