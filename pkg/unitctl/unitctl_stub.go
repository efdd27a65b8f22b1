//go:build !linux

package unitctl

import "context"

type Manager struct{}

func New() *Manager { return &Manager{} }

func (m *Manager) Do(ctx context.Context, op Op, unit string) error { return ErrUnsupported }

func (m *Manager) Status(ctx context.Context, unit string) (Status, error) {
	return Status{}, ErrUnsupported
}

func (m *Manager) Close() error { return nil }
