package scheduler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Manager starts, stops and looks up the reconciliation drivers
type Manager struct {
	drivers []*Driver
	byName  map[string]*Driver
	logger  *zap.Logger
}

// NewManager creates a manager. Driver names must be unique.
func NewManager(logger *zap.Logger, drivers ...*Driver) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{byName: make(map[string]*Driver, len(drivers)), logger: logger}
	for _, d := range drivers {
		if _, dup := m.byName[d.Name()]; dup {
			return nil, fmt.Errorf("%w: duplicate driver %q", ErrInvalidConfig, d.Name())
		}
		m.byName[d.Name()] = d
		m.drivers = append(m.drivers, d)
	}
	return m, nil
}

// Start starts every driver
func (m *Manager) Start(ctx context.Context) error {
	for _, d := range m.drivers {
		if err := d.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", d.Name(), err)
		}
	}
	m.logger.Info("Reconciliation scheduler started", zap.Int("drivers", len(m.drivers)))
	return nil
}

// Stop stops every driver and reports all failures
func (m *Manager) Stop(ctx context.Context) error {
	var errs []error
	for _, d := range m.drivers {
		if err := d.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", d.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Trigger asks the named driver to run now
func (m *Manager) Trigger(name string) error {
	d, ok := m.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDriverNotFound, name)
	}
	return d.TriggerNow()
}

// Status returns the named driver's status
func (m *Manager) Status(name string) (DriverStatus, error) {
	d, ok := m.byName[name]
	if !ok {
		return DriverStatus{}, fmt.Errorf("%w: %s", ErrDriverNotFound, name)
	}
	return d.Status(), nil
}

// Statuses returns every driver's status in registration order
func (m *Manager) Statuses() []DriverStatus {
	out := make([]DriverStatus, 0, len(m.drivers))
	for _, d := range m.drivers {
		out = append(out, d.Status())
	}
	return out
}
