package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when triggering a driver that was not started
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrDriverDisabled is returned when triggering a disabled driver
	ErrDriverDisabled = errors.New("driver is disabled")

	// ErrDriverNotFound is returned for an unknown driver name
	ErrDriverNotFound = errors.New("driver not found")

	// ErrInvalidConfig is returned when a driver configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrRunPanicked is recorded when a run panics
	ErrRunPanicked = errors.New("reconciliation run panicked")
)
