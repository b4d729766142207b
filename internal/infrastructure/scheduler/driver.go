// Package scheduler runs reconciliation drivers at a fixed delay. Each
// driver owns its goroutine and cadence; drivers share no state.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pass/deposit-services/internal/application/reconcile"
	"github.com/pass/deposit-services/internal/infrastructure/config"
	"github.com/pass/deposit-services/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// DriverStatus is a snapshot of a driver for the HTTP surface
type DriverStatus struct {
	Name           string         `json:"name"`
	Enabled        bool           `json:"enabled"`
	Scheduled      bool           `json:"scheduled"`
	Running        bool           `json:"running"`
	Delay          time.Duration  `json:"delay"`
	InitialDelay   time.Duration  `json:"initial_delay"`
	Runs           int            `json:"runs"`
	NextRunAt      *time.Time     `json:"next_run_at,omitempty"`
	LastStartedAt  *time.Time     `json:"last_started_at,omitempty"`
	LastFinishedAt *time.Time     `json:"last_finished_at,omitempty"`
	LastResult     string         `json:"last_result,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
	LastCandidates int            `json:"last_candidates"`
	LastOutcomes   map[string]int `json:"last_outcomes,omitempty"`
}

// Driver runs one reconcile.Runner forever: InitialDelay after Start, then
// Delay after each run finishes. Runs never overlap.
type Driver struct {
	runner reconcile.Runner
	config config.DriverConfig
	logger *zap.Logger

	trigger chan struct{}
	wg      sync.WaitGroup

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	status    DriverStatus
}

// NewDriver creates a driver for runner
func NewDriver(runner reconcile.Runner, cfg config.DriverConfig, logger *zap.Logger) (*Driver, error) {
	if runner == nil {
		return nil, fmt.Errorf("%w: runner is required", ErrInvalidConfig)
	}
	if cfg.Enabled && cfg.Delay <= 0 {
		return nil, fmt.Errorf("%w: %s delay must be positive", ErrInvalidConfig, runner.Name())
	}
	if cfg.InitialDelay < 0 || cfg.RunTimeout < 0 {
		return nil, fmt.Errorf("%w: %s delays must not be negative", ErrInvalidConfig, runner.Name())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		runner:  runner,
		config:  cfg,
		logger:  logger.With(zap.String("driver", runner.Name())),
		trigger: make(chan struct{}, 1),
		status: DriverStatus{
			Name:         runner.Name(),
			Enabled:      cfg.Enabled,
			Delay:        cfg.Delay,
			InitialDelay: cfg.InitialDelay,
		},
	}, nil
}

// Name returns the driver name
func (d *Driver) Name() string {
	return d.runner.Name()
}

// Start launches the driver loop. A disabled driver logs and does nothing.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.isRunning {
		d.mu.Unlock()
		return nil
	}
	if !d.config.Enabled {
		d.mu.Unlock()
		d.logger.Info("Reconciliation driver is disabled")
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.isRunning = true
	d.status.Scheduled = true
	d.wg.Add(1)
	d.mu.Unlock()

	go d.loop(ctx)

	d.logger.Info("Reconciliation driver started",
		zap.Duration("delay", d.config.Delay),
		zap.Duration("initial_delay", d.config.InitialDelay),
		zap.Duration("run_timeout", d.config.RunTimeout),
	)
	return nil
}

// Stop cancels the loop, which interrupts a run in progress, and waits for it
func (d *Driver) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.isRunning {
		d.mu.Unlock()
		return nil
	}
	d.isRunning = false
	d.status.Scheduled = false
	d.status.NextRunAt = nil
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Reconciliation driver stopped gracefully")
		return nil
	case <-ctx.Done():
		d.logger.Warn("Reconciliation driver stop timed out")
		return ctx.Err()
	}
}

// TriggerNow asks the loop to run without waiting for the delay. Triggers
// arriving while a run is queued are coalesced.
func (d *Driver) TriggerNow() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.config.Enabled {
		return ErrDriverDisabled
	}
	if !d.isRunning {
		return ErrSchedulerNotRunning
	}
	select {
	case d.trigger <- struct{}{}:
		d.logger.Info("Reconciliation run triggered manually")
	default:
	}
	return nil
}

// Status returns a snapshot of the driver
func (d *Driver) Status() DriverStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.status
	if d.status.LastOutcomes != nil {
		s.LastOutcomes = make(map[string]int, len(d.status.LastOutcomes))
		for k, v := range d.status.LastOutcomes {
			s.LastOutcomes[k] = v
		}
	}
	return s
}

func (d *Driver) loop(ctx context.Context) {
	defer d.wg.Done()

	wait := d.config.InitialDelay
	for {
		next := time.Now().Add(wait)
		d.mu.Lock()
		d.status.NextRunAt = &next
		d.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			d.logger.Debug("Reconciliation driver loop stopping")
			return
		case <-timer.C:
		case <-d.trigger:
			timer.Stop()
		}

		d.execute(ctx)
		wait = d.config.Delay
	}
}

// execute performs one run, recording its result
func (d *Driver) execute(ctx context.Context) {
	runCtx := ctx
	if d.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.config.RunTimeout)
		defer cancel()
	}

	started := time.Now()
	d.mu.Lock()
	d.status.Running = true
	d.status.NextRunAt = nil
	d.status.LastStartedAt = &started
	d.mu.Unlock()

	summary, err := d.safeRun(runCtx)

	finished := time.Now()
	d.mu.Lock()
	d.status.Running = false
	d.status.Runs++
	d.status.LastFinishedAt = &finished
	d.status.LastError = ""
	d.status.LastCandidates = 0
	d.status.LastOutcomes = nil
	switch {
	case summary != nil:
		d.status.LastResult = summary.Result(err)
		d.status.LastCandidates = summary.Candidates
		d.status.LastOutcomes = summary.Counts()
	case err != nil:
		d.status.LastResult = telemetry.RunResultFatal
	default:
		d.status.LastResult = telemetry.RunResultSuccess
	}
	if err != nil {
		d.status.LastError = err.Error()
	}
	d.mu.Unlock()

	switch {
	case err == nil:
	case errors.Is(err, reconcile.ErrRunInterrupted) && ctx.Err() != nil:
		d.logger.Warn("Reconciliation run interrupted by shutdown", zap.Error(err))
	default:
		d.logger.Error("Reconciliation run failed",
			zap.Duration("duration", finished.Sub(started)),
			zap.Error(err),
		)
	}
}

func (d *Driver) safeRun(ctx context.Context) (summary *reconcile.RunSummary, err error) {
	defer func() {
		if r := recover(); r != nil {
			summary = nil
			err = fmt.Errorf("%w: %v", ErrRunPanicked, r)
		}
	}()
	return d.runner.Run(ctx)
}
