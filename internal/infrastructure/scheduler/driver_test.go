package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pass/deposit-services/internal/application/reconcile"
	"github.com/pass/deposit-services/internal/infrastructure/config"
	"github.com/pass/deposit-services/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeRunner struct {
	name    string
	runs    atomic.Int32
	started chan struct{}
	fn      func(ctx context.Context) (*reconcile.RunSummary, error)
}

func newFakeRunner(name string, fn func(ctx context.Context) (*reconcile.RunSummary, error)) *fakeRunner {
	if fn == nil {
		fn = func(context.Context) (*reconcile.RunSummary, error) {
			s := reconcile.NewRunSummary(name, "test")
			s.Record(reconcile.EntityUpdated, nil)
			return s, nil
		}
	}
	return &fakeRunner{name: name, started: make(chan struct{}, 16), fn: fn}
}

func (r *fakeRunner) Name() string { return r.name }

func (r *fakeRunner) Run(ctx context.Context) (*reconcile.RunSummary, error) {
	r.runs.Add(1)
	r.started <- struct{}{}
	return r.fn(ctx)
}

func waitStarted(t *testing.T, r *fakeRunner) {
	t.Helper()
	select {
	case <-r.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("%s did not run", r.name)
	}
}

func enabled(delay, initial time.Duration) config.DriverConfig {
	return config.DriverConfig{Enabled: true, Delay: delay, InitialDelay: initial}
}

func newObservedDriver(t *testing.T, r reconcile.Runner, cfg config.DriverConfig) (*Driver, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	d, err := NewDriver(r, cfg, zap.New(core))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Stop(context.Background()) })
	return d, logs
}

func TestNewDriver_Validation(t *testing.T) {
	r := newFakeRunner("x", nil)

	_, err := NewDriver(nil, enabled(time.Minute, 0), nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewDriver(r, enabled(0, 0), nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewDriver(r, config.DriverConfig{Enabled: true, Delay: time.Minute, InitialDelay: -time.Second}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	d, err := NewDriver(r, config.DriverConfig{Enabled: false}, nil)
	require.NoError(t, err)
	assert.Equal(t, "x", d.Name())
}

func TestDriver_RunsAfterInitialDelayAndOnTrigger(t *testing.T) {
	r := newFakeRunner("deposit-status", nil)
	d, _ := newObservedDriver(t, r, enabled(time.Hour, 0))

	require.NoError(t, d.Start(context.Background()))
	waitStarted(t, r)

	assert.Eventually(t, func() bool { return d.Status().Runs == 1 && d.Status().NextRunAt != nil },
		2*time.Second, 5*time.Millisecond)

	require.NoError(t, d.TriggerNow())
	waitStarted(t, r)

	assert.Eventually(t, func() bool { return d.Status().Runs == 2 }, 2*time.Second, 5*time.Millisecond)

	status := d.Status()
	assert.True(t, status.Enabled)
	assert.True(t, status.Scheduled)
	assert.False(t, status.Running)
	assert.Equal(t, telemetry.RunResultSuccess, status.LastResult)
	assert.Equal(t, map[string]int{reconcile.EntityUpdated: 1}, status.LastOutcomes)
	assert.NotNil(t, status.LastStartedAt)
	assert.NotNil(t, status.LastFinishedAt)

	require.NoError(t, d.Stop(context.Background()))
	assert.False(t, d.Status().Scheduled)
	assert.Nil(t, d.Status().NextRunAt)
}

func TestDriver_FixedDelayBetweenRuns(t *testing.T) {
	r := newFakeRunner("submission-status", nil)
	d, _ := newObservedDriver(t, r, enabled(20*time.Millisecond, 0))

	require.NoError(t, d.Start(context.Background()))
	waitStarted(t, r)
	waitStarted(t, r)
	waitStarted(t, r)
	require.NoError(t, d.Stop(context.Background()))
	assert.GreaterOrEqual(t, int(r.runs.Load()), 3)
}

func TestDriver_Disabled(t *testing.T) {
	r := newFakeRunner("failed-deposit-retry", nil)
	d, logs := newObservedDriver(t, r, config.DriverConfig{Enabled: false, Delay: time.Minute})

	require.NoError(t, d.Start(context.Background()))
	assert.ErrorIs(t, d.TriggerNow(), ErrDriverDisabled)
	assert.False(t, d.Status().Scheduled)
	assert.Equal(t, 1, logs.FilterMessage("Reconciliation driver is disabled").Len())
	assert.Equal(t, int32(0), r.runs.Load())
}

func TestDriver_TriggerBeforeStart(t *testing.T) {
	d, _ := newObservedDriver(t, newFakeRunner("x", nil), enabled(time.Minute, time.Minute))
	assert.ErrorIs(t, d.TriggerNow(), ErrSchedulerNotRunning)
}

func TestDriver_FatalRunIsRecordedAndLogged(t *testing.T) {
	r := newFakeRunner("submission-status", func(context.Context) (*reconcile.RunSummary, error) {
		return reconcile.NewRunSummary("submission-status", "test"),
			fmt.Errorf("%w: query submissions: %w", reconcile.ErrFatalRun, errors.New("db down"))
	})
	d, logs := newObservedDriver(t, r, enabled(time.Hour, 0))

	require.NoError(t, d.Start(context.Background()))
	waitStarted(t, r)

	assert.Eventually(t, func() bool { return d.Status().Runs == 1 }, 2*time.Second, 5*time.Millisecond)
	status := d.Status()
	assert.Equal(t, telemetry.RunResultFatal, status.LastResult)
	assert.Contains(t, status.LastError, "db down")

	entries := logs.FilterMessage("Reconciliation run failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
}

func TestDriver_RunTimeout(t *testing.T) {
	r := newFakeRunner("deposit-status", func(ctx context.Context) (*reconcile.RunSummary, error) {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %w", reconcile.ErrRunInterrupted, ctx.Err())
	})
	cfg := enabled(time.Hour, 0)
	cfg.RunTimeout = 10 * time.Millisecond
	d, logs := newObservedDriver(t, r, cfg)

	require.NoError(t, d.Start(context.Background()))
	waitStarted(t, r)

	assert.Eventually(t, func() bool { return d.Status().Runs == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, d.Status().LastError, context.DeadlineExceeded.Error())
	assert.Equal(t, 1, logs.FilterMessage("Reconciliation run failed").Len())
}

func TestDriver_StopInterruptsRun(t *testing.T) {
	r := newFakeRunner("deposit-status", func(ctx context.Context) (*reconcile.RunSummary, error) {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %w", reconcile.ErrRunInterrupted, ctx.Err())
	})
	d, logs := newObservedDriver(t, r, enabled(time.Hour, 0))

	require.NoError(t, d.Start(context.Background()))
	waitStarted(t, r)

	require.NoError(t, d.Stop(context.Background()))
	assert.Equal(t, 1, logs.FilterMessage("Reconciliation run interrupted by shutdown").Len())
	assert.Equal(t, 0, logs.FilterMessage("Reconciliation run failed").Len())
}

func TestDriver_PanicDoesNotKillLoop(t *testing.T) {
	var calls atomic.Int32
	r := newFakeRunner("failed-deposit-retry", func(context.Context) (*reconcile.RunSummary, error) {
		if calls.Add(1) == 1 {
			panic("nil transferer")
		}
		return nil, nil
	})
	d, _ := newObservedDriver(t, r, enabled(time.Hour, 0))

	require.NoError(t, d.Start(context.Background()))
	waitStarted(t, r)
	assert.Eventually(t, func() bool { return d.Status().Runs == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, d.Status().LastError, "panicked")

	require.NoError(t, d.TriggerNow())
	waitStarted(t, r)
	assert.Eventually(t, func() bool { return d.Status().Runs == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, d.Status().LastError)
	assert.Equal(t, telemetry.RunResultSuccess, d.Status().LastResult)
}

func TestDriver_StopTimesOut(t *testing.T) {
	release := make(chan struct{})
	r := newFakeRunner("deposit-status", func(context.Context) (*reconcile.RunSummary, error) {
		<-release
		return nil, nil
	})
	d, _ := newObservedDriver(t, r, enabled(time.Hour, 0))
	require.NoError(t, d.Start(context.Background()))
	waitStarted(t, r)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Stop(ctx), context.DeadlineExceeded)
	close(release)
}

func TestDriver_ConcurrentStartStop(t *testing.T) {
	r := newFakeRunner("submission-status", nil)
	d, _ := newObservedDriver(t, r, enabled(time.Hour, time.Hour))

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				assert.NoError(t, d.Start(context.Background()))
			} else {
				assert.NoError(t, d.Stop(context.Background()))
			}
		}()
	}
	wg.Wait()

	require.NoError(t, d.Stop(context.Background()))
	assert.False(t, d.Status().Scheduled)
	assert.ErrorIs(t, d.TriggerNow(), ErrSchedulerNotRunning)

	require.NoError(t, d.Start(context.Background()))
	require.NoError(t, d.TriggerNow())
	waitStarted(t, r)
	require.NoError(t, d.Stop(context.Background()))
	assert.Equal(t, int32(1), r.runs.Load())
}
