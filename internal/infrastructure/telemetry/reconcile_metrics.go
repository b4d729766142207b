package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Run results reported by ReconcileMetrics.RecordRun
const (
	RunResultSuccess = "success"
	RunResultPartial = "partial"
	RunResultFatal   = "fatal"
)

// ReconcileMetrics tracks reconciliation driver runs and per-entity results.
type ReconcileMetrics struct {
	runs       *Counter
	runSeconds *Histogram
	running    *UpDownCounter
	processed  *Counter
	resolved   *Counter
}

// NewReconcileMetrics registers the reconciliation instruments on meter.
func NewReconcileMetrics(meter metric.Meter) (*ReconcileMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	var (
		m   ReconcileMetrics
		err error
	)

	if m.runs, err = NewCounter(meter,
		"reconcile_runs_total",
		"Reconciliation runs, by driver and result",
		"{run}",
	); err != nil {
		return nil, err
	}

	if m.runSeconds, err = NewHistogram(meter, HistogramOpts{
		Name:        "reconcile_run_duration_seconds",
		Description: "Duration of one reconciliation run",
		Unit:        "s",
		Boundaries:  RunDurationBuckets,
	}); err != nil {
		return nil, err
	}

	if m.running, err = NewUpDownCounter(meter,
		"reconcile_runs_in_progress",
		"Reconciliation runs currently executing",
		"{run}",
	); err != nil {
		return nil, err
	}

	if m.processed, err = NewCounter(meter,
		"reconcile_entities_total",
		"Entities visited by reconciliation, by driver and outcome",
		"{entity}",
	); err != nil {
		return nil, err
	}

	if m.resolved, err = NewCounter(meter,
		"deposit_status_resolutions_total",
		"Remote status resolutions, by repository and resulting status",
		"{resolution}",
	); err != nil {
		return nil, err
	}

	return &m, nil
}

// RunStarted marks a run in progress and returns a func that records its end.
// Safe on a nil receiver.
func (m *ReconcileMetrics) RunStarted(ctx context.Context, driver string) func(result string) {
	if m == nil {
		return func(string) {}
	}
	start := time.Now()
	m.running.Add(ctx, 1, AttrDriver.String(driver))
	return func(result string) {
		m.running.Add(ctx, -1, AttrDriver.String(driver))
		m.runs.Inc(ctx, AttrDriver.String(driver), AttrRunResult.String(result))
		m.runSeconds.RecordDuration(ctx, time.Since(start), AttrDriver.String(driver), AttrRunResult.String(result))
	}
}

// RecordEntity counts one entity handled by a driver.
func (m *ReconcileMetrics) RecordEntity(ctx context.Context, driver, outcome string) {
	if m == nil {
		return
	}
	m.processed.Inc(ctx, AttrDriver.String(driver), AttrOutcome.String(outcome))
}

// RecordResolution counts one status resolution. An empty status means indeterminate.
func (m *ReconcileMetrics) RecordResolution(ctx context.Context, repositoryKey, status string) {
	if m == nil {
		return
	}
	if status == "" {
		status = "indeterminate"
	}
	m.resolved.Inc(ctx, AttrRepositoryKey.String(repositoryKey), AttrDepositStatus.String(status))
}
