package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a metrics constructor receives no meter
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// InteractionMetrics records the outcome and latency of critical interactions.
type InteractionMetrics struct {
	total    *Counter
	duration *Histogram
}

// NewInteractionMetrics registers the critical interaction instruments on meter.
func NewInteractionMetrics(meter metric.Meter) (*InteractionMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	total, err := NewCounter(meter,
		"critical_interactions_total",
		"Critical interactions performed, by entity type and outcome",
		"{interaction}",
	)
	if err != nil {
		return nil, err
	}

	duration, err := NewHistogram(meter, HistogramOpts{
		Name:        "critical_interaction_duration_seconds",
		Description: "Duration of a critical interaction from fetch to postcondition",
		Unit:        "s",
		Boundaries:  InteractionDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	return &InteractionMetrics{total: total, duration: duration}, nil
}

// RecordInteraction records one finished interaction. Safe on a nil receiver.
func (m *InteractionMetrics) RecordInteraction(ctx context.Context, entityType, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.total.Inc(ctx, AttrEntityType.String(entityType), AttrOutcome.String(outcome))
	m.duration.RecordDuration(ctx, elapsed, AttrEntityType.String(entityType), AttrOutcome.String(outcome))
}
