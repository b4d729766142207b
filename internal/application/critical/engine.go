// Package critical performs guarded single-entity state transitions against
// an optimistically versioned store: fetch fresh, check a precondition, run a
// body, persist with a version check, then verify a postcondition.
//
// There is no lock. Two interactions on the same entity are ordered only by
// the store's version check; the loser reports OutcomePersistFailed and is
// not retried, because its precondition may no longer hold.
package critical

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/pass/deposit-services/internal/domain/shared"
	"github.com/pass/deposit-services/internal/infrastructure/logger"
	"github.com/pass/deposit-services/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Store is the entity access the engine needs. Update must reject the write
// with an error matching shared.ErrConcurrencyConflict when the stored version
// differs from the entity's.
type Store[T any] interface {
	EntityType() string
	FindByID(ctx context.Context, id uuid.UUID) (*T, error)
	Update(ctx context.Context, entity *T) error
}

// Interaction describes one guarded transition. A nil Precondition or
// Postcondition always holds. When UpdatesEntity is set and PersistIf is
// non-nil, the entity is written only if PersistIf returns true.
type Interaction[T, R any] struct {
	ID            uuid.UUID
	Precondition  func(entity *T) bool
	Body          func(ctx context.Context, entity *T) (R, error)
	Postcondition func(entity *T, value R) bool
	UpdatesEntity bool
	PersistIf     func(entity *T, value R) bool
}

// Config holds the engine's dependencies
type Config struct {
	Logger  *zap.Logger
	Metrics *telemetry.InteractionMetrics
}

// Engine runs critical interactions. It holds no per-entity state and is safe
// for concurrent use.
type Engine struct {
	logger  *zap.Logger
	metrics *telemetry.InteractionMetrics
}

// NewEngine creates an engine
func NewEngine(cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		logger:  log,
		metrics: cfg.Metrics,
	}
}

// Perform runs in against the entity with in.ID. It never panics on a
// panicking body and never retries; see Result for how it ended.
func Perform[T, R any](ctx context.Context, e *Engine, store Store[T], in Interaction[T, R]) (res Result[T, R]) {
	entityType := store.EntityType()
	start := time.Now()

	ctx, span := telemetry.StartServiceSpan(ctx, "critical", entityType,
		telemetry.WithAttribute(telemetry.SpanAttrEntityType, entityType),
		telemetry.WithAttribute(telemetry.SpanAttrEntityID, in.ID.String()),
	)
	log := logger.FromContextOr(ctx, e.logger).With(
		zap.String("entity_type", entityType),
		zap.String("entity_id", in.ID.String()),
	)

	defer func() {
		telemetry.SetAttribute(span, telemetry.SpanAttrOutcome, string(res.Outcome))
		if !res.Success() && res.Outcome != OutcomePreconditionFailed {
			telemetry.RecordError(span, res.Error())
		}
		span.End()
		e.metrics.RecordInteraction(ctx, entityType, string(res.Outcome), time.Since(start))
		e.logOutcome(log, res.Outcome, res.Err)
	}()

	if in.Body == nil {
		res.Outcome = OutcomeBodyFailed
		res.Err = ErrNilBody
		return res
	}

	entity, err := store.FindByID(ctx, in.ID)
	if err == nil && entity == nil {
		err = ErrNilEntity
	}
	if err != nil {
		res.Outcome = OutcomeFetchFailed
		res.Err = fmt.Errorf("fetch %s %s: %w", entityType, in.ID, err)
		return res
	}
	res.Entity = entity

	if in.Precondition != nil && !in.Precondition(entity) {
		res.Outcome = OutcomePreconditionFailed
		return res
	}

	value, err := runBody(ctx, in.Body, entity)
	res.Value = value
	if err != nil {
		res.Outcome = OutcomeBodyFailed
		res.Err = err
		return res
	}

	if in.UpdatesEntity && (in.PersistIf == nil || in.PersistIf(entity, value)) {
		if err := store.Update(ctx, entity); err != nil {
			res.Outcome = OutcomePersistFailed
			res.Err = fmt.Errorf("persist %s %s: %w", entityType, in.ID, err)
			return res
		}
		res.Persisted = true
	}

	if in.Postcondition != nil && !in.Postcondition(entity, value) {
		res.Outcome = OutcomePostconditionFailed
		return res
	}

	res.Outcome = OutcomeSucceeded
	return res
}

func runBody[T, R any](ctx context.Context, body func(context.Context, *T) (R, error), entity *T) (value R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return body(ctx, entity)
}

func (e *Engine) logOutcome(log *zap.Logger, outcome Outcome, err error) {
	fields := []zap.Field{zap.String("outcome", string(outcome))}
	switch outcome {
	case OutcomeSucceeded:
		log.Debug("Critical interaction succeeded", fields...)
	case OutcomePreconditionFailed:
		log.Debug("Critical interaction skipped, precondition not met", fields...)
	case OutcomePersistFailed:
		if shared.IsConflict(err) {
			log.Warn("Critical interaction lost a concurrent write", append(fields, zap.Error(err))...)
			return
		}
		log.Warn("Critical interaction failed to persist", append(fields, zap.Error(err))...)
	default:
		log.Warn("Critical interaction failed", append(fields, zap.Error(err))...)
	}
}
