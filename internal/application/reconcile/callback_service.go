package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pass/deposit-services/internal/application/critical"
	"github.com/pass/deposit-services/internal/domain/deposit"
	"github.com/pass/deposit-services/internal/domain/shared"
	"github.com/pass/deposit-services/internal/infrastructure/logger"
	"github.com/pass/deposit-services/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// StatusCallback is a status pushed by a repository for one deposit.
// Exactly one of Term and Status is expected; Term is in the repository's
// own vocabulary, Status is already a local deposit status.
type StatusCallback struct {
	DepositID uuid.UUID
	EventID   string
	Term      string
	Status    deposit.DepositStatus
}

// CallbackResult describes what a callback did
type CallbackResult struct {
	Outcome   string
	Status    deposit.DepositStatus
	Duplicate bool
}

// CallbackService applies pushed statuses with the same guard the deposit
// status driver uses: only a deposit that is still intermediate changes.
type CallbackService struct {
	deps        Deps
	mapper      deposit.TermMapper
	idempotency shared.IdempotencyStore
	ttl         time.Duration
}

// NewCallbackService creates the callback path. idempotency may be nil, in
// which case event ids are not deduplicated.
func NewCallbackService(deps Deps, mapper deposit.TermMapper, idempotency shared.IdempotencyStore, ttl time.Duration) *CallbackService {
	if ttl <= 0 {
		ttl = shared.DefaultIdempotencyConfig().TTL
	}
	return &CallbackService{deps: deps.withDefaults(), mapper: mapper, idempotency: idempotency, ttl: ttl}
}

// Apply maps and applies one callback. A redelivered event id is reported as
// a duplicate without touching the deposit. When the callback could not be
// applied the event id is released so the repository may redeliver it.
func (s *CallbackService) Apply(ctx context.Context, cb StatusCallback) (result CallbackResult, err error) {
	// exactly one of Term and Status
	if cb.DepositID == uuid.Nil || (cb.Term == "") == (cb.Status == "") {
		return CallbackResult{}, ErrInvalidCallback
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "reconcile", "callback",
		telemetry.WithAttribute(telemetry.SpanAttrDepositID, cb.DepositID.String()),
	)
	defer func() {
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.SetAttribute(span, telemetry.SpanAttrOutcome, result.Outcome)
			telemetry.SetOK(span)
		}
		span.End()
	}()

	log := logger.FromContextOr(ctx, s.deps.Logger).With(
		zap.String("deposit_id", cb.DepositID.String()),
		zap.String("event_id", cb.EventID),
	)

	key := idempotencyKey(cb)
	if key != "" && s.idempotency != nil {
		isNew, markErr := s.idempotency.MarkProcessed(ctx, key, s.ttl)
		if markErr != nil {
			return CallbackResult{}, fmt.Errorf("record callback event: %w", markErr)
		}
		if !isNew {
			log.Info("Duplicate status callback ignored")
			return CallbackResult{Outcome: EntitySkipped, Duplicate: true}, nil
		}
		defer func() {
			if err == nil {
				return
			}
			if ferr := s.idempotency.Forget(context.WithoutCancel(ctx), key); ferr != nil {
				log.Warn("Failed to release callback event", zap.Error(ferr))
			}
		}()
	}

	status, err := s.statusOf(ctx, cb)
	if err != nil {
		return CallbackResult{}, err
	}

	res := critical.Perform(ctx, s.deps.Engine, s.deps.Deposits, critical.Interaction[deposit.Deposit, bool]{
		ID:           cb.DepositID,
		Precondition: deposit.DepositIntermediate,
		Body: func(_ context.Context, d *deposit.Deposit) (bool, error) {
			return d.ApplyStatus(status)
		},
		Postcondition: func(d *deposit.Deposit, _ bool) bool {
			return d.Status == status
		},
		UpdatesEntity: true,
		PersistIf: func(_ *deposit.Deposit, changed bool) bool {
			return changed
		},
	})

	outcome, err := classify(res, EntityUnchanged)
	s.deps.Metrics.RecordEntity(ctx, "callback", outcome)
	if err != nil {
		if res.Outcome == critical.OutcomeFetchFailed && errors.Is(err, shared.ErrNotFound) {
			return CallbackResult{}, shared.ErrNotFound
		}
		return CallbackResult{Outcome: outcome}, err
	}

	result = CallbackResult{Outcome: outcome, Status: status}
	if res.Entity != nil {
		result.Status = res.Entity.Status
	}
	log.Info("Status callback applied",
		zap.String("outcome", outcome),
		zap.String("status", string(result.Status)),
	)
	return result, nil
}

func (s *CallbackService) statusOf(ctx context.Context, cb StatusCallback) (deposit.DepositStatus, error) {
	if cb.Status != "" {
		status, err := deposit.ParseDepositStatus(string(cb.Status))
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidCallback, err)
		}
		return status, nil
	}

	d, err := s.deps.Deposits.FindByID(ctx, cb.DepositID)
	if err != nil {
		return "", err
	}
	repo, err := s.deps.Repositories.FindByID(ctx, d.RepositoryID)
	if err != nil {
		return "", fmt.Errorf("load repository %s: %w", d.RepositoryID, err)
	}
	status, ok := s.mapper.MapTerm(repo, cb.Term)
	if !ok {
		return "", fmt.Errorf("%w: %q for %s", ErrUnmappedTerm, cb.Term, repo.Key)
	}
	return status, nil
}

func idempotencyKey(cb StatusCallback) string {
	if cb.EventID == "" {
		return ""
	}
	return cb.DepositID.String() + ":" + cb.EventID
}
