package reconcile

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pass/deposit-services/internal/application/critical"
	"github.com/pass/deposit-services/internal/domain/deposit"
	"github.com/pass/deposit-services/internal/domain/shared"
	"github.com/pass/deposit-services/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// FailedDepositRetryService re-attempts the transfer of every FAILED deposit.
// A successful transfer moves the deposit back to SUBMITTED with the new
// status reference; a failing transfer leaves the deposit FAILED with the
// cause and attempt count recorded, and it is retried on the next pass.
type FailedDepositRetryService struct {
	deps       Deps
	opts       Options
	transferer deposit.Transferer
}

// NewFailedDepositRetryService creates the failed-deposit retry driver
func NewFailedDepositRetryService(deps Deps, transferer deposit.Transferer, opts Options) *FailedDepositRetryService {
	return &FailedDepositRetryService{deps: deps.withDefaults(), opts: opts.withDefaults(), transferer: transferer}
}

// Name returns the driver name
func (s *FailedDepositRetryService) Name() string { return DriverFailedRetry }

// Run performs one pass
func (s *FailedDepositRetryService) Run(ctx context.Context) (_ *RunSummary, err error) {
	ctx, scope := s.deps.startRun(ctx, DriverFailedRetry)
	defer func() { scope.end(err) }()

	filter := deposit.FailedDeposits()
	candidates, err := queryAll(ctx, s.opts.BatchSize, func(ctx context.Context, page shared.Page) ([]*deposit.Deposit, error) {
		filter.Page = page
		return s.deps.Deposits.Query(ctx, filter)
	})
	if err != nil {
		return scope.summary, fmt.Errorf("%w: query failed deposits: %w", ErrFatalRun, err)
	}
	scope.summary.Candidates = len(candidates)

	repos := newRepositoryCache(s.deps.Repositories)
	err = forEach(ctx, s.opts.Concurrency, candidates, func(ctx context.Context, candidate *deposit.Deposit) {
		outcome, entityErr := s.retry(ctx, repos, candidate)
		scope.entity(ctx, outcome, entityErr)
		if entityErr != nil {
			scope.log.Warn("Deposit retry failed",
				zap.String("deposit_id", candidate.ID.String()),
				zap.String("outcome", outcome),
				zap.Error(entityErr),
			)
		}
	})
	return scope.summary, err
}

func (s *FailedDepositRetryService) retry(ctx context.Context, repos *repositoryCache, candidate *deposit.Deposit) (string, error) {
	sub, err := s.deps.Submissions.FindByID(ctx, candidate.SubmissionID)
	if err != nil {
		return EntityFailed, fmt.Errorf("deposit %s: load submission %s: %w", candidate.ID, candidate.SubmissionID, err)
	}
	repo, err := repos.get(ctx, candidate.RepositoryID)
	if err != nil {
		return EntityFailed, fmt.Errorf("deposit %s: %w", candidate.ID, err)
	}

	res := critical.Perform(ctx, s.deps.Engine, s.deps.Deposits, critical.Interaction[deposit.Deposit, string]{
		ID: candidate.ID,
		Precondition: func(d *deposit.Deposit) bool {
			return d.Status == deposit.DepositStatusFailed
		},
		Body: func(ctx context.Context, d *deposit.Deposit) (string, error) {
			ref, err := s.transferer.Transfer(ctx, sub, repo)
			if err != nil {
				return "", fmt.Errorf("transfer deposit %s to %s: %w", d.ID, repo.Key, err)
			}
			if err := d.MarkSubmitted(ref); err != nil {
				return ref, err
			}
			return ref, nil
		},
		Postcondition: func(d *deposit.Deposit, ref string) bool {
			return d.Status == deposit.DepositStatusSubmitted && d.StatusRef == ref
		},
		UpdatesEntity: true,
	})

	if res.Outcome == critical.OutcomeBodyFailed {
		s.recordFailure(ctx, candidate.ID, res.Err)
	}

	outcome, err := classify(res, EntityUnchanged)
	if outcome == EntityUpdated {
		logger.FromContextOr(ctx, s.deps.Logger).Info("Deposit resubmitted",
			zap.String("deposit_id", candidate.ID.String()),
			zap.String("repository_key", repo.Key),
			zap.String("status_ref", res.Value),
			zap.Int("attempt", res.Entity.AttemptCount),
		)
	}
	return outcome, err
}

// recordFailure stores cause on a deposit that is still FAILED. Losing this
// write only loses bookkeeping, so errors are logged and not counted.
func (s *FailedDepositRetryService) recordFailure(ctx context.Context, id uuid.UUID, cause error) {
	res := critical.Perform(ctx, s.deps.Engine, s.deps.Deposits, critical.Interaction[deposit.Deposit, struct{}]{
		ID: id,
		Precondition: func(d *deposit.Deposit) bool {
			return d.Status == deposit.DepositStatusFailed
		},
		Body: func(_ context.Context, d *deposit.Deposit) (struct{}, error) {
			return struct{}{}, d.MarkFailed(cause)
		},
		Postcondition: func(d *deposit.Deposit, _ struct{}) bool {
			return d.Status == deposit.DepositStatusFailed
		},
		UpdatesEntity: true,
	})
	if res.Outcome != critical.OutcomeSucceeded && res.Outcome != critical.OutcomePreconditionFailed {
		logger.FromContextOr(ctx, s.deps.Logger).Warn("Deposit failure not recorded",
			zap.String("deposit_id", id.String()),
			zap.Error(res.Error()),
		)
	}
}

var _ Runner = (*FailedDepositRetryService)(nil)
