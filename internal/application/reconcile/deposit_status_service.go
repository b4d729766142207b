package reconcile

import (
	"context"
	"fmt"

	"github.com/pass/deposit-services/internal/application/critical"
	"github.com/pass/deposit-services/internal/domain/deposit"
	"github.com/pass/deposit-services/internal/domain/shared"
	"github.com/pass/deposit-services/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// resolution is the value of one deposit status lookup
type resolution struct {
	Status   deposit.DepositStatus
	Resolved bool
	Changed  bool
}

// DepositStatusService asks each repository for the status of deposits that
// carry a status reference and are not yet terminal. A failure on one deposit
// is logged and counted; the run moves on.
type DepositStatusService struct {
	deps     Deps
	opts     Options
	resolver deposit.StatusResolver
}

// NewDepositStatusService creates the deposit status driver
func NewDepositStatusService(deps Deps, resolver deposit.StatusResolver, opts Options) *DepositStatusService {
	return &DepositStatusService{deps: deps.withDefaults(), opts: opts.withDefaults(), resolver: resolver}
}

// Name returns the driver name
func (s *DepositStatusService) Name() string { return DriverDepositStatus }

// Run performs one pass
func (s *DepositStatusService) Run(ctx context.Context) (_ *RunSummary, err error) {
	ctx, scope := s.deps.startRun(ctx, DriverDepositStatus)
	defer func() { scope.end(err) }()

	filter := deposit.AwaitingRemoteStatus()
	candidates, err := queryAll(ctx, s.opts.BatchSize, func(ctx context.Context, page shared.Page) ([]*deposit.Deposit, error) {
		filter.Page = page
		return s.deps.Deposits.Query(ctx, filter)
	})
	if err != nil {
		return scope.summary, fmt.Errorf("%w: query deposits: %w", ErrFatalRun, err)
	}
	scope.summary.Candidates = len(candidates)

	repos := newRepositoryCache(s.deps.Repositories)
	err = forEach(ctx, s.opts.Concurrency, candidates, func(ctx context.Context, candidate *deposit.Deposit) {
		outcome, entityErr := s.reconcile(ctx, repos, candidate)
		scope.entity(ctx, outcome, entityErr)
		if entityErr != nil {
			scope.log.Warn("Deposit status not reconciled",
				zap.String("deposit_id", candidate.ID.String()),
				zap.String("outcome", outcome),
				zap.Error(entityErr),
			)
		}
	})
	return scope.summary, err
}

func (s *DepositStatusService) reconcile(ctx context.Context, repos *repositoryCache, candidate *deposit.Deposit) (string, error) {
	repo, err := repos.get(ctx, candidate.RepositoryID)
	if err != nil {
		return EntityFailed, fmt.Errorf("deposit %s: %w", candidate.ID, err)
	}

	res := critical.Perform(ctx, s.deps.Engine, s.deps.Deposits, critical.Interaction[deposit.Deposit, resolution]{
		ID: candidate.ID,
		Precondition: func(d *deposit.Deposit) bool {
			return deposit.DepositIntermediate(d) && d.HasStatusRef()
		},
		Body: func(ctx context.Context, d *deposit.Deposit) (resolution, error) {
			status, ok, err := s.resolver.ResolveStatus(ctx, d.StatusRef, repo)
			if err != nil {
				return resolution{}, fmt.Errorf("resolve status of deposit %s: %w", d.ID, err)
			}
			if !ok {
				return resolution{}, nil
			}
			changed, err := d.ApplyStatus(status)
			if err != nil {
				return resolution{Status: status, Resolved: true}, err
			}
			return resolution{Status: status, Resolved: true, Changed: changed}, nil
		},
		Postcondition: func(d *deposit.Deposit, r resolution) bool {
			if r.Resolved {
				return d.Status == r.Status
			}
			return d.Status.IsIntermediate()
		},
		UpdatesEntity: true,
		PersistIf: func(_ *deposit.Deposit, r resolution) bool {
			return r.Changed
		},
	})

	noWrite := EntityUnchanged
	if res.Outcome == critical.OutcomeSucceeded && !res.Value.Resolved {
		noWrite = EntityIndeterminate
	}
	outcome, err := classify(res, noWrite)
	if outcome == EntityUpdated {
		logger.FromContextOr(ctx, s.deps.Logger).Info("Deposit status updated",
			zap.String("deposit_id", candidate.ID.String()),
			zap.String("repository_key", repo.Key),
			zap.String("status", string(res.Value.Status)),
		)
	}
	return outcome, err
}

var _ Runner = (*DepositStatusService)(nil)
