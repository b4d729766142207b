package reconcile

import (
	"context"
	"fmt"

	"github.com/pass/deposit-services/internal/application/critical"
	"github.com/pass/deposit-services/internal/domain/deposit"
	"github.com/pass/deposit-services/internal/domain/shared"
	"go.uber.org/zap"
)

// aggregateChange is the value of one submission recompute
type aggregateChange struct {
	From deposit.AggregatedDepositStatus
	To   deposit.AggregatedDepositStatus
}

// SubmissionStatusService recomputes the aggregate deposit status of
// submitted submissions that are not yet terminal.
//
// It processes candidates sequentially and aborts on the first error that is
// not a lost concurrent write: a store that cannot be read or written here
// would leave submissions silently stuck.
type SubmissionStatusService struct {
	deps Deps
	opts Options
}

// NewSubmissionStatusService creates the submission status driver
func NewSubmissionStatusService(deps Deps, opts Options) *SubmissionStatusService {
	return &SubmissionStatusService{deps: deps.withDefaults(), opts: opts.withDefaults()}
}

// Name returns the driver name
func (s *SubmissionStatusService) Name() string { return DriverSubmissionStatus }

// Run performs one pass
func (s *SubmissionStatusService) Run(ctx context.Context) (_ *RunSummary, err error) {
	ctx, scope := s.deps.startRun(ctx, DriverSubmissionStatus)
	defer func() { scope.end(err) }()

	filter := deposit.IntermediateSubmissions()
	candidates, err := queryAll(ctx, s.opts.BatchSize, func(ctx context.Context, page shared.Page) ([]*deposit.Submission, error) {
		filter.Page = page
		return s.deps.Submissions.Query(ctx, filter)
	})
	if err != nil {
		return scope.summary, fmt.Errorf("%w: query submissions: %w", ErrFatalRun, err)
	}
	scope.summary.Candidates = len(candidates)

	for _, candidate := range candidates {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return scope.summary, fmt.Errorf("%w: %w", ErrRunInterrupted, ctxErr)
		}

		res := s.recompute(ctx, candidate)
		outcome, entityErr := classify(res, EntityUnchanged)
		scope.entity(ctx, outcome, entityErr)

		switch outcome {
		case EntityUpdated:
			scope.log.Info("Submission aggregate status updated",
				zap.String("submission_id", candidate.ID.String()),
				zap.String("from", string(res.Value.From)),
				zap.String("to", string(res.Value.To)),
			)
		case EntityFailed:
			return scope.summary, fmt.Errorf("%w: submission %s: %w", ErrFatalRun, candidate.ID, entityErr)
		}
	}
	return scope.summary, nil
}

func (s *SubmissionStatusService) recompute(ctx context.Context, candidate *deposit.Submission) critical.Result[deposit.Submission, aggregateChange] {
	return critical.Perform(ctx, s.deps.Engine, s.deps.Submissions, critical.Interaction[deposit.Submission, aggregateChange]{
		ID:           candidate.ID,
		Precondition: deposit.SubmissionIntermediate,
		Body: func(ctx context.Context, sub *deposit.Submission) (aggregateChange, error) {
			deposits, err := s.deps.Deposits.Query(ctx, deposit.DepositsOf(sub.ID))
			if err != nil {
				return aggregateChange{}, fmt.Errorf("query deposits of submission %s: %w", sub.ID, err)
			}
			change := aggregateChange{
				From: sub.AggregatedStatus,
				To:   deposit.CalculateAggregatedStatus(sub, deposits),
			}
			sub.SetAggregatedStatus(change.To)
			return change, nil
		},
		Postcondition: func(sub *deposit.Submission, change aggregateChange) bool {
			return sub.AggregatedStatus == change.To
		},
		UpdatesEntity: true,
		PersistIf: func(_ *deposit.Submission, change aggregateChange) bool {
			return change.From != change.To
		},
	})
}

var _ Runner = (*SubmissionStatusService)(nil)
