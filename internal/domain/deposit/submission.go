package deposit

import (
	"time"

	"github.com/google/uuid"
	"github.com/pass/deposit-services/internal/domain/shared"
)

// Submission is a researcher's request to deposit one publication into one
// or more target repositories. Its aggregate status is derived from the
// deposits made on its behalf.
type Submission struct {
	shared.BaseAggregateRoot
	AggregatedStatus AggregatedDepositStatus
	Repositories     []uuid.UUID
	Submitted        bool
	SubmittedAt      *time.Time
}

// NewSubmission creates a submission targeting the given repositories
func NewSubmission(repositories ...uuid.UUID) (*Submission, error) {
	if len(repositories) == 0 {
		return nil, shared.NewDomainError("INVALID_INPUT", "submission must target at least one repository")
	}
	seen := make(map[uuid.UUID]struct{}, len(repositories))
	targets := make([]uuid.UUID, 0, len(repositories))
	for _, id := range repositories {
		if id == uuid.Nil {
			return nil, shared.NewDomainError("INVALID_INPUT", "repository id cannot be empty")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		targets = append(targets, id)
	}
	return &Submission{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Repositories:      targets,
	}, nil
}

// Submit finalizes the submission and makes it eligible for reconciliation
func (s *Submission) Submit() error {
	if s.Submitted {
		return shared.NewDomainError("INVALID_STATE", "submission already submitted")
	}
	now := time.Now()
	s.Submitted = true
	s.SubmittedAt = &now
	s.AggregatedStatus = AggregatedNotStarted
	s.Touch()
	return nil
}

// SetAggregatedStatus updates the aggregate status in memory.
// It returns false when the status is unchanged.
func (s *Submission) SetAggregatedStatus(status AggregatedDepositStatus) bool {
	if s.AggregatedStatus == status {
		return false
	}
	s.AggregatedStatus = status
	s.Touch()
	return true
}

// TargetsRepository reports whether the submission targets the repository
func (s *Submission) TargetsRepository(id uuid.UUID) bool {
	for _, r := range s.Repositories {
		if r == id {
			return true
		}
	}
	return false
}
