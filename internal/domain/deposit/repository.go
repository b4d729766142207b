package deposit

import (
	"context"

	"github.com/google/uuid"
	"github.com/pass/deposit-services/internal/domain/shared"
)

// Repository is an external repository that accepts deposits.
// Key selects its transport and status-mapping configuration.
type Repository struct {
	shared.BaseAggregateRoot
	Name string
	Key  string
}

// NewRepository creates a target repository
func NewRepository(name, key string) (*Repository, error) {
	if key == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "repository key cannot be empty")
	}
	if name == "" {
		name = key
	}
	return &Repository{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Name:              name,
		Key:               key,
	}, nil
}

// SubmissionFilter selects submissions for reconciliation
type SubmissionFilter struct {
	shared.Page
	// SubmittedOnly restricts the query to finalized submissions
	SubmittedOnly bool
	// Statuses restricts the aggregate status; empty means any
	Statuses []AggregatedDepositStatus
	// IncludeAbsent also matches submissions with no aggregate status
	IncludeAbsent bool
}

// IntermediateSubmissions selects submitted submissions whose aggregate may still change
func IntermediateSubmissions() SubmissionFilter {
	return SubmissionFilter{
		SubmittedOnly: true,
		Statuses:      IntermediateAggregatedStatuses(),
		IncludeAbsent: true,
	}
}

// Matches evaluates the filter in memory
func (f SubmissionFilter) Matches(s *Submission) bool {
	if f.SubmittedOnly && !s.Submitted {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	if s.AggregatedStatus == "" {
		return f.IncludeAbsent
	}
	for _, st := range f.Statuses {
		if st == s.AggregatedStatus {
			return true
		}
	}
	return false
}

// DepositFilter selects deposits for reconciliation
type DepositFilter struct {
	shared.Page
	// SubmissionID restricts the query to one submission
	SubmissionID uuid.UUID
	// Statuses restricts the deposit status; empty means any
	Statuses []DepositStatus
	// IncludeAbsent also matches deposits with no status
	IncludeAbsent bool
	// WithStatusRef restricts the query to deposits that have a status reference
	WithStatusRef bool
}

// AwaitingRemoteStatus selects deposits that have a status reference and are not terminal
func AwaitingRemoteStatus() DepositFilter {
	return DepositFilter{
		Statuses:      []DepositStatus{DepositStatusSubmitted, DepositStatusFailed},
		IncludeAbsent: true,
		WithStatusRef: true,
	}
}

// FailedDeposits selects deposits whose last attempt failed
func FailedDeposits() DepositFilter {
	return DepositFilter{Statuses: []DepositStatus{DepositStatusFailed}}
}

// DepositsOf selects every deposit of a submission
func DepositsOf(submissionID uuid.UUID) DepositFilter {
	return DepositFilter{SubmissionID: submissionID}
}

// Matches evaluates the filter in memory
func (f DepositFilter) Matches(d *Deposit) bool {
	if f.SubmissionID != uuid.Nil && d.SubmissionID != f.SubmissionID {
		return false
	}
	if f.WithStatusRef && !d.HasStatusRef() {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	if d.Status == "" {
		return f.IncludeAbsent
	}
	for _, st := range f.Statuses {
		if st == d.Status {
			return true
		}
	}
	return false
}

// SubmissionRepository persists submissions with optimistic version checks
type SubmissionRepository interface {
	// EntityType names the entity for logs and metrics
	EntityType() string

	// FindByID returns shared.ErrNotFound if the submission does not exist
	FindByID(ctx context.Context, id uuid.UUID) (*Submission, error)

	// Create stores a new submission at version 1
	Create(ctx context.Context, s *Submission) error

	// Update writes the submission if the stored version equals s.Version.
	// On success s.Version holds the new version; on mismatch a
	// *shared.ConflictError is returned and nothing is written.
	Update(ctx context.Context, s *Submission) error

	// Query returns submissions matching the filter ordered by creation time
	Query(ctx context.Context, filter SubmissionFilter) ([]*Submission, error)
}

// DepositRepository persists deposits with optimistic version checks
type DepositRepository interface {
	// EntityType names the entity for logs and metrics
	EntityType() string

	// FindByID returns shared.ErrNotFound if the deposit does not exist
	FindByID(ctx context.Context, id uuid.UUID) (*Deposit, error)

	// Create stores a new deposit at version 1
	Create(ctx context.Context, d *Deposit) error

	// Update writes the deposit if the stored version equals d.Version.
	// On success d.Version holds the new version; on mismatch a
	// *shared.ConflictError is returned and nothing is written.
	Update(ctx context.Context, d *Deposit) error

	// Query returns deposits matching the filter ordered by creation time
	Query(ctx context.Context, filter DepositFilter) ([]*Deposit, error)
}

// RepositoryRepository persists target repositories
type RepositoryRepository interface {
	// EntityType names the entity for logs and metrics
	EntityType() string

	// FindByID returns shared.ErrNotFound if the repository does not exist
	FindByID(ctx context.Context, id uuid.UUID) (*Repository, error)

	// FindByKey returns shared.ErrNotFound if no repository has the key
	FindByKey(ctx context.Context, key string) (*Repository, error)

	// Create stores a new repository
	Create(ctx context.Context, r *Repository) error

	// Update writes the repository if the stored version equals r.Version
	Update(ctx context.Context, r *Repository) error
}
