package deposit

import (
	"github.com/google/uuid"
	"github.com/pass/deposit-services/internal/domain/shared"
)

// Deposit is one attempt to place a submission's content into one repository.
// StatusRef is empty until the repository acknowledged a transfer.
type Deposit struct {
	shared.BaseAggregateRoot
	SubmissionID uuid.UUID
	RepositoryID uuid.UUID
	Status       DepositStatus
	StatusRef    string
	LastError    string
	AttemptCount int
}

// NewDeposit creates a deposit with no status for the given submission and repository
func NewDeposit(submissionID, repositoryID uuid.UUID) (*Deposit, error) {
	if submissionID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "submission id cannot be empty")
	}
	if repositoryID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "repository id cannot be empty")
	}
	return &Deposit{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		SubmissionID:      submissionID,
		RepositoryID:      repositoryID,
	}, nil
}

// HasStatusRef reports whether the repository ever acknowledged a transfer
func (d *Deposit) HasStatusRef() bool {
	return d.StatusRef != ""
}

// ApplyStatus sets a status reported by the repository.
// It returns false when the status is unchanged.
func (d *Deposit) ApplyStatus(status DepositStatus) (bool, error) {
	if !status.IsValid() {
		return false, shared.NewDomainError("INVALID_INPUT", "unknown deposit status: "+string(status))
	}
	if d.Status.IsTerminal() && d.Status != status {
		return false, shared.NewDomainError("INVALID_STATE", "deposit already reached terminal status "+string(d.Status))
	}
	if d.Status == status {
		return false, nil
	}
	d.Status = status
	d.Touch()
	return true, nil
}

// MarkSubmitted records a successful transfer attempt. An empty statusRef
// clears any reference left by an earlier attempt.
func (d *Deposit) MarkSubmitted(statusRef string) error {
	if d.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", "deposit already reached terminal status "+string(d.Status))
	}
	d.Status = DepositStatusSubmitted
	d.StatusRef = statusRef
	d.LastError = ""
	d.AttemptCount++
	d.Touch()
	return nil
}

// MarkFailed records a failed transfer attempt
func (d *Deposit) MarkFailed(cause error) error {
	if d.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", "deposit already reached terminal status "+string(d.Status))
	}
	d.Status = DepositStatusFailed
	if cause != nil {
		d.LastError = cause.Error()
	}
	d.AttemptCount++
	d.Touch()
	return nil
}
