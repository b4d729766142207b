package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pass/deposit-services/internal/domain/deposit"
	"github.com/pass/deposit-services/internal/domain/shared"
)

// UpdateHook runs inside Update before the version check. Tests use it to
// interleave a competing write.
type UpdateHook func(ctx context.Context, id uuid.UUID)

// SubmissionStore is an in-memory deposit.SubmissionRepository
type SubmissionStore struct {
	t *table[*deposit.Submission]
}

// NewSubmissionStore creates an empty SubmissionStore
func NewSubmissionStore() *SubmissionStore {
	return &SubmissionStore{t: newTable("submission", cloneSubmission)}
}

// EntityType returns "submission"
func (s *SubmissionStore) EntityType() string { return s.t.entityType }

// FindByID returns a copy of the stored submission
func (s *SubmissionStore) FindByID(_ context.Context, id uuid.UUID) (*deposit.Submission, error) {
	return s.t.find(id)
}

// Create stores a copy of the submission
func (s *SubmissionStore) Create(_ context.Context, sub *deposit.Submission) error {
	return s.t.create(sub)
}

// Update stores a copy of the submission if its version is current
func (s *SubmissionStore) Update(_ context.Context, sub *deposit.Submission) error {
	return s.t.update(sub)
}

// Query returns copies of matching submissions
func (s *SubmissionStore) Query(_ context.Context, filter deposit.SubmissionFilter) ([]*deposit.Submission, error) {
	return s.t.list(filter.Matches, filter.Page), nil
}

// Len returns the number of stored submissions
func (s *SubmissionStore) Len() int { return s.t.len() }

// DepositStore is an in-memory deposit.DepositRepository
type DepositStore struct {
	t *table[*deposit.Deposit]

	mu   sync.RWMutex
	hook UpdateHook
}

// NewDepositStore creates an empty DepositStore
func NewDepositStore() *DepositStore {
	return &DepositStore{t: newTable("deposit", cloneDeposit)}
}

// SetUpdateHook installs a hook that runs at the start of every Update
func (s *DepositStore) SetUpdateHook(hook UpdateHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

// EntityType returns "deposit"
func (s *DepositStore) EntityType() string { return s.t.entityType }

// FindByID returns a copy of the stored deposit
func (s *DepositStore) FindByID(_ context.Context, id uuid.UUID) (*deposit.Deposit, error) {
	return s.t.find(id)
}

// Create stores a copy of the deposit
func (s *DepositStore) Create(_ context.Context, d *deposit.Deposit) error {
	return s.t.create(d)
}

// Update stores a copy of the deposit if its version is current
func (s *DepositStore) Update(ctx context.Context, d *deposit.Deposit) error {
	s.mu.RLock()
	hook := s.hook
	s.mu.RUnlock()
	if hook != nil {
		hook(ctx, d.ID)
	}
	return s.t.update(d)
}

// Query returns copies of matching deposits
func (s *DepositStore) Query(_ context.Context, filter deposit.DepositFilter) ([]*deposit.Deposit, error) {
	return s.t.list(filter.Matches, filter.Page), nil
}

// Len returns the number of stored deposits
func (s *DepositStore) Len() int { return s.t.len() }

// RepositoryStore is an in-memory deposit.RepositoryRepository
type RepositoryStore struct {
	t *table[*deposit.Repository]
}

// NewRepositoryStore creates an empty RepositoryStore
func NewRepositoryStore() *RepositoryStore {
	return &RepositoryStore{t: newTable("repository", cloneRepository)}
}

// EntityType returns "repository"
func (s *RepositoryStore) EntityType() string { return s.t.entityType }

// FindByID returns a copy of the stored repository
func (s *RepositoryStore) FindByID(_ context.Context, id uuid.UUID) (*deposit.Repository, error) {
	return s.t.find(id)
}

// FindByKey returns the repository with the given key
func (s *RepositoryStore) FindByKey(_ context.Context, key string) (*deposit.Repository, error) {
	found := s.t.list(func(r *deposit.Repository) bool { return r.Key == key }, shared.Page{Limit: 1})
	if len(found) == 0 {
		return nil, shared.ErrNotFound
	}
	return found[0], nil
}

// Create stores a copy of the repository
func (s *RepositoryStore) Create(_ context.Context, r *deposit.Repository) error {
	return s.t.create(r)
}

// Update stores a copy of the repository if its version is current
func (s *RepositoryStore) Update(_ context.Context, r *deposit.Repository) error {
	return s.t.update(r)
}

func cloneSubmission(s *deposit.Submission) *deposit.Submission {
	c := *s
	c.Repositories = append([]uuid.UUID(nil), s.Repositories...)
	if s.SubmittedAt != nil {
		at := *s.SubmittedAt
		c.SubmittedAt = &at
	}
	return &c
}

func cloneDeposit(d *deposit.Deposit) *deposit.Deposit {
	c := *d
	return &c
}

func cloneRepository(r *deposit.Repository) *deposit.Repository {
	c := *r
	return &c
}
