package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/pass/deposit-services/internal/domain/deposit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func failedDeposit(t *testing.T, f *fixture, sub *deposit.Submission, repo *deposit.Repository) *deposit.Deposit {
	t.Helper()
	d, err := deposit.NewDeposit(sub.ID, repo.ID)
	require.NoError(t, err)
	require.NoError(t, d.MarkFailed(errors.New("sftp: connection refused")))
	d.StatusRef = "old-ref"
	require.NoError(t, f.deposits.Create(context.Background(), d))
	return d
}

func TestFailedDepositRetryService_SuccessfulTransferResubmits(t *testing.T) {
	f := newFixture(t)
	repo := f.addRepository(t, "pmc")
	sub := f.addSubmission(t, repo)
	d := failedDeposit(t, f, sub, repo)

	tr := &mockTransferer{}
	tr.On("Transfer", mock.Anything, mock.MatchedBy(func(s *deposit.Submission) bool { return s.ID == sub.ID }), mock.Anything).
		Return("https://repo.example.org/statement/new", nil).Once()

	summary, err := NewFailedDepositRetryService(f.deps, tr, Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Count(EntityUpdated))

	stored := f.deposit(t, d.ID)
	assert.Equal(t, deposit.DepositStatusSubmitted, stored.Status)
	assert.Equal(t, "https://repo.example.org/statement/new", stored.StatusRef)
	assert.Empty(t, stored.LastError)
	assert.Equal(t, 2, stored.AttemptCount)
	assert.Equal(t, 2, stored.Version)
	tr.AssertExpectations(t)
}

func TestFailedDepositRetryService_EmptyReferenceClearsOldOne(t *testing.T) {
	f := newFixture(t)
	repo := f.addRepository(t, "pmc")
	sub := f.addSubmission(t, repo)
	d := failedDeposit(t, f, sub, repo)

	tr := &mockTransferer{}
	tr.On("Transfer", mock.Anything, mock.Anything, mock.Anything).Return("", nil)

	_, err := NewFailedDepositRetryService(f.deps, tr, Options{}).Run(context.Background())
	require.NoError(t, err)

	stored := f.deposit(t, d.ID)
	assert.Equal(t, deposit.DepositStatusSubmitted, stored.Status)
	assert.Empty(t, stored.StatusRef)
}

func TestFailedDepositRetryService_FailingTransferLeavesDepositFailed(t *testing.T) {
	f := newFixture(t)
	pmc := f.addRepository(t, "pmc")
	js := f.addRepository(t, "jscholarship")
	sub := f.addSubmission(t, pmc, js)
	stuck := failedDeposit(t, f, sub, pmc)
	fine := failedDeposit(t, f, sub, js)

	tr := &mockTransferer{}
	tr.On("Transfer", mock.Anything, mock.Anything, mock.MatchedBy(func(r *deposit.Repository) bool { return r.Key == "pmc" })).
		Return("", errors.New("503 service unavailable"))
	tr.On("Transfer", mock.Anything, mock.Anything, mock.MatchedBy(func(r *deposit.Repository) bool { return r.Key == "jscholarship" })).
		Return("ref-js", nil)

	summary, err := NewFailedDepositRetryService(f.deps, tr, Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Count(EntityFailed))
	assert.Equal(t, 1, summary.Count(EntityUpdated))
	assert.ErrorContains(t, summary.Err(), "503 service unavailable")

	stored := f.deposit(t, stuck.ID)
	assert.Equal(t, deposit.DepositStatusFailed, stored.Status)
	assert.Equal(t, "old-ref", stored.StatusRef)
	assert.Contains(t, stored.LastError, "503 service unavailable")
	assert.Equal(t, 2, stored.AttemptCount)
	assert.Equal(t, 2, stored.Version)

	assert.Equal(t, deposit.DepositStatusSubmitted, f.deposit(t, fine.ID).Status)
	assert.Equal(t, 1, f.logs.FilterMessage("Deposit retry failed").Len())
}

func TestFailedDepositRetryService_MissingSubmission(t *testing.T) {
	f := newFixture(t)
	repo := f.addRepository(t, "pmc")
	orphan, err := deposit.NewDeposit(uuid.New(), repo.ID)
	require.NoError(t, err)
	require.NoError(t, orphan.MarkFailed(nil))
	require.NoError(t, f.deposits.Create(context.Background(), orphan))

	tr := &mockTransferer{}
	summary, err := NewFailedDepositRetryService(f.deps, tr, Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Count(EntityFailed))
	tr.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything, mock.Anything)
}

func TestFailedDepositRetryService_PanickingTransferIsContained(t *testing.T) {
	f := newFixture(t)
	repo := f.addRepository(t, "pmc")
	sub := f.addSubmission(t, repo)
	d := failedDeposit(t, f, sub, repo)

	summary, err := NewFailedDepositRetryService(f.deps, panickingTransferer{}, Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Count(EntityFailed))

	stored := f.deposit(t, d.ID)
	assert.Equal(t, deposit.DepositStatusFailed, stored.Status)
	assert.Contains(t, stored.LastError, "package assembler exploded")
}

func TestFailedDepositRetryService_StuckDepositsDoNotStarveLaterOnes(t *testing.T) {
	f := newFixture(t)
	pmc := f.addRepository(t, "pmc")
	js := f.addRepository(t, "jscholarship")
	sub := f.addSubmission(t, pmc, js)
	stuck := failedDeposit(t, f, sub, pmc)
	later := failedDeposit(t, f, sub, js)

	tr := &mockTransferer{}
	tr.On("Transfer", mock.Anything, mock.Anything, mock.MatchedBy(func(r *deposit.Repository) bool { return r.Key == "pmc" })).
		Return("", errors.New("503 service unavailable"))
	tr.On("Transfer", mock.Anything, mock.Anything, mock.MatchedBy(func(r *deposit.Repository) bool { return r.Key == "jscholarship" })).
		Return("ref-js", nil).Once()

	summary, err := NewFailedDepositRetryService(f.deps, tr, Options{BatchSize: 1}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Candidates)
	assert.Equal(t, 1, summary.Count(EntityFailed))
	assert.Equal(t, 1, summary.Count(EntityUpdated))

	assert.Equal(t, deposit.DepositStatusFailed, f.deposit(t, stuck.ID).Status)
	stored := f.deposit(t, later.ID)
	assert.Equal(t, deposit.DepositStatusSubmitted, stored.Status)
	assert.Equal(t, "ref-js", stored.StatusRef)
	tr.AssertExpectations(t)
}

func TestFailedDepositRetryService_RepeatedFailuresCountAttempts(t *testing.T) {
	f := newFixture(t)
	repo := f.addRepository(t, "pmc")
	sub := f.addSubmission(t, repo)
	d := failedDeposit(t, f, sub, repo)

	tr := &mockTransferer{}
	tr.On("Transfer", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("timeout")).Twice()

	svc := NewFailedDepositRetryService(f.deps, tr, Options{})
	for range 2 {
		_, err := svc.Run(context.Background())
		require.NoError(t, err)
	}

	stored := f.deposit(t, d.ID)
	assert.Equal(t, deposit.DepositStatusFailed, stored.Status)
	assert.Equal(t, 3, stored.AttemptCount)
	assert.Contains(t, stored.LastError, "timeout")
	assert.Zero(t, f.logs.FilterMessage("Deposit failure not recorded").Len())
	tr.AssertExpectations(t)
}

type panickingTransferer struct{}

func (panickingTransferer) Transfer(context.Context, *deposit.Submission, *deposit.Repository) (string, error) {
	panic("package assembler exploded")
}
