package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pass/deposit-services/internal/domain/deposit"
	"github.com/pass/deposit-services/internal/domain/shared"
	"github.com/pass/deposit-services/internal/infrastructure/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCallbackService(t *testing.T, f *fixture) (*CallbackService, *mapTerms, *cache.InMemoryIdempotencyStore) {
	t.Helper()
	mapper := &mapTerms{terms: map[string]deposit.DepositStatus{
		"archived":  deposit.DepositStatusAccepted,
		"withdrawn": deposit.DepositStatusRejected,
	}}
	store := cache.NewInMemoryIdempotencyStore()
	t.Cleanup(func() { _ = store.Close() })
	return NewCallbackService(f.deps, mapper, store, time.Hour), mapper, store
}

func TestCallbackService_AppliesMappedTerm(t *testing.T) {
	f := newFixture(t)
	repo := f.addRepository(t, "jscholarship")
	sub := f.addSubmission(t, repo)
	d := f.addDeposit(t, sub, repo, deposit.DepositStatusSubmitted, "ref")
	svc, _, _ := newCallbackService(t, f)

	res, err := svc.Apply(context.Background(), StatusCallback{DepositID: d.ID, EventID: "evt-1", Term: "archived"})
	require.NoError(t, err)
	assert.Equal(t, EntityUpdated, res.Outcome)
	assert.Equal(t, deposit.DepositStatusAccepted, res.Status)
	assert.False(t, res.Duplicate)
	assert.Equal(t, deposit.DepositStatusAccepted, f.deposit(t, d.ID).Status)
}

func TestCallbackService_DuplicateEventIgnored(t *testing.T) {
	f := newFixture(t)
	repo := f.addRepository(t, "jscholarship")
	sub := f.addSubmission(t, repo)
	d := f.addDeposit(t, sub, repo, deposit.DepositStatusSubmitted, "ref")
	svc, mapper, _ := newCallbackService(t, f)

	cb := StatusCallback{DepositID: d.ID, EventID: "evt-1", Term: "archived"}
	_, err := svc.Apply(context.Background(), cb)
	require.NoError(t, err)

	res, err := svc.Apply(context.Background(), cb)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, 1, mapper.calls)
	assert.Equal(t, 2, f.deposit(t, d.ID).Version)
}

func TestCallbackService_UnmappedTermReleasesEvent(t *testing.T) {
	f := newFixture(t)
	repo := f.addRepository(t, "jscholarship")
	sub := f.addSubmission(t, repo)
	d := f.addDeposit(t, sub, repo, deposit.DepositStatusSubmitted, "ref")
	svc, _, store := newCallbackService(t, f)

	_, err := svc.Apply(context.Background(), StatusCallback{DepositID: d.ID, EventID: "evt-9", Term: "in-review"})
	require.ErrorIs(t, err, ErrUnmappedTerm)
	assert.ErrorContains(t, err, `"in-review" for jscholarship`)

	processed, err := store.IsProcessed(context.Background(), d.ID.String()+":evt-9")
	require.NoError(t, err)
	assert.False(t, processed)
	assert.Equal(t, deposit.DepositStatusSubmitted, f.deposit(t, d.ID).Status)
}

func TestCallbackService_TerminalDepositIsSkipped(t *testing.T) {
	f := newFixture(t)
	repo := f.addRepository(t, "jscholarship")
	sub := f.addSubmission(t, repo)
	d := f.addDeposit(t, sub, repo, deposit.DepositStatusAccepted, "ref")
	svc, _, _ := newCallbackService(t, f)

	res, err := svc.Apply(context.Background(), StatusCallback{DepositID: d.ID, Status: deposit.DepositStatusRejected})
	require.NoError(t, err)
	assert.Equal(t, EntitySkipped, res.Outcome)
	assert.Equal(t, deposit.DepositStatusAccepted, res.Status)
	assert.Equal(t, 1, f.deposit(t, d.ID).Version)
}

func TestCallbackService_Validation(t *testing.T) {
	f := newFixture(t)
	svc, _, _ := newCallbackService(t, f)

	_, err := svc.Apply(context.Background(), StatusCallback{Term: "archived"})
	assert.ErrorIs(t, err, ErrInvalidCallback)

	_, err = svc.Apply(context.Background(), StatusCallback{DepositID: uuid.New()})
	assert.ErrorIs(t, err, ErrInvalidCallback)

	_, err = svc.Apply(context.Background(), StatusCallback{DepositID: uuid.New(), Status: "LOST"})
	assert.ErrorIs(t, err, ErrInvalidCallback)

	_, err = svc.Apply(context.Background(), StatusCallback{DepositID: uuid.New(), Term: "archived", Status: deposit.DepositStatusAccepted})
	assert.ErrorIs(t, err, ErrInvalidCallback)
}

func TestCallbackService_UnknownDeposit(t *testing.T) {
	f := newFixture(t)
	svc, _, _ := newCallbackService(t, f)

	_, err := svc.Apply(context.Background(), StatusCallback{DepositID: uuid.New(), Status: deposit.DepositStatusAccepted})
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.Apply(context.Background(), StatusCallback{DepositID: uuid.New(), Term: "archived"})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
