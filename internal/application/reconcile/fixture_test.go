package reconcile

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/pass/deposit-services/internal/application/critical"
	"github.com/pass/deposit-services/internal/domain/deposit"
	"github.com/pass/deposit-services/internal/infrastructure/persistence/memstore"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fixture struct {
	submissions  *memstore.SubmissionStore
	deposits     *memstore.DepositStore
	repositories *memstore.RepositoryStore
	logs         *observer.ObservedLogs
	deps         Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)
	f := &fixture{
		submissions:  memstore.NewSubmissionStore(),
		deposits:     memstore.NewDepositStore(),
		repositories: memstore.NewRepositoryStore(),
		logs:         logs,
	}
	f.deps = Deps{
		Engine:       critical.NewEngine(critical.Config{Logger: log}),
		Submissions:  f.submissions,
		Deposits:     f.deposits,
		Repositories: f.repositories,
		Logger:       log,
	}
	return f
}

func (f *fixture) addRepository(t *testing.T, key string) *deposit.Repository {
	t.Helper()
	r, err := deposit.NewRepository("", key)
	require.NoError(t, err)
	require.NoError(t, f.repositories.Create(context.Background(), r))
	return r
}

func (f *fixture) addSubmission(t *testing.T, repos ...*deposit.Repository) *deposit.Submission {
	t.Helper()
	ids := make([]uuid.UUID, 0, len(repos))
	for _, r := range repos {
		ids = append(ids, r.ID)
	}
	s, err := deposit.NewSubmission(ids...)
	require.NoError(t, err)
	require.NoError(t, s.Submit())
	require.NoError(t, f.submissions.Create(context.Background(), s))
	return s
}

func (f *fixture) addDeposit(t *testing.T, sub *deposit.Submission, repo *deposit.Repository, status deposit.DepositStatus, ref string) *deposit.Deposit {
	t.Helper()
	d, err := deposit.NewDeposit(sub.ID, repo.ID)
	require.NoError(t, err)
	d.Status = status
	d.StatusRef = ref
	require.NoError(t, f.deposits.Create(context.Background(), d))
	return d
}

func (f *fixture) deposit(t *testing.T, id uuid.UUID) *deposit.Deposit {
	t.Helper()
	d, err := f.deposits.FindByID(context.Background(), id)
	require.NoError(t, err)
	return d
}

func (f *fixture) submission(t *testing.T, id uuid.UUID) *deposit.Submission {
	t.Helper()
	s, err := f.submissions.FindByID(context.Background(), id)
	require.NoError(t, err)
	return s
}

// setStatus writes a status as another actor would
func (f *fixture) setStatus(t *testing.T, id uuid.UUID, status deposit.DepositStatus) {
	t.Helper()
	d := f.deposit(t, id)
	d.Status = status
	require.NoError(t, f.deposits.Update(context.Background(), d))
}

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) ResolveStatus(ctx context.Context, ref string, repo *deposit.Repository) (deposit.DepositStatus, bool, error) {
	args := m.Called(ctx, ref, repo)
	return args.Get(0).(deposit.DepositStatus), args.Bool(1), args.Error(2)
}

type mockTransferer struct {
	mock.Mock
}

func (m *mockTransferer) Transfer(ctx context.Context, sub *deposit.Submission, repo *deposit.Repository) (string, error) {
	args := m.Called(ctx, sub, repo)
	return args.String(0), args.Error(1)
}

// mapTerms is a TermMapper over a fixed table shared by every repository
type mapTerms struct {
	mu    sync.Mutex
	terms map[string]deposit.DepositStatus
	calls int
}

func (m *mapTerms) MapTerm(_ *deposit.Repository, term string) (deposit.DepositStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	s, ok := m.terms[term]
	return s, ok
}

// racingDeposits lets a test act between a driver's query and its interactions
type racingDeposits struct {
	*memstore.DepositStore
	afterQuery func([]*deposit.Deposit)
	queryErr   error
}

func (r *racingDeposits) Query(ctx context.Context, filter deposit.DepositFilter) ([]*deposit.Deposit, error) {
	if r.queryErr != nil {
		return nil, r.queryErr
	}
	out, err := r.DepositStore.Query(ctx, filter)
	if err == nil && r.afterQuery != nil {
		r.afterQuery(out)
	}
	return out, err
}

type failingSubmissions struct {
	*memstore.SubmissionStore
	queryErr error
}

func (s *failingSubmissions) Query(ctx context.Context, filter deposit.SubmissionFilter) ([]*deposit.Submission, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.SubmissionStore.Query(ctx, filter)
}
