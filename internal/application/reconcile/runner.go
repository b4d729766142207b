// Package reconcile moves deposits and submissions toward the outcome their
// repositories report. Each driver is a single pass over its candidates;
// periodic execution belongs to the scheduler.
//
// Every state change goes through the critical interaction engine, so a
// driver racing another driver or a status callback on the same entity
// loses with a version conflict and revisits the entity on its next pass.
package reconcile

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pass/deposit-services/internal/application/critical"
	"github.com/pass/deposit-services/internal/domain/deposit"
	"github.com/pass/deposit-services/internal/domain/shared"
	"github.com/pass/deposit-services/internal/infrastructure/logger"
	"github.com/pass/deposit-services/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Driver names
const (
	DriverSubmissionStatus = "submission-status"
	DriverDepositStatus    = "deposit-status"
	DriverFailedRetry      = "failed-deposit-retry"
)

// Runner is one reconciliation pass
type Runner interface {
	Name() string
	Run(ctx context.Context) (*RunSummary, error)
}

// Deps are the collaborators shared by every driver
type Deps struct {
	Engine       *critical.Engine
	Submissions  deposit.SubmissionRepository
	Deposits     deposit.DepositRepository
	Repositories deposit.RepositoryRepository
	Logger       *zap.Logger
	Metrics      *telemetry.ReconcileMetrics
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Engine == nil {
		d.Engine = critical.NewEngine(critical.Config{Logger: d.Logger})
	}
	return d
}

// Options tune a single driver
type Options struct {
	// BatchSize is the page size used to enumerate candidates. A run visits
	// every candidate; it only bounds each store query.
	BatchSize int
	// Concurrency bounds how many distinct entities are processed at once
	Concurrency int
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = shared.DefaultBatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	return o
}

// runScope carries the per-run logger, span and summary
type runScope struct {
	log     *zap.Logger
	span    trace.Span
	summary *RunSummary
	done    func(string)
	metrics *telemetry.ReconcileMetrics
}

func (d Deps) startRun(ctx context.Context, driver string) (context.Context, *runScope) {
	runID := uuid.NewString()
	ctx, span := telemetry.StartServiceSpan(ctx, "reconcile", driver,
		telemetry.WithAttribute(telemetry.SpanAttrDriver, driver),
	)
	ctx, log := logger.WithRunID(ctx, d.Logger.With(zap.String("driver", driver)), runID)
	log = logger.WithTraceContext(ctx, log)
	return ctx, &runScope{
		log:     log,
		span:    span,
		summary: NewRunSummary(driver, runID),
		done:    d.Metrics.RunStarted(ctx, driver),
		metrics: d.Metrics,
	}
}

func (r *runScope) entity(ctx context.Context, outcome string, err error) {
	r.summary.Record(outcome, err)
	r.metrics.RecordEntity(ctx, r.summary.Driver, outcome)
}

func (r *runScope) end(err error) {
	r.summary.finish()
	result := r.summary.Result(err)
	r.done(result)

	telemetry.SetAttribute(r.span, telemetry.SpanAttrCandidates, r.summary.Candidates)
	if err != nil {
		telemetry.RecordError(r.span, err)
	} else {
		telemetry.SetOK(r.span)
	}
	r.span.End()

	fields := []zap.Field{
		zap.String("result", result),
		zap.Int("candidates", r.summary.Candidates),
		zap.Int("visited", r.summary.Visited()),
		zap.Any("outcomes", r.summary.Counts()),
		zap.Duration("duration", r.summary.Duration()),
	}
	if err != nil {
		r.log.Error("Reconciliation run aborted", append(fields, zap.Error(err))...)
		return
	}
	r.log.Info("Reconciliation run finished", fields...)
}

// classify maps an engine result to a per-entity outcome. noWrite names the
// outcome of a successful interaction that did not need to persist.
func classify[T, R any](res critical.Result[T, R], noWrite string) (string, error) {
	switch res.Outcome {
	case critical.OutcomeSucceeded:
		if res.Persisted {
			return EntityUpdated, nil
		}
		return noWrite, nil
	case critical.OutcomePreconditionFailed:
		return EntitySkipped, nil
	case critical.OutcomePersistFailed:
		if shared.IsConflict(res.Err) {
			return EntityConflict, res.Err
		}
		return EntityFailed, res.Err
	default:
		return EntityFailed, res.Error()
	}
}

// queryAll reads every page of a candidate query. The full set is collected
// before any entity is processed, so entities leaving the set mid-run do not
// shift later pages and a head of stuck candidates cannot starve the rest.
func queryAll[T any](ctx context.Context, batch int, query func(context.Context, shared.Page) ([]T, error)) ([]T, error) {
	var all []T
	for offset := 0; ; offset += batch {
		page, err := query(ctx, shared.Page{Limit: batch, Offset: offset})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < batch {
			return all, nil
		}
	}
}

// forEach runs fn for every item with at most limit in flight. It stops
// launching work once ctx ends and reports that as ErrRunInterrupted.
func forEach[T any](ctx context.Context, limit int, items []T, fn func(context.Context, T)) error {
	var g errgroup.Group
	g.SetLimit(limit)
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			fn(ctx, item)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrRunInterrupted, err)
	}
	return nil
}

// repositoryCache memoizes repository lookups for one run
type repositoryCache struct {
	repos deposit.RepositoryRepository
	mu    sync.Mutex
	byID  map[uuid.UUID]*deposit.Repository
}

func newRepositoryCache(repos deposit.RepositoryRepository) *repositoryCache {
	return &repositoryCache{repos: repos, byID: make(map[uuid.UUID]*deposit.Repository)}
}

func (c *repositoryCache) get(ctx context.Context, id uuid.UUID) (*deposit.Repository, error) {
	c.mu.Lock()
	r, ok := c.byID[id]
	c.mu.Unlock()
	if ok {
		return r, nil
	}
	r, err := c.repos.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load repository %s: %w", id, err)
	}
	c.mu.Lock()
	c.byID[id] = r
	c.mu.Unlock()
	return r, nil
}
