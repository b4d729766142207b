package reconcile

import (
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pass/deposit-services/internal/infrastructure/telemetry"
)

// Per-entity outcomes recorded in a RunSummary
const (
	EntityUpdated       = "updated"
	EntityUnchanged     = "unchanged"
	EntityIndeterminate = "indeterminate"
	EntitySkipped       = "skipped"
	EntityConflict      = "conflict"
	EntityFailed        = "failed"
)

// RunSummary collects what one run did. It is safe for concurrent recording.
type RunSummary struct {
	Driver     string
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Candidates int

	mu     sync.Mutex
	counts map[string]int
	errs   *multierror.Error
}

// NewRunSummary starts a summary for one run of driver
func NewRunSummary(driver, runID string) *RunSummary {
	return &RunSummary{
		Driver:    driver,
		RunID:     runID,
		StartedAt: time.Now(),
		counts:    make(map[string]int),
	}
}

// Record counts one entity outcome and keeps its error, if any
func (s *RunSummary) Record(outcome string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[outcome]++
	if err != nil {
		s.errs = multierror.Append(s.errs, err)
	}
}

func (s *RunSummary) finish() {
	s.mu.Lock()
	s.FinishedAt = time.Now()
	s.mu.Unlock()
}

// Count returns how many entities ended with outcome
func (s *RunSummary) Count(outcome string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[outcome]
}

// Counts returns a copy of the per-outcome counters
func (s *RunSummary) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

// Visited returns the number of entities that got an outcome
func (s *RunSummary) Visited() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.counts {
		n += v
	}
	return n
}

// Failures returns the number of entities that failed or lost a write
func (s *RunSummary) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[EntityFailed] + s.counts[EntityConflict]
}

// Err returns the per-entity errors of the run, or nil
func (s *RunSummary) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs.ErrorOrNil()
}

// Duration returns how long the run took, or zero while it is running
func (s *RunSummary) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Result classifies the run for metrics given the error Run returned
func (s *RunSummary) Result(runErr error) string {
	switch {
	case runErr != nil:
		return telemetry.RunResultFatal
	case s.Failures() > 0:
		return telemetry.RunResultPartial
	default:
		return telemetry.RunResultSuccess
	}
}
