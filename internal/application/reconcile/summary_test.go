package reconcile

import (
	"errors"
	"testing"

	"github.com/pass/deposit-services/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
)

func TestRunSummary(t *testing.T) {
	s := NewRunSummary(DriverDepositStatus, "run-1")
	assert.Equal(t, telemetry.RunResultSuccess, s.Result(nil))
	assert.Zero(t, s.Duration())

	s.Record(EntityUpdated, nil)
	s.Record(EntityUpdated, nil)
	s.Record(EntityConflict, errors.New("lost"))
	s.Record(EntityFailed, errors.New("timeout"))
	s.finish()

	assert.Equal(t, 4, s.Visited())
	assert.Equal(t, 2, s.Failures())
	assert.Equal(t, map[string]int{EntityUpdated: 2, EntityConflict: 1, EntityFailed: 1}, s.Counts())
	assert.ErrorContains(t, s.Err(), "lost")
	assert.ErrorContains(t, s.Err(), "timeout")
	assert.Equal(t, telemetry.RunResultPartial, s.Result(nil))
	assert.Equal(t, telemetry.RunResultFatal, s.Result(ErrFatalRun))
	assert.False(t, s.FinishedAt.IsZero())
}
