package handler

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/pass/deposit-services/internal/infrastructure/scheduler"
	"github.com/pass/deposit-services/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	statuses  []scheduler.DriverStatus
	triggered []string
	triggerFn func(name string) error
}

func (f *fakeRegistry) Statuses() []scheduler.DriverStatus { return f.statuses }

func (f *fakeRegistry) Status(name string) (scheduler.DriverStatus, error) {
	for _, s := range f.statuses {
		if s.Name == name {
			return s, nil
		}
	}
	return scheduler.DriverStatus{}, fmt.Errorf("%w: %s", scheduler.ErrDriverNotFound, name)
}

func (f *fakeRegistry) Trigger(name string) error {
	if f.triggerFn != nil {
		if err := f.triggerFn(name); err != nil {
			return err
		}
	}
	if _, err := f.Status(name); err != nil {
		return err
	}
	f.triggered = append(f.triggered, name)
	return nil
}

func newRegistry() *fakeRegistry {
	finished := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	return &fakeRegistry{statuses: []scheduler.DriverStatus{
		{
			Name:           "submission-status",
			Enabled:        true,
			Scheduled:      true,
			Delay:          10 * time.Minute,
			Runs:           3,
			LastFinishedAt: &finished,
			LastResult:     "success",
			LastCandidates: 4,
			LastOutcomes:   map[string]int{"updated": 1, "unchanged": 3},
		},
		{Name: "deposit-status", Enabled: false},
	}}
}

func TestReconciliation_ListDrivers(t *testing.T) {
	engine := newTestEngine(nil, NewReconciliationHandler(newRegistry()))
	w := do(engine, http.MethodGet, "/api/v1/reconciliation/drivers", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var drivers []dto.DriverResponse
	resp := decode(t, w, &drivers)
	assert.True(t, resp.Success)
	require.Len(t, drivers, 2)
	assert.Equal(t, "submission-status", drivers[0].Name)
	assert.Equal(t, "10m0s", drivers[0].Delay)
	assert.Equal(t, 3, drivers[0].Runs)
	assert.Equal(t, map[string]int{"updated": 1, "unchanged": 3}, drivers[0].LastOutcomes)
	assert.False(t, drivers[1].Enabled)
}

func TestReconciliation_GetDriver(t *testing.T) {
	engine := newTestEngine(nil, NewReconciliationHandler(newRegistry()))

	w := do(engine, http.MethodGet, "/api/v1/reconciliation/drivers/submission-status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var driver dto.DriverResponse
	decode(t, w, &driver)
	assert.Equal(t, "success", driver.LastResult)

	w = do(engine, http.MethodGet, "/api/v1/reconciliation/drivers/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, dto.ErrCodeNotFound, decode(t, w, nil).Error.Code)
}

func TestReconciliation_TriggerDriver(t *testing.T) {
	registry := newRegistry()
	engine := newTestEngine(nil, NewReconciliationHandler(registry))

	w := do(engine, http.MethodPost, "/api/v1/reconciliation/drivers/submission-status/trigger", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	var ack dto.TriggerResponse
	decode(t, w, &ack)
	assert.Equal(t, dto.TriggerResponse{Driver: "submission-status", Triggered: true}, ack)
	assert.Equal(t, []string{"submission-status"}, registry.triggered)

	w = do(engine, http.MethodPost, "/api/v1/reconciliation/drivers/nope/trigger", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReconciliation_TriggerErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"disabled", scheduler.ErrDriverDisabled, http.StatusConflict, dto.ErrCodeDriverDisabled},
		{"not running", scheduler.ErrSchedulerNotRunning, http.StatusServiceUnavailable, dto.ErrCodeUnavailable},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError, dto.ErrCodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			registry := newRegistry()
			registry.triggerFn = func(string) error { return tc.err }
			engine := newTestEngine(nil, NewReconciliationHandler(registry))

			w := do(engine, http.MethodPost, "/api/v1/reconciliation/drivers/deposit-status/trigger", nil)
			assert.Equal(t, tc.status, w.Code)
			resp := decode(t, w, nil)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.code, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.RequestID)
		})
	}
}
