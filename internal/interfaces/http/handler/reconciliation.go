package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/pass/deposit-services/internal/infrastructure/logger"
	"github.com/pass/deposit-services/internal/infrastructure/scheduler"
	"github.com/pass/deposit-services/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// DriverRegistry is the part of scheduler.Manager the API needs
type DriverRegistry interface {
	Statuses() []scheduler.DriverStatus
	Status(name string) (scheduler.DriverStatus, error)
	Trigger(name string) error
}

// ReconciliationHandler exposes the reconciliation drivers
type ReconciliationHandler struct {
	BaseHandler
	drivers DriverRegistry
}

// NewReconciliationHandler creates a ReconciliationHandler
func NewReconciliationHandler(drivers DriverRegistry) *ReconciliationHandler {
	return &ReconciliationHandler{drivers: drivers}
}

// RegisterRoutes registers the driver routes
func (h *ReconciliationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/reconciliation/drivers")
	g.GET("", h.ListDrivers)
	g.GET("/:name", h.GetDriver)
	g.POST("/:name/trigger", h.TriggerDriver)
}

// ListDrivers returns every driver with its last run
func (h *ReconciliationHandler) ListDrivers(c *gin.Context) {
	statuses := h.drivers.Statuses()
	out := make([]dto.DriverResponse, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, toDriverResponse(s))
	}
	h.Success(c, out)
}

// GetDriver returns one driver
func (h *ReconciliationHandler) GetDriver(c *gin.Context) {
	var req dto.DriverNameRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.BindError(c, err)
		return
	}
	status, err := h.drivers.Status(req.Name)
	if err != nil {
		h.driverError(c, err)
		return
	}
	h.Success(c, toDriverResponse(status))
}

// TriggerDriver asks a driver to run now. The run happens asynchronously;
// 202 means it was queued.
func (h *ReconciliationHandler) TriggerDriver(c *gin.Context) {
	var req dto.DriverNameRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.BindError(c, err)
		return
	}
	if err := h.drivers.Trigger(req.Name); err != nil {
		h.driverError(c, err)
		return
	}
	logger.GetGinLogger(c, nil).Info("Reconciliation run requested", zap.String("driver", req.Name))
	h.Accepted(c, dto.TriggerResponse{Driver: req.Name, Triggered: true})
}

func (h *ReconciliationHandler) driverError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, scheduler.ErrDriverNotFound):
		h.NotFound(c, err.Error())
	case errors.Is(err, scheduler.ErrDriverDisabled):
		h.Error(c, dto.ErrCodeDriverDisabled, err.Error())
	case errors.Is(err, scheduler.ErrSchedulerNotRunning):
		h.Error(c, dto.ErrCodeUnavailable, err.Error())
	default:
		h.HandleError(c, err)
	}
}

func toDriverResponse(s scheduler.DriverStatus) dto.DriverResponse {
	return dto.DriverResponse{
		Name:           s.Name,
		Enabled:        s.Enabled,
		Scheduled:      s.Scheduled,
		Running:        s.Running,
		Delay:          s.Delay.String(),
		InitialDelay:   s.InitialDelay.String(),
		Runs:           s.Runs,
		NextRunAt:      s.NextRunAt,
		LastStartedAt:  s.LastStartedAt,
		LastFinishedAt: s.LastFinishedAt,
		LastResult:     s.LastResult,
		LastError:      s.LastError,
		LastCandidates: s.LastCandidates,
		LastOutcomes:   s.LastOutcomes,
	}
}
