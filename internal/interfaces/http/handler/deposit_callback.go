package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pass/deposit-services/internal/application/reconcile"
	"github.com/pass/deposit-services/internal/domain/deposit"
	"github.com/pass/deposit-services/internal/interfaces/http/dto"
)

// CallbackApplier applies a pushed deposit status
type CallbackApplier interface {
	Apply(ctx context.Context, cb reconcile.StatusCallback) (reconcile.CallbackResult, error)
}

// DepositCallbackHandler receives status pushes from repositories
type DepositCallbackHandler struct {
	BaseHandler
	callbacks CallbackApplier
	guard     []gin.HandlerFunc
}

// NewDepositCallbackHandler creates a DepositCallbackHandler. guard runs
// before the callback route, e.g. a rate limiter.
func NewDepositCallbackHandler(callbacks CallbackApplier, guard ...gin.HandlerFunc) *DepositCallbackHandler {
	return &DepositCallbackHandler{callbacks: callbacks, guard: guard}
}

// RegisterRoutes registers the callback route
func (h *DepositCallbackHandler) RegisterRoutes(rg *gin.RouterGroup) {
	handlers := append(append([]gin.HandlerFunc{}, h.guard...), h.PushStatus)
	rg.POST("/deposits/:id/status", handlers...)
}

// PushStatus applies a status callback. A deposit already in a terminal
// status is left alone and reported with outcome "skipped".
func (h *DepositCallbackHandler) PushStatus(c *gin.Context) {
	var uri dto.DepositIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		h.BindError(c, err)
		return
	}
	var req dto.StatusCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	id := uuid.MustParse(uri.ID)
	result, err := h.callbacks.Apply(c.Request.Context(), reconcile.StatusCallback{
		DepositID: id,
		EventID:   req.EventID,
		Term:      req.Term,
		Status:    deposit.DepositStatus(req.Status),
	})
	if err != nil {
		switch {
		case errors.Is(err, reconcile.ErrInvalidCallback):
			h.BadRequest(c, err.Error())
		case errors.Is(err, reconcile.ErrUnmappedTerm):
			h.Error(c, dto.ErrCodeUnmappedTerm, err.Error())
		default:
			h.HandleError(c, err)
		}
		return
	}

	h.Success(c, dto.StatusCallbackResponse{
		DepositID: id.String(),
		Outcome:   result.Outcome,
		Status:    string(result.Status),
		Duplicate: result.Duplicate,
	})
}
