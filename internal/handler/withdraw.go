package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lucidlylabs/vaultgate/internal/config"
	"github.com/lucidlylabs/vaultgate/internal/model"
	"github.com/lucidlylabs/vaultgate/internal/pkg/apperrors"
	"github.com/lucidlylabs/vaultgate/internal/repository"
	"github.com/lucidlylabs/vaultgate/internal/service"
)

type WithdrawHandler struct {
	cfg     *config.Config
	svc     *service.WithdrawalService
	history repository.HistoryRepo
}

func NewWithdrawHandler(cfg *config.Config, svc *service.WithdrawalService, history repository.HistoryRepo) *WithdrawHandler {
	return &WithdrawHandler{cfg: cfg, svc: svc, history: history}
}

// Start opens a withdrawal flow and submits the approval transaction.
func (h *WithdrawHandler) Start(c *gin.Context) {
	var req model.StartWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status, err := h.svc.Start(c.Request.Context(), h.cfg.Strategy(req.StrategyID), req)
	if err != nil {
		// A failed submission still produced a flow whose outcome the
		// caller can inspect; surface both.
		if status != nil {
			c.JSON(apperrors.Wrap(err).HTTPStatus, gin.H{"error": apperrors.Wrap(err), "flow": status})
			return
		}
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, status)
}

// Status reports the current phase, tx hashes and preview of a flow.
func (h *WithdrawHandler) Status(c *gin.Context) {
	status, err := h.svc.Status(c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Confirm moves an approved flow into the withdrawal-request phase.
func (h *WithdrawHandler) Confirm(c *gin.Context) {
	status, err := h.svc.ConfirmWithdraw(c.Request.Context(), c.Param("id"))
	if err != nil {
		if status != nil {
			c.JSON(apperrors.Wrap(err).HTTPStatus, gin.H{"error": apperrors.Wrap(err), "flow": status})
			return
		}
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Preview recomputes the advisory assets-out value after a parameter change.
func (h *WithdrawHandler) Preview(c *gin.Context) {
	var req model.PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status, err := h.svc.Preview(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Reset acknowledges a terminal outcome and returns the flow to idle.
func (h *WithdrawHandler) Reset(c *gin.Context) {
	status, err := h.svc.Reset(c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// History lists persisted withdrawal attempts for a wallet.
func (h *WithdrawHandler) History(c *gin.Context) {
	wallet := c.Query("wallet")
	if wallet == "" {
		c.Error(apperrors.NewInvalidRequest("wallet query parameter is required"))
		return
	}
	records, err := h.history.ListByWallet(c.Request.Context(), wallet, 100)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}
