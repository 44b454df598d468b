package handler

import (
	"net/http"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/lucidlylabs/vaultgate/internal/config"
	"github.com/lucidlylabs/vaultgate/internal/ledger"
	"github.com/lucidlylabs/vaultgate/internal/pkg/apperrors"
	"github.com/lucidlylabs/vaultgate/internal/service"
)

type RequestsHandler struct {
	cfg       *config.Config
	ledger    *ledger.Client
	canceller *service.Canceller
}

func NewRequestsHandler(cfg *config.Config, ledgerClient *ledger.Client, canceller *service.Canceller) *RequestsHandler {
	return &RequestsHandler{cfg: cfg, ledger: ledgerClient, canceller: canceller}
}

// List fetches pending and fulfilled withdrawal requests for a
// wallet+strategy pair from the off-chain index.
func (h *RequestsHandler) List(c *gin.Context) {
	strategy := h.cfg.Strategy(c.Query("strategy"))
	if strategy == nil {
		c.Error(apperrors.New(apperrors.ErrNotFound, "unknown strategy", nil))
		return
	}
	wallet := c.Query("wallet")
	if !common.IsHexAddress(wallet) {
		c.Error(apperrors.NewInvalidRequest("invalid wallet address"))
		return
	}

	list := h.ledger.List(c.Request.Context(), vaultAddress(strategy), wallet)
	c.JSON(http.StatusOK, list)
}

// Cancel submits a cancel transaction for a pending request.
func (h *RequestsHandler) Cancel(c *gin.Context) {
	var body struct {
		StrategyID string `json:"strategy_id" binding:"required"`
		Wallet     string `json:"wallet" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	strategy := h.cfg.Strategy(body.StrategyID)
	if strategy == nil {
		c.Error(apperrors.New(apperrors.ErrNotFound, "unknown strategy", nil))
		return
	}
	if !common.IsHexAddress(body.Wallet) {
		c.Error(apperrors.NewInvalidRequest("invalid wallet address"))
		return
	}

	result, err := h.canceller.Cancel(c.Request.Context(), strategy, body.Wallet, c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// vaultAddress resolves the vault share address the off-chain index is
// keyed by: the one on the withdrawable network.
func vaultAddress(strategy *config.StrategyConfig) string {
	networks := append([]string(nil), strategy.WithdrawableNetworks...)
	sort.Strings(networks)
	if len(networks) > 0 {
		return strategy.Networks[networks[0]].VaultShareAddress
	}
	names := make([]string, 0, len(strategy.Networks))
	for name := range strategy.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return strategy.Networks[names[0]].VaultShareAddress
}
