package handler

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/lucidlylabs/vaultgate/internal/config"
	"github.com/lucidlylabs/vaultgate/internal/pkg/apperrors"
	"github.com/lucidlylabs/vaultgate/internal/service"
)

type PortfolioHandler struct {
	cfg        *config.Config
	aggregator *service.Aggregator
	rates      *service.RateService
}

func NewPortfolioHandler(cfg *config.Config, aggregator *service.Aggregator, rates *service.RateService) *PortfolioHandler {
	return &PortfolioHandler{cfg: cfg, aggregator: aggregator, rates: rates}
}

// GetPortfolio aggregates every configured strategy for one wallet.
func (h *PortfolioHandler) GetPortfolio(c *gin.Context) {
	walletParam := c.Param("wallet")
	if !common.IsHexAddress(walletParam) {
		c.Error(apperrors.NewInvalidRequest("invalid wallet address"))
		return
	}

	portfolio, err := h.aggregator.Portfolio(c.Request.Context(), h.cfg.Strategies, common.HexToAddress(walletParam))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, portfolio)
}

// GetBalance aggregates a single strategy for one wallet.
func (h *PortfolioHandler) GetBalance(c *gin.Context) {
	strategy := h.cfg.Strategy(c.Param("id"))
	if strategy == nil {
		c.Error(apperrors.New(apperrors.ErrNotFound, "unknown strategy", nil))
		return
	}
	walletParam := c.Param("wallet")
	if !common.IsHexAddress(walletParam) {
		c.Error(apperrors.NewInvalidRequest("invalid wallet address"))
		return
	}

	balance, err := h.aggregator.Aggregate(c.Request.Context(), strategy, common.HexToAddress(walletParam))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

// GetRate returns the current share price quote, flagged when degraded.
func (h *PortfolioHandler) GetRate(c *gin.Context) {
	strategy := h.cfg.Strategy(c.Param("id"))
	if strategy == nil {
		c.Error(apperrors.New(apperrors.ErrNotFound, "unknown strategy", nil))
		return
	}
	c.JSON(http.StatusOK, h.rates.Rate(c.Request.Context(), strategy))
}
