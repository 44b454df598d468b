package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lucidlylabs/vaultgate/internal/chain"
	"github.com/lucidlylabs/vaultgate/internal/config"
	"github.com/lucidlylabs/vaultgate/internal/pkg/apperrors"
	"github.com/lucidlylabs/vaultgate/internal/pkg/logger"
)

type WalletHandler struct {
	cfg    *config.Config
	sender chain.TxSender
}

func NewWalletHandler(cfg *config.Config, sender chain.TxSender) *WalletHandler {
	return &WalletHandler{cfg: cfg, sender: sender}
}

// Network reports the network the wallet currently points at.
func (h *WalletHandler) Network(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"active_network": h.sender.ActiveNetwork()})
}

// SwitchNetwork records a wallet-side network change so subsequent
// submissions target the right chain instead of failing WRONG_NETWORK.
func (h *WalletHandler) SwitchNetwork(c *gin.Context) {
	var body struct {
		Network string `json:"network" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.knownNetwork(body.Network) {
		c.Error(apperrors.NewInvalidRequest(fmt.Sprintf("network %q is not configured for any strategy", body.Network)))
		return
	}

	switcher, ok := h.sender.(chain.NetworkSwitcher)
	if !ok {
		c.Error(apperrors.New(apperrors.ErrInvalidConfig, "configured wallet cannot switch networks", nil))
		return
	}
	switcher.SwitchNetwork(body.Network)
	logger.Info("wallet network switched", "network", body.Network)
	c.JSON(http.StatusOK, gin.H{"active_network": body.Network})
}

func (h *WalletHandler) knownNetwork(name string) bool {
	for i := range h.cfg.Strategies {
		if _, ok := h.cfg.Strategies[i].Networks[name]; ok {
			return true
		}
	}
	return false
}
