package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lucidlylabs/vaultgate/internal/pkg/logger"
	"github.com/lucidlylabs/vaultgate/internal/service"
)

const streamPingPeriod = 15 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Callers are wallet front-ends served from arbitrary origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type StreamHandler struct {
	svc *service.WithdrawalService
}

func NewStreamHandler(svc *service.WithdrawalService) *StreamHandler {
	return &StreamHandler{svc: svc}
}

// Stream upgrades to a websocket and pushes every phase transition of
// the flow so the UI does not have to poll.
func (h *StreamHandler) Stream(c *gin.Context) {
	updates, cancel, err := h.svc.Subscribe(c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	defer cancel()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Drain reads so close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case status, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(status); err != nil {
				return
			}
			if status.Phase.Terminal() {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.Request.Context().Done():
			return
		}
	}
}
