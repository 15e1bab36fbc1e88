package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"live-quiz-service/internal/logger"
	"live-quiz-service/internal/realtime"
)

type WSHandler struct {
	engine     *realtime.Engine
	upgrader   websocket.Upgrader
	sendBuffer int
	pongWait   time.Duration
	log        *logger.Logger
}

func NewWSHandler(engine *realtime.Engine, sendBuffer int, pongWait time.Duration, log *logger.Logger) *WSHandler {
	return &WSHandler{
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sendBuffer: sendBuffer,
		pongWait:   pongWait,
		log:        log.With("component", "ws"),
	}
}

// ServeWS upgrades the request and runs the session protocol until the connection closes.
// The PIN comes from the catch-all path parameter; an empty PIN is rejected after the upgrade.
func (h *WSHandler) ServeWS(c *gin.Context) {
	pin := strings.Trim(c.Param("pin"), "/ ")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}

	client := realtime.NewClient(conn, h.sendBuffer, h.pongWait, h.log)
	go client.WritePump()

	// connection lifetime is not bound to the upgrade request
	ctx := context.Background()
	peer, err := h.engine.Connect(ctx, pin, client)
	if err != nil {
		if errors.Is(err, realtime.ErrMissingPIN) {
			client.Reject(realtime.CloseMissingPIN, "session pin required")
			return
		}
		h.log.Error("connect failed", "pin", pin, "error", err)
		client.Reject(websocket.CloseInternalServerErr, "connect failed")
		return
	}
	defer client.Close()
	defer h.engine.Disconnect(ctx, peer)

	client.ReadPump(func(raw []byte) {
		h.engine.Handle(ctx, peer, raw)
	})
}
