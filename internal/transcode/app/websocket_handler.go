package app

import (
	"time"

	"episode_transcode_service/pkg/logger"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// StatusWebsocketHandler 推送單一 episode 的狀態變更
type StatusWebsocketHandler struct {
	hub *StatusHub
}

// NewStatusWebsocketHandler create handler
func NewStatusWebsocketHandler(hub *StatusHub) *StatusWebsocketHandler {
	return &StatusWebsocketHandler{hub: hub}
}

// HandleConnection 是 WebSocket 連線的進入點，路由參數 :id 為 episode id
func (h *StatusWebsocketHandler) HandleConnection(conn *websocket.Conn) {
	episodeID := conn.Params("id")
	events, unsubscribe := h.hub.Subscribe(episodeID)

	ticker := time.NewTicker(wsPingPeriod)
	closed := make(chan struct{})

	defer func() {
		ticker.Stop()
		unsubscribe()
		conn.Close()
		logger.Log.Info("status websocket close", zap.String("episodeId", episodeID))
	}()

	// client 不會送資料，讀取只用來偵測斷線
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				logger.Log.Warn("write status event failed", zap.String("episodeId", episodeID), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
