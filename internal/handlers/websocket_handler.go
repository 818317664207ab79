package handlers

import (
	"net/http"
	"time"

	"nekotab/internal/registry"
	"nekotab/pkg/config"
	"nekotab/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// 审计日志推送的轮询间隔和心跳参数
const (
	logPollInterval = 2 * time.Second
	pingInterval    = 30 * time.Second
	writeTimeout    = 10 * time.Second
)

// WebSocketHandler 审计日志实时推送处理器
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	registry registry.Registry
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(reg registry.Registry) *WebSocketHandler {
	allowedOrigins := config.GetConfig().CORS.AllowOrigins

	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				for _, allowed := range allowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				logger.GetLogger().Warnf("WebSocket连接被拒绝，非法Origin: %s", origin)
				return false
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024 * 4,
		},
		registry: reg,
	}
}

// TenantLogs 实时推送某租户的开通审计日志。
// 先推历史再轮询增量，以日志自增ID为游标，不丢不重。
func (h *WebSocketHandler) TenantLogs(c *gin.Context) {
	tenantID := c.Param("id")
	appLogger := logger.GetLogger()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		appLogger.Errorf("WebSocket升级失败: %v", err)
		return
	}
	defer conn.Close()

	// 客户端断开时读循环报错，借此退出推送循环
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var cursor uint

	// 历史日志：最近一页
	if logs, _, err := h.registry.ListLogs(tenantID, 1, 100); err == nil {
		for i := len(logs) - 1; i >= 0; i-- {
			if err := h.write(conn, logs[i]); err != nil {
				return
			}
			if logs[i].ID > cursor {
				cursor = logs[i].ID
			}
		}
	}

	pollTicker := time.NewTicker(logPollInterval)
	defer pollTicker.Stop()
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-pingTicker.C:
			deadline := time.Now().Add(writeTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-pollTicker.C:
			entries, err := h.registry.ListLogsAfter(tenantID, cursor)
			if err != nil {
				appLogger.Warnf("查询增量审计日志失败 tenant=%s: %v", tenantID, err)
				continue
			}
			for _, entry := range entries {
				if err := h.write(conn, entry); err != nil {
					return
				}
				if entry.ID > cursor {
					cursor = entry.ID
				}
			}
		}
	}
}

func (h *WebSocketHandler) write(conn *websocket.Conn, payload interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(payload)
}
