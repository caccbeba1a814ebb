package handler

import (
	"io"
	"time"

	"github.com/cci-legal/litigation/internal/litigation/sse"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SSEHandler 草稿变更推送
type SSEHandler struct {
	hub       *sse.Hub
	heartbeat time.Duration
}

// NewSSEHandler creates a new SSE handler
func NewSSEHandler(hub *sse.Hub) *SSEHandler {
	return &SSEHandler{hub: hub, heartbeat: 30 * time.Second}
}

// Stream GET /api/v1/sse/events?token=&draft_key=
// 推送当前用户的草稿变更；指定draft_key时只推送该草稿及批量清理事件，
// 供同一表单在其他窗口打开时提示草稿已被更新
func (h *SSEHandler) Stream(c *gin.Context) {
	client := &sse.Client{
		ID:       uuid.NewString(),
		UserID:   GetUserID(c),
		DraftKey: c.Query("draft_key"),
		Events:   make(chan sse.Event, 64),
	}
	h.hub.Register(client)
	defer h.hub.Unregister(client.ID)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("connected", gin.H{"client_id": client.ID, "draft_key": client.DraftKey})
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-client.Events:
			if !ok {
				return false
			}
			c.SSEvent(ev.EventType, ev.Data)
			return true
		case <-heartbeat.C:
			_, err := io.WriteString(w, ": keepalive\n\n")
			return err == nil
		}
	})
}
