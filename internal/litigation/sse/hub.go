package sse

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Event represents a Server-Sent Event
type Event struct {
	EventType string `json:"event"`
	Data      string `json:"data"`
	DraftKey  string `json:"-"` // 为空表示涉及用户的多条草稿
}

// Client represents a connected SSE client
type Client struct {
	ID       string
	UserID   string
	DraftKey string // 非空时只接收该草稿的事件
	Events   chan Event
}

func (c *Client) wants(ev Event) bool {
	return c.DraftKey == "" || ev.DraftKey == "" || c.DraftKey == ev.DraftKey
}

// Hub manages all SSE client connections
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

// NewHub creates a new SSE Hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Register adds a new client to the hub
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.logger.Debug("SSE client registered",
		zap.String("client_id", client.ID),
		zap.String("user_id", client.UserID),
		zap.Int("total", len(h.clients)))
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Events)
		delete(h.clients, clientID)
		h.logger.Debug("SSE client unregistered",
			zap.String("client_id", clientID),
			zap.Int("total", len(h.clients)))
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SendToUser 给特定用户发送事件（而非广播）
func (h *Hub) SendToUser(userID string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.UserID != userID || !client.wants(event) {
			continue
		}
		select {
		case client.Events <- event:
		default:
			h.logger.Warn("SSE client buffer full, skipping event", zap.String("client_id", client.ID))
		}
	}
}

// PublishDraftUpdate 通知用户的其他会话草稿已变化（保存/删除/清理）
func (h *Hub) PublishDraftUpdate(userID, draftKey, action string) {
	data, _ := json.Marshal(map[string]string{
		"draft_key": draftKey,
		"action":    action,
	})
	h.SendToUser(userID, Event{
		EventType: "draft_update",
		Data:      string(data),
		DraftKey:  draftKey,
	})
}
