package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"renewal-service/internal/logging"
	"renewal-service/internal/models"
)

const (
	maxConnectionsPerOwner = 10
	writeWait              = 5 * time.Second
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Hub fans reminder events out to the websocket connections of their owning account.
type Hub struct {
	connections map[string]map[Conn]bool // ownerID -> set of connections
	mutex       sync.Mutex
	logger      *logging.Logger
}

func NewHub(logger *logging.Logger) *Hub {
	return &Hub{connections: make(map[string]map[Conn]bool), logger: logger}
}

// AddConnection registers conn for ownerID. It reports false when the owner is at the limit.
func (h *Hub) AddConnection(ownerID string, conn Conn) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, exists := h.connections[ownerID]; !exists {
		h.connections[ownerID] = make(map[Conn]bool)
	}
	if len(h.connections[ownerID]) >= maxConnectionsPerOwner {
		h.logger.Warnf("Max connections reached for owner %s", ownerID)
		return false
	}
	h.connections[ownerID][conn] = true
	h.logger.Infof("Added WebSocket connection for owner %s (total: %d)", ownerID, len(h.connections[ownerID]))
	return true
}

func (h *Hub) RemoveConnection(ownerID string, conn Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if conns, exists := h.connections[ownerID]; exists {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.connections, ownerID)
		}
		h.logger.Infof("Removed WebSocket connection for owner %s (remaining: %d)", ownerID, len(conns))
	}
}

// SendToOwner writes message to every connection of ownerID, dropping connections that fail.
func (h *Hub) SendToOwner(ownerID string, message []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	conns, exists := h.connections[ownerID]
	if !exists {
		return
	}
	for conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Errorf("Failed to send WebSocket message to owner %s: %v", ownerID, err)
			_ = conn.Close()
			delete(conns, conn)
		}
	}
	if len(conns) == 0 {
		delete(h.connections, ownerID)
	}
}

// ReminderEvent is the message pushed to owners when one of their customers is reminded.
type ReminderEvent struct {
	Type          string      `json:"type"`
	SubscriberID  string      `json:"cliente_id"`
	Name          string      `json:"nombre"`
	Email         string      `json:"email"`
	DaysRemaining int         `json:"dias_restantes"`
	Tier          models.Tier `json:"tier"`
	SentAt        time.Time   `json:"created_at"`
}

// Publish implements the sweep's publisher.
func (h *Hub) Publish(sub models.Subscriber, rec models.NotificationRecord) {
	if rec.OwnerID == "" {
		return
	}
	msg, err := json.Marshal(ReminderEvent{
		Type:          "subscription_reminder",
		SubscriberID:  sub.ID,
		Name:          sub.Name,
		Email:         sub.Email,
		DaysRemaining: rec.DaysRemaining,
		Tier:          rec.Tier,
		SentAt:        rec.SentAt,
	})
	if err != nil {
		h.logger.Errorf("Failed to encode reminder event: %v", err)
		return
	}
	h.SendToOwner(rec.OwnerID, msg)
}
