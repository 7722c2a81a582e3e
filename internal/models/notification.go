package models

import "time"

// NotificationRecord is one reminder actually sent. Rows are append-only.
type NotificationRecord struct {
	ID            string    `json:"id"`
	SubscriberID  string    `json:"cliente_id"`
	OwnerID       string    `json:"usuario_id"`
	DaysRemaining int       `json:"dias_restantes"`
	Tier          Tier      `json:"tier"`
	SentAt        time.Time `json:"created_at"`
}
