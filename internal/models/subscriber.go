package models

import "time"

// Subscriber is a customer record under renewal watch. It is owned by the
// record-management subsystem and never written here.
type Subscriber struct {
	ID         string    `json:"id"`
	Name       string    `json:"nombre"`
	Email      string    `json:"email"`
	AnchorDate time.Time `json:"fecha_suscripcion"`
	OwnerID    string    `json:"usuario_id"`
}

// Tier is the urgency classification of a subscriber's entitlement window.
type Tier string

const (
	TierNormal  Tier = "NORMAL"
	TierWarning Tier = "WARNING"
	TierExpired Tier = "EXPIRED"
)
