package models

import "time"

type PlanType string

const (
	PlanMonthly  PlanType = "monthly"
	PlanAnnual   PlanType = "annual"
	PlanLifetime PlanType = "lifetime"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// ProviderRefs are the payment-provider references attached on payment.
type ProviderRefs struct {
	SessionID       string `json:"stripe_session_id,omitempty"`
	PaymentIntentID string `json:"stripe_payment_intent_id,omitempty"`
}

type Subscription struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id,omitempty"`
	Email           string     `json:"user_email"`
	PlanType        PlanType   `json:"plan_type"`
	PlanName        string     `json:"plan_name"`
	Amount          int64      `json:"amount"`
	Currency        string     `json:"currency"`
	Status          Status     `json:"status"`
	SessionID       *string    `json:"stripe_session_id,omitempty"`
	PaymentIntentID *string    `json:"stripe_payment_intent_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// StatusChange is a compare-and-set status write: it applies only while the row is still in From.
type StatusChange struct {
	ID        string
	From      Status
	To        Status
	Refs      ProviderRefs
	At        time.Time
	ExpiresAt *time.Time
}
