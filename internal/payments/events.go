package payments

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"renewal-service/internal/apperr"
)

const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
	EventPaymentSucceeded  = "payment_intent.succeeded"
)

// Event is one payment-provider notification.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes a webhook body. Anything that is not a JSON object is a ValidationError.
func ParseEvent(payload []byte) (Event, error) {
	var ev Event
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Event{}, &apperr.ValidationError{Field: "body", Reason: "expected a JSON object"}
	}
	if err := json.Unmarshal(trimmed, &ev); err != nil {
		return Event{}, &apperr.ValidationError{Field: "body", Reason: err.Error()}
	}
	ev.Type = strings.TrimSpace(ev.Type)
	return ev, nil
}

// EventKey identifies an event for deduplication, hashing the payload when the provider sent no id.
func EventKey(ev Event, payload []byte) string {
	if id := strings.TrimSpace(ev.ID); id != "" {
		return id
	}
	sum := sha256.Sum256(payload)
	return "hash:" + hex.EncodeToString(sum[:])
}

// CheckoutSession is the part of a checkout session object the reconciler reads.
type CheckoutSession struct {
	ID              string `json:"id"`
	CustomerEmail   string `json:"customer_email"`
	CustomerDetails *struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	PaymentIntent expandableID `json:"payment_intent"`
	AmountTotal   int64        `json:"amount_total"`
	Currency      string       `json:"currency"`
}

// Email returns the payer address, preferring customer_email.
func (s CheckoutSession) Email() string {
	if e := strings.TrimSpace(s.CustomerEmail); e != "" {
		return strings.ToLower(e)
	}
	if s.CustomerDetails != nil {
		return strings.ToLower(strings.TrimSpace(s.CustomerDetails.Email))
	}
	return ""
}

func decodeSession(ev Event) (CheckoutSession, error) {
	var s CheckoutSession
	if len(ev.Data.Object) == 0 {
		return s, &apperr.ValidationError{Field: "data.object", Reason: "missing"}
	}
	if err := json.Unmarshal(ev.Data.Object, &s); err != nil {
		return s, &apperr.ValidationError{Field: "data.object", Reason: err.Error()}
	}
	return s, nil
}

// expandableID accepts either a bare id string or an expanded object carrying "id".
type expandableID string

func (e *expandableID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*e = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = expandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("payment_intent: %w", err)
	}
	*e = expandableID(obj.ID)
	return nil
}
