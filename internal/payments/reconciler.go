package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"renewal-service/internal/apperr"
	"renewal-service/internal/logging"
	"renewal-service/internal/metrics"
	"renewal-service/internal/models"
	"renewal-service/internal/subscription"
)

const ProviderStripe = "stripe"

// Outcome is what reconciling one event did.
type Outcome string

const (
	OutcomePaid      Outcome = "paid"
	OutcomeExpired   Outcome = "expired"
	OutcomeNoop      Outcome = "noop"
	OutcomeDropped   Outcome = "dropped"
	OutcomeLogged    Outcome = "logged"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
)

type SubscriptionStore interface {
	FindBySessionRef(ctx context.Context, sessionID string) (*models.Subscription, error)
	FindPendingByEmailAndPlan(ctx context.Context, email string, plan models.PlanType) (*models.Subscription, error)
	UpdateStatus(ctx context.Context, id string, to models.Status, refs models.ProviderRefs) (bool, error)
}

// EventLog keeps the audit trail of inbound events.
type EventLog interface {
	RecordWebhookEvent(ctx context.Context, ev models.WebhookEvent) (models.WebhookEvent, bool, error)
	MarkWebhookProcessed(ctx context.Context, id string, at time.Time, errMsg string) error
}

type Reconciler struct {
	store  SubscriptionStore
	events EventLog
	now    func() time.Time
	logger *logging.Logger
}

// NewReconciler builds a reconciler. events may be nil to skip the audit trail.
func NewReconciler(store SubscriptionStore, events EventLog, now func() time.Time, logger *logging.Logger) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{store: store, events: events, now: now, logger: logger}
}

// Handle parses and reconciles one raw event. A ValidationError means the body was unusable;
// any other error means reconciliation failed and the provider should retry.
func (r *Reconciler) Handle(ctx context.Context, payload []byte) (Outcome, error) {
	ev, err := ParseEvent(payload)
	if err != nil {
		return "", err
	}

	if r.events == nil {
		outcome, err := r.Apply(ctx, ev)
		return r.observe(ev, outcome, err)
	}

	stored, created, err := r.events.RecordWebhookEvent(ctx, models.WebhookEvent{
		ID:              uuid.NewString(),
		Provider:        ProviderStripe,
		ProviderEventID: EventKey(ev, payload),
		EventType:       ev.Type,
		Payload:         payload,
		ReceivedAt:      r.now(),
	})
	if err != nil {
		return "", &apperr.PersistenceError{Op: "record webhook event", Err: err}
	}
	if !created && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		r.logger.WithField("event_id", stored.ProviderEventID).Info("Webhook event already processed")
		return r.observe(ev, OutcomeDuplicate, nil)
	}

	outcome, applyErr := r.Apply(ctx, ev)
	errMsg := ""
	if applyErr != nil {
		errMsg = applyErr.Error()
	}
	if err := r.events.MarkWebhookProcessed(ctx, stored.ID, r.now(), errMsg); err != nil {
		r.logger.Errorf("Failed to mark webhook event %s processed: %v", stored.ProviderEventID, err)
	}
	return r.observe(ev, outcome, applyErr)
}

// Apply reconciles an already parsed event.
func (r *Reconciler) Apply(ctx context.Context, ev Event) (Outcome, error) {
	switch ev.Type {
	case EventCheckoutCompleted:
		return r.checkoutCompleted(ctx, ev)
	case EventCheckoutExpired:
		return r.checkoutExpired(ctx, ev)
	case EventPaymentSucceeded:
		r.logger.WithField("event_id", ev.ID).Info("Payment intent succeeded")
		return OutcomeLogged, nil
	default:
		r.logger.WithFields(logrus.Fields{"event_id": ev.ID, "type": ev.Type}).Info("Unhandled payment event type")
		return OutcomeIgnored, nil
	}
}

func (r *Reconciler) checkoutCompleted(ctx context.Context, ev Event) (Outcome, error) {
	sess, err := decodeSession(ev)
	if err != nil {
		return "", err
	}
	log := r.logger.WithFields(logrus.Fields{"event_id": ev.ID, "session_id": sess.ID})

	email := sess.Email()
	if email == "" {
		log.Warn("Checkout completed without payer email, dropping")
		return OutcomeDropped, nil
	}

	if sess.ID != "" {
		existing, err := r.store.FindBySessionRef(ctx, sess.ID)
		if err != nil {
			return "", err
		}
		if existing != nil {
			log.WithField("subscription_id", existing.ID).Info("Checkout session already reconciled")
			return OutcomeNoop, nil
		}
	}

	plan := subscription.PlanForAmount(sess.AmountTotal)
	pending, err := r.store.FindPendingByEmailAndPlan(ctx, email, plan)
	if err != nil {
		return "", err
	}
	if pending == nil {
		log.WithFields(logrus.Fields{"email": email, "plan": plan}).Warn("No pending subscription for checkout, dropping")
		return OutcomeDropped, nil
	}

	refs := models.ProviderRefs{SessionID: sess.ID, PaymentIntentID: string(sess.PaymentIntent)}
	changed, err := r.store.UpdateStatus(ctx, pending.ID, models.StatusPaid, refs)
	if errors.Is(err, apperr.ErrInvalidTransition) {
		log.WithField("subscription_id", pending.ID).Warnf("Subscription left pending before payment was applied: %v", err)
		return OutcomeDropped, nil
	}
	if err != nil {
		return "", err
	}
	if !changed {
		return OutcomeNoop, nil
	}
	log.WithFields(logrus.Fields{"subscription_id": pending.ID, "plan": plan}).Info("Subscription paid")
	return OutcomePaid, nil
}

func (r *Reconciler) checkoutExpired(ctx context.Context, ev Event) (Outcome, error) {
	sess, err := decodeSession(ev)
	if err != nil {
		return "", err
	}
	email := sess.Email()
	if email == "" {
		return OutcomeDropped, nil
	}

	pending, err := r.store.FindPendingByEmailAndPlan(ctx, email, subscription.PlanForAmount(sess.AmountTotal))
	if err != nil {
		return "", err
	}
	if pending == nil {
		return OutcomeDropped, nil
	}
	changed, err := r.store.UpdateStatus(ctx, pending.ID, models.StatusExpired, models.ProviderRefs{})
	if errors.Is(err, apperr.ErrInvalidTransition) {
		return OutcomeDropped, nil
	}
	if err != nil {
		return "", err
	}
	if !changed {
		return OutcomeNoop, nil
	}
	r.logger.WithFields(logrus.Fields{"event_id": ev.ID, "subscription_id": pending.ID}).Info("Checkout expired, subscription expired")
	return OutcomeExpired, nil
}

func (r *Reconciler) observe(ev Event, outcome Outcome, err error) (Outcome, error) {
	label := ev.Type
	switch label {
	case EventCheckoutCompleted, EventCheckoutExpired, EventPaymentSucceeded:
	default:
		label = "other"
	}
	result := string(outcome)
	if err != nil {
		result = "error"
	}
	metrics.WebhookEventsTotal.WithLabelValues(label, result).Inc()
	return outcome, err
}
