package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"renewal-service/internal/models"
)

const subscriptionColumns = `id::text, COALESCE(user_id, ''), user_email, plan_type, plan_name, amount, currency,
               status, stripe_session_id, stripe_payment_intent_id, created_at, paid_at, expires_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (models.Subscription, error) {
	var s models.Subscription
	var plan, status string
	err := row.Scan(
		&s.ID, &s.UserID, &s.Email, &plan, &s.PlanName, &s.Amount, &s.Currency,
		&status, &s.SessionID, &s.PaymentIntentID, &s.CreatedAt, &s.PaidAt, &s.ExpiresAt, &s.UpdatedAt,
	)
	if err != nil {
		return models.Subscription{}, err
	}
	s.PlanType = models.PlanType(plan)
	s.Status = models.Status(status)
	return s, nil
}

func (d *DB) CreateSubscription(ctx context.Context, s models.Subscription) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	_, err := d.Pool.Exec(ctx, `
        INSERT INTO subscriptions (
            id, user_id, user_email, plan_type, plan_name, amount, currency, status, created_at, updated_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, nullable(s.UserID), s.Email, string(s.PlanType), s.PlanName, s.Amount, s.Currency,
		string(s.Status), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

func (d *DB) GetSubscription(ctx context.Context, id string) (models.Subscription, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	s, err := scanSubscription(d.Pool.QueryRow(ctx, `
        SELECT `+subscriptionColumns+`
        FROM subscriptions
        WHERE id::text = $1`, id))
	if err != nil {
		return models.Subscription{}, notFoundOr(err, fmt.Sprintf("failed to get subscription %s", id))
	}
	return s, nil
}

// FindSubscriptionBySession returns the subscription carrying a checkout session reference, or nil.
func (d *DB) FindSubscriptionBySession(ctx context.Context, sessionID string) (*models.Subscription, error) {
	return d.findOne(ctx, "session "+sessionID, `
        SELECT `+subscriptionColumns+`
        FROM subscriptions
        WHERE stripe_session_id = $1
        LIMIT 1`, sessionID)
}

// FindActiveSubscription returns the most recently paid subscription that has not lapsed at now.
func (d *DB) FindActiveSubscription(ctx context.Context, email string, now time.Time) (*models.Subscription, error) {
	return d.findOne(ctx, "active for "+email, `
        SELECT `+subscriptionColumns+`
        FROM subscriptions
        WHERE lower(user_email) = lower($1)
          AND status = 'paid'
          AND (expires_at IS NULL OR expires_at > $2)
        ORDER BY paid_at DESC, id DESC
        LIMIT 1`, email, now)
}

// FindPendingSubscription returns the newest pending subscription for an email and plan.
// Rows created at the same instant are ordered by id.
func (d *DB) FindPendingSubscription(ctx context.Context, email string, plan models.PlanType) (*models.Subscription, error) {
	return d.findOne(ctx, "pending for "+email, `
        SELECT `+subscriptionColumns+`
        FROM subscriptions
        WHERE lower(user_email) = lower($1)
          AND plan_type = $2
          AND status = 'pending'
        ORDER BY created_at DESC, id DESC
        LIMIT 1`, email, string(plan))
}

func (d *DB) findOne(ctx context.Context, what, query string, args ...any) (*models.Subscription, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	s, err := scanSubscription(d.Pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find subscription (%s): %w", what, err)
	}
	return &s, nil
}

// TransitionSubscription applies c only if the row is still in c.From. It reports whether a row changed.
// paid_at is written once and never overwritten.
func (d *DB) TransitionSubscription(ctx context.Context, c models.StatusChange) (bool, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	tag, err := d.Pool.Exec(ctx, `
        UPDATE subscriptions
        SET status = $3,
            stripe_session_id = COALESCE($4, stripe_session_id),
            stripe_payment_intent_id = COALESCE($5, stripe_payment_intent_id),
            paid_at = CASE WHEN $3 = 'paid' THEN COALESCE(paid_at, $6) ELSE paid_at END,
            expires_at = CASE WHEN $3 = 'paid' THEN $7 ELSE expires_at END,
            updated_at = $6
        WHERE id::text = $1 AND status = $2`,
		c.ID, string(c.From), string(c.To), nullable(c.Refs.SessionID), nullable(c.Refs.PaymentIntentID), c.At, c.ExpiresAt)
	if err != nil {
		return false, fmt.Errorf("failed to update subscription %s status: %w", c.ID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
