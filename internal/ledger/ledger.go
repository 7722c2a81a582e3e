package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"renewal-service/internal/apperr"
	"renewal-service/internal/models"
)

// DefaultCooldown is the minimum gap between two reminders to the same subscriber.
const DefaultCooldown = 24 * time.Hour

type Store interface {
	LatestNotificationAt(ctx context.Context, subscriberID string) (*time.Time, error)
	InsertNotification(ctx context.Context, rec models.NotificationRecord) error
}

// Ledger is the append-only record of reminders sent.
type Ledger struct {
	store    Store
	cooldown time.Duration
}

func New(store Store, cooldown time.Duration) *Ledger {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Ledger{store: store, cooldown: cooldown}
}

func (l *Ledger) Cooldown() time.Duration { return l.cooldown }

// LastSentAt returns the newest send time for a subscriber, or nil when nothing was sent.
func (l *Ledger) LastSentAt(ctx context.Context, subscriberID string) (*time.Time, error) {
	last, err := l.store.LatestNotificationAt(ctx, subscriberID)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "ledger lookup for " + subscriberID, Err: err}
	}
	return last, nil
}

// ShouldSend reports whether the cooldown has elapsed at now. A lookup failure is returned
// as an error and never read as "cooldown active".
func (l *Ledger) ShouldSend(ctx context.Context, subscriberID string, now time.Time) (bool, error) {
	last, err := l.LastSentAt(ctx, subscriberID)
	if err != nil {
		return false, err
	}
	if last == nil {
		return true, nil
	}
	return last.Before(now.Add(-l.cooldown)), nil
}

// Record appends a new row for a reminder sent at sentAt.
func (l *Ledger) Record(ctx context.Context, sub models.Subscriber, daysRemaining int, tier models.Tier, sentAt time.Time) (models.NotificationRecord, error) {
	rec := models.NotificationRecord{
		ID:            uuid.NewString(),
		SubscriberID:  sub.ID,
		OwnerID:       sub.OwnerID,
		DaysRemaining: daysRemaining,
		Tier:          tier,
		SentAt:        sentAt,
	}
	if err := l.store.InsertNotification(ctx, rec); err != nil {
		return models.NotificationRecord{}, &apperr.PersistenceError{Op: "ledger write for " + sub.ID, Err: err}
	}
	return rec, nil
}
