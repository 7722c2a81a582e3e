package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"renewal-service/internal/models"
)

// Stored values of notificacion_tipo.
const (
	notificationExpired  = "vencida"
	notificationUpcoming = "proxima_a_vencer"
)

func tierToColumn(t models.Tier) (string, error) {
	switch t {
	case models.TierExpired:
		return notificationExpired, nil
	case models.TierWarning:
		return notificationUpcoming, nil
	default:
		return "", fmt.Errorf("tier %s is never recorded", t)
	}
}

func tierFromColumn(s string) models.Tier {
	if s == notificationExpired {
		return models.TierExpired
	}
	return models.TierWarning
}

// LatestNotificationAt returns the send time of the newest ledger row for a subscriber, or nil.
func (d *DB) LatestNotificationAt(ctx context.Context, subscriberID string) (*time.Time, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	var sentAt time.Time
	err := d.Pool.QueryRow(ctx, `
        SELECT created_at
        FROM subscription_notifications
        WHERE cliente_id = $1
        ORDER BY created_at DESC
        LIMIT 1`, subscriberID).Scan(&sentAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest notification for cliente_id %s: %w", subscriberID, err)
	}
	return &sentAt, nil
}

// InsertNotification appends a ledger row. Rows are never updated or deleted.
func (d *DB) InsertNotification(ctx context.Context, rec models.NotificationRecord) error {
	kind, err := tierToColumn(rec.Tier)
	if err != nil {
		return err
	}

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	_, err = d.Pool.Exec(ctx, `
        INSERT INTO subscription_notifications (
            id, cliente_id, usuario_id, dias_restantes, notificacion_tipo, created_at
        )
        VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.SubscriberID, rec.OwnerID, rec.DaysRemaining, kind, rec.SentAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListNotifications returns a subscriber's ledger, newest first.
func (d *DB) ListNotifications(ctx context.Context, subscriberID string, limit int) ([]models.NotificationRecord, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	rows, err := d.Pool.Query(ctx, `
        SELECT id::text, cliente_id, COALESCE(usuario_id, ''), dias_restantes, notificacion_tipo, created_at
        FROM subscription_notifications
        WHERE cliente_id = $1
        ORDER BY created_at DESC
        LIMIT $2`, subscriberID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications for cliente_id %s: %w", subscriberID, err)
	}
	defer rows.Close()

	var records []models.NotificationRecord
	for rows.Next() {
		var rec models.NotificationRecord
		var kind string
		if err := rows.Scan(&rec.ID, &rec.SubscriberID, &rec.OwnerID, &rec.DaysRemaining, &kind, &rec.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		rec.Tier = tierFromColumn(kind)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return records, nil
}
