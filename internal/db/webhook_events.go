package db

import (
	"context"
	"fmt"
	"time"

	"renewal-service/internal/models"
)

// RecordWebhookEvent stores an inbound event once per (provider, provider_event_id).
// When the event was already stored it returns the existing row and created=false.
func (d *DB) RecordWebhookEvent(ctx context.Context, ev models.WebhookEvent) (models.WebhookEvent, bool, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	tag, err := d.Pool.Exec(ctx, `
        INSERT INTO payment_webhook_events (id, provider, provider_event_id, event_type, payload, received_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		ev.ID, ev.Provider, ev.ProviderEventID, ev.EventType, ev.Payload, ev.ReceivedAt)
	if err != nil {
		return models.WebhookEvent{}, false, fmt.Errorf("failed to record webhook event %s: %w", ev.ProviderEventID, err)
	}
	if tag.RowsAffected() == 1 {
		return ev, true, nil
	}

	existing := ev
	err = d.Pool.QueryRow(ctx, `
        SELECT id::text, event_type, received_at, processed_at, COALESCE(processing_error, '')
        FROM payment_webhook_events
        WHERE provider = $1 AND provider_event_id = $2`, ev.Provider, ev.ProviderEventID).
		Scan(&existing.ID, &existing.EventType, &existing.ReceivedAt, &existing.ProcessedAt, &existing.ProcessingError)
	if err != nil {
		return models.WebhookEvent{}, false, notFoundOr(err, fmt.Sprintf("failed to load webhook event %s", ev.ProviderEventID))
	}
	return existing, false, nil
}

// MarkWebhookProcessed stamps the processing outcome. An empty errMsg means success.
func (d *DB) MarkWebhookProcessed(ctx context.Context, id string, at time.Time, errMsg string) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	_, err := d.Pool.Exec(ctx, `
        UPDATE payment_webhook_events
        SET processed_at = $2, processing_error = $3
        WHERE id::text = $1`, id, at, nullable(errMsg))
	if err != nil {
		return fmt.Errorf("failed to mark webhook event %s processed: %w", id, err)
	}
	return nil
}
