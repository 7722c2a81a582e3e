package db

import (
	"context"
	"fmt"
	"time"

	"renewal-service/internal/models"
)

const subscriberColumns = `id::text, nombre, COALESCE(email, ''), fecha_suscripcion, COALESCE(usuario_id::text, '')`

// scanSubscriber reads one clientes row. A missing fecha_suscripcion leaves AnchorDate zero.
func scanSubscriber(row rowScanner) (models.Subscriber, error) {
	var s models.Subscriber
	var anchor *time.Time
	if err := row.Scan(&s.ID, &s.Name, &s.Email, &anchor, &s.OwnerID); err != nil {
		return models.Subscriber{}, err
	}
	if anchor != nil {
		s.AnchorDate = *anchor
	}
	return s, nil
}

// ListSubscribers returns every customer, oldest anchor first and customers without one last.
func (d *DB) ListSubscribers(ctx context.Context) ([]models.Subscriber, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	rows, err := d.Pool.Query(ctx, `
        SELECT `+subscriberColumns+`
        FROM clientes
        ORDER BY fecha_suscripcion ASC NULLS LAST, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	defer rows.Close()

	var subscribers []models.Subscriber
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		subscribers = append(subscribers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscribers: %w", err)
	}
	return subscribers, nil
}

// GetSubscriber reads one customer record.
func (d *DB) GetSubscriber(ctx context.Context, id string) (models.Subscriber, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	s, err := scanSubscriber(d.Pool.QueryRow(ctx, `
        SELECT `+subscriberColumns+`
        FROM clientes
        WHERE id::text = $1`, id))
	if err != nil {
		return models.Subscriber{}, notFoundOr(err, fmt.Sprintf("failed to get subscriber %s", id))
	}
	return s, nil
}
