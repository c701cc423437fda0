package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/saracrm/courier/internal/core/domain"
)

// DeliveryRepo implements storage.DeliveryRepository using PostgreSQL.
type DeliveryRepo struct {
	db *DB
}

// NewDeliveryRepo creates a new PostgreSQL delivery log repository.
func NewDeliveryRepo(db *DB) *DeliveryRepo {
	return &DeliveryRepo{db: db}
}

// Insert writes one settled delivery record.
func (r *DeliveryRepo) Insert(ctx context.Context, d *domain.WebhookDelivery) error {
	query := `
		INSERT INTO webhook_deliveries (webhook_id, event, payload, status, attempts, response_status, response_body, response_time_ms, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	`
	_, err := r.db.ExecContext(
		ctx,
		query,
		d.WebhookID,
		d.Event,
		d.Payload,
		d.Status,
		d.Attempts,
		d.ResponseStatus,
		truncate(d.ResponseBody, domain.MaxResponseBodyLen),
		d.ResponseTimeMs,
		truncate(d.Error, domain.MaxErrorLen),
	)
	if err != nil {
		return fmt.Errorf("failed to insert webhook delivery: %w", err)
	}
	return nil
}

// RecentByWebhook returns the newest limit deliveries for a webhook.
func (r *DeliveryRepo) RecentByWebhook(ctx context.Context, webhookID string, limit int) ([]*domain.WebhookDelivery, error) {
	query := `
		SELECT id, webhook_id, event, payload, status, attempts, response_status, response_body, response_time_ms, error, created_at
		FROM webhook_deliveries
		WHERE webhook_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	var deliveries []*domain.WebhookDelivery
	if err := r.db.SelectContext(ctx, &deliveries, query, webhookID, limit); err != nil {
		return nil, fmt.Errorf("failed to get recent deliveries: %w", err)
	}
	return deliveries, nil
}

// Count returns total delivery rows.
func (r *DeliveryRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM webhook_deliveries`); err != nil {
		return 0, fmt.Errorf("failed to count deliveries: %w", err)
	}
	return count, nil
}

// DeleteOlderThan prunes delivery rows created before the cutoff.
func (r *DeliveryRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM webhook_deliveries WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune deliveries: %w", err)
	}
	return res.RowsAffected()
}
