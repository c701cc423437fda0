package storage

import (
	"context"
	"errors"
	"time"

	"github.com/saracrm/courier/internal/core/domain"
)

var (
	// ErrWebhookNotFound is returned when a webhook config doesn't exist.
	ErrWebhookNotFound = errors.New("webhook not found")
)

// RetryQueueRepository handles durable storage for deferred sends.
type RetryQueueRepository interface {
	// Insert creates a new pending entry.
	Insert(ctx context.Context, e *domain.RetryQueueEntry) error

	// GetPending returns up to limit pending entries with attempts left,
	// oldest first.
	GetPending(ctx context.Context, limit int) ([]*domain.RetryQueueEntry, error)

	// MarkDelivered terminates an entry as delivered.
	MarkDelivered(ctx context.Context, id string, attempts int) error

	// MarkFailedPermanent terminates an entry after exhausting attempts.
	MarkFailedPermanent(ctx context.Context, id string, attempts int, lastError string) error

	// RecordAttempt persists a failed attempt, leaving the entry pending.
	RecordAttempt(ctx context.Context, id string, attempts int, lastError string) error

	// CountByStatus returns entry counts keyed by status.
	CountByStatus(ctx context.Context) (map[domain.RetryEntryStatus]int, error)
}

// WebhookRepository handles webhook endpoint configuration.
type WebhookRepository interface {
	// GetActive returns all active webhook configs.
	GetActive(ctx context.Context) ([]*domain.WebhookConfig, error)

	// GetAll returns every config, active or not.
	GetAll(ctx context.Context) ([]*domain.WebhookConfig, error)

	// Create inserts a config and returns it with generated fields set.
	Create(ctx context.Context, w *domain.WebhookConfig) (*domain.WebhookConfig, error)

	// Update replaces the mutable fields of a config.
	Update(ctx context.Context, w *domain.WebhookConfig) error

	// Delete removes a config.
	Delete(ctx context.Context, id string) error
}

// DeliveryRepository handles the webhook delivery log.
type DeliveryRepository interface {
	// Insert writes one settled delivery record.
	Insert(ctx context.Context, d *domain.WebhookDelivery) error

	// RecentByWebhook returns the newest limit deliveries for a webhook.
	RecentByWebhook(ctx context.Context, webhookID string, limit int) ([]*domain.WebhookDelivery, error)

	// Count returns total delivery rows.
	Count(ctx context.Context) (int, error)

	// DeleteOlderThan prunes delivery rows created before the cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
