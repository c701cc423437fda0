package postgres

import (
	"context"
	"fmt"

	"github.com/saracrm/courier/internal/core/domain"
)

// RetryQueueRepo implements storage.RetryQueueRepository using PostgreSQL.
type RetryQueueRepo struct {
	db *DB
}

// NewRetryQueueRepo creates a new PostgreSQL retry queue repository.
func NewRetryQueueRepo(db *DB) *RetryQueueRepo {
	return &RetryQueueRepo{db: db}
}

// Insert creates a new pending entry.
func (r *RetryQueueRepo) Insert(ctx context.Context, e *domain.RetryQueueEntry) error {
	query := `
		INSERT INTO retry_queue (recipient_phone, message_type, payload, context, attempts, max_attempts, last_error, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`
	maxAttempts := e.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}

	_, err := r.db.ExecContext(
		ctx,
		query,
		e.RecipientPhone,
		e.MessageType,
		e.Payload,
		e.Context,
		e.Attempts,
		maxAttempts,
		e.LastError,
		domain.RetryEntryPending,
	)
	if err != nil {
		return fmt.Errorf("failed to insert retry queue entry: %w", err)
	}
	return nil
}

// GetPending returns up to limit eligible entries, oldest first.
func (r *RetryQueueRepo) GetPending(ctx context.Context, limit int) ([]*domain.RetryQueueEntry, error) {
	query := `
		SELECT id, recipient_phone, message_type, payload, context, attempts, max_attempts, last_error, status, created_at, last_attempt_at, resolved_at
		FROM retry_queue
		WHERE status = 'pending' AND attempts < max_attempts
		ORDER BY created_at ASC
		LIMIT $1
	`

	var entries []*domain.RetryQueueEntry
	if err := r.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("failed to get pending entries: %w", err)
	}
	return entries, nil
}

// MarkDelivered terminates an entry as delivered.
func (r *RetryQueueRepo) MarkDelivered(ctx context.Context, id string, attempts int) error {
	query := `
		UPDATE retry_queue
		SET status = 'delivered', attempts = $2, last_attempt_at = NOW(), resolved_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	_, err := r.db.ExecContext(ctx, query, id, attempts)
	return err
}

// MarkFailedPermanent terminates an entry after exhausting attempts.
func (r *RetryQueueRepo) MarkFailedPermanent(ctx context.Context, id string, attempts int, lastError string) error {
	query := `
		UPDATE retry_queue
		SET status = 'failed_permanent', attempts = $2, last_error = $3, last_attempt_at = NOW(), resolved_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	_, err := r.db.ExecContext(ctx, query, id, attempts, truncate(lastError, domain.MaxErrorLen))
	return err
}

// RecordAttempt persists a failed attempt, leaving the entry pending.
func (r *RetryQueueRepo) RecordAttempt(ctx context.Context, id string, attempts int, lastError string) error {
	query := `
		UPDATE retry_queue
		SET attempts = $2, last_error = $3, last_attempt_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	_, err := r.db.ExecContext(ctx, query, id, attempts, truncate(lastError, domain.MaxErrorLen))
	return err
}

// CountByStatus returns entry counts keyed by status.
func (r *RetryQueueRepo) CountByStatus(ctx context.Context) (map[domain.RetryEntryStatus]int, error) {
	query := `SELECT status, COUNT(*) AS count FROM retry_queue GROUP BY status`

	var rows []struct {
		Status domain.RetryEntryStatus `db:"status"`
		Count  int                     `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to count retry queue entries: %w", err)
	}

	counts := make(map[domain.RetryEntryStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
