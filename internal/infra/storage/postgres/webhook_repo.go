package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/saracrm/courier/internal/core/domain"
	"github.com/saracrm/courier/internal/infra/storage"
)

// WebhookRepo implements storage.WebhookRepository using PostgreSQL.
type WebhookRepo struct {
	db *DB
}

// NewWebhookRepo creates a new PostgreSQL webhook config repository.
func NewWebhookRepo(db *DB) *WebhookRepo {
	return &WebhookRepo{db: db}
}

type webhookRow struct {
	ID         string         `db:"id"`
	Name       string         `db:"name"`
	URL        string         `db:"url"`
	Events     pq.StringArray `db:"events"`
	Headers    []byte         `db:"headers"`
	Active     bool           `db:"active"`
	Secret     sql.NullString `db:"secret"`
	RetryCount int            `db:"retry_count"`
	CreatedAt  time.Time      `db:"created_at"`
}

func (row webhookRow) toDomain() (*domain.WebhookConfig, error) {
	events := make([]domain.EventType, len(row.Events))
	for i, e := range row.Events {
		events[i] = domain.EventType(e)
	}

	headers := map[string]string{}
	if len(row.Headers) > 0 {
		if err := json.Unmarshal(row.Headers, &headers); err != nil {
			return nil, fmt.Errorf("failed to decode webhook headers: %w", err)
		}
	}

	return &domain.WebhookConfig{
		ID:         row.ID,
		Name:       row.Name,
		URL:        row.URL,
		Events:     events,
		Headers:    headers,
		Active:     row.Active,
		Secret:     row.Secret.String,
		RetryCount: row.RetryCount,
		CreatedAt:  row.CreatedAt,
	}, nil
}

// GetActive returns all active webhook configs.
func (r *WebhookRepo) GetActive(ctx context.Context) ([]*domain.WebhookConfig, error) {
	return r.list(ctx, `SELECT id, name, url, events, headers, active, secret, retry_count, created_at FROM webhooks WHERE active = true`)
}

// GetAll returns every config, active or not.
func (r *WebhookRepo) GetAll(ctx context.Context) ([]*domain.WebhookConfig, error) {
	return r.list(ctx, `SELECT id, name, url, events, headers, active, secret, retry_count, created_at FROM webhooks ORDER BY created_at ASC`)
}

func (r *WebhookRepo) list(ctx context.Context, query string) ([]*domain.WebhookConfig, error) {
	var rows []webhookRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}

	configs := make([]*domain.WebhookConfig, 0, len(rows))
	for _, row := range rows {
		cfg, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// Create inserts a config and returns it with generated fields set.
func (r *WebhookRepo) Create(ctx context.Context, w *domain.WebhookConfig) (*domain.WebhookConfig, error) {
	headers, err := json.Marshal(w.Headers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook headers: %w", err)
	}

	events := make(pq.StringArray, len(w.Events))
	for i, e := range w.Events {
		events[i] = string(e)
	}

	retryCount := w.RetryCount
	if retryCount <= 0 {
		retryCount = 3
	}

	query := `
		INSERT INTO webhooks (name, url, events, headers, active, secret, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id, created_at
	`
	created := *w
	created.RetryCount = retryCount
	err = r.db.QueryRowContext(ctx, query, w.Name, w.URL, events, headers, w.Active, w.Secret, retryCount).
		Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook: %w", err)
	}
	return &created, nil
}

// Update replaces the mutable fields of a config.
func (r *WebhookRepo) Update(ctx context.Context, w *domain.WebhookConfig) error {
	headers, err := json.Marshal(w.Headers)
	if err != nil {
		return fmt.Errorf("failed to encode webhook headers: %w", err)
	}

	events := make(pq.StringArray, len(w.Events))
	for i, e := range w.Events {
		events[i] = string(e)
	}

	query := `
		UPDATE webhooks
		SET name = $2, url = $3, events = $4, headers = $5, active = $6, secret = $7, retry_count = $8
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, w.ID, w.Name, w.URL, events, headers, w.Active, w.Secret, w.RetryCount)
	if err != nil {
		return fmt.Errorf("failed to update webhook: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrWebhookNotFound
	}
	return nil
}

// Delete removes a config.
func (r *WebhookRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrWebhookNotFound
	}
	return nil
}
