package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/saracrm/courier/internal/core/domain"
	"github.com/saracrm/courier/internal/infra/storage"
)

// ErrInvalidConfig is returned when a config fails validation.
var ErrInvalidConfig = errors.New("invalid webhook config")

// Service manages webhook endpoint configuration and exposes delivery stats.
// Every mutation invalidates the dispatcher's config cache.
type Service struct {
	repo       storage.WebhookRepository
	deliveries storage.DeliveryRepository
	cache      *ConfigCache
	logger     *slog.Logger
}

// NewService creates a webhook config service.
func NewService(repo storage.WebhookRepository, deliveries storage.DeliveryRepository, cache *ConfigCache, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		deliveries: deliveries,
		cache:      cache,
		logger:     logger.With("component", "webhook_service"),
	}
}

// List returns every configured endpoint.
func (s *Service) List(ctx context.Context) ([]*domain.WebhookConfig, error) {
	return s.repo.GetAll(ctx)
}

// Create registers a new endpoint. A signing secret is generated when the
// caller does not supply one.
func (s *Service) Create(ctx context.Context, w *domain.WebhookConfig) (*domain.WebhookConfig, error) {
	if err := validate(w); err != nil {
		return nil, err
	}

	if w.Secret == "" {
		secret, err := GenerateSecret()
		if err != nil {
			return nil, fmt.Errorf("generating webhook secret: %w", err)
		}
		w.Secret = secret
	}

	created, err := s.repo.Create(ctx, w)
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx)
	s.logger.Info("webhook created", "webhook_id", created.ID, "url", created.URL)
	return created, nil
}

// Update replaces an endpoint's configuration.
func (s *Service) Update(ctx context.Context, w *domain.WebhookConfig) error {
	if err := validate(w); err != nil {
		return err
	}

	if err := s.repo.Update(ctx, w); err != nil {
		return err
	}

	s.cache.Invalidate(ctx)
	s.logger.Info("webhook updated", "webhook_id", w.ID)
	return nil
}

// Delete removes an endpoint.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.cache.Invalidate(ctx)
	s.logger.Info("webhook deleted", "webhook_id", id)
	return nil
}

// Stats aggregates the newest limit deliveries for one endpoint.
func (s *Service) Stats(ctx context.Context, webhookID string, limit int) (*domain.DeliveryStats, error) {
	if limit <= 0 {
		limit = 100
	}

	deliveries, err := s.deliveries.RecentByWebhook(ctx, webhookID, limit)
	if err != nil {
		return nil, err
	}

	stats := &domain.DeliveryStats{WebhookID: webhookID, TotalDeliveries: len(deliveries)}
	if len(deliveries) == 0 {
		return stats, nil
	}

	var totalMs, timed int64
	for _, d := range deliveries {
		if d.Status == domain.DeliverySuccess {
			stats.Successful++
		} else {
			stats.Failed++
		}
		// Transport failures never got a response; a zero time would drag
		// the average down.
		if d.ResponseTimeMs > 0 {
			totalMs += d.ResponseTimeMs
			timed++
		}
	}

	stats.SuccessRate = float64(stats.Successful) / float64(stats.TotalDeliveries) * 100
	if timed > 0 {
		stats.AvgResponseTimeMs = totalMs / timed
	}

	// RecentByWebhook returns newest first.
	last := deliveries[0].CreatedAt
	stats.LastDeliveryAt = &last

	return stats, nil
}

func validate(w *domain.WebhookConfig) error {
	if w.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	u, err := url.Parse(w.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url must be a valid http(s) URL", ErrInvalidConfig)
	}
	if len(w.Events) == 0 {
		return fmt.Errorf("%w: at least one event is required", ErrInvalidConfig)
	}
	return nil
}
