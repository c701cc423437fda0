package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/saracrm/courier/internal/core/domain"
	"github.com/saracrm/courier/internal/infra/storage"
)

const (
	configCacheKey = "webhook:configs"

	// ConfigCacheTTL bounds how stale the dispatcher's view of the
	// endpoint table can be.
	ConfigCacheTTL = 5 * time.Minute
)

// ByteStore is the KV surface the config cache needs.
type ByteStore interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ConfigCache serves active webhook configs from a KV store, falling back
// to the repository on miss. Cache failures never block a read.
type ConfigCache struct {
	repo   storage.WebhookRepository
	store  ByteStore
	logger *slog.Logger
}

// NewConfigCache creates a config cache over the given store and repository.
func NewConfigCache(repo storage.WebhookRepository, store ByteStore, logger *slog.Logger) *ConfigCache {
	return &ConfigCache{
		repo:   repo,
		store:  store,
		logger: logger.With("component", "webhook_cache"),
	}
}

// GetActive returns all active webhook configs, cached for ConfigCacheTTL.
func (c *ConfigCache) GetActive(ctx context.Context) ([]*domain.WebhookConfig, error) {
	if c.store != nil {
		data, found, err := c.store.GetBytes(ctx, configCacheKey)
		if err != nil {
			c.logger.Warn("config cache read failed", "error", err)
		} else if found {
			var configs []*domain.WebhookConfig
			if err := json.Unmarshal(data, &configs); err != nil {
				c.logger.Warn("config cache entry corrupt, refetching", "error", err)
			} else {
				return configs, nil
			}
		}
	}

	configs, err := c.repo.GetActive(ctx)
	if err != nil {
		return nil, err
	}

	if c.store != nil {
		if data, err := json.Marshal(configs); err == nil {
			if err := c.store.SetBytes(ctx, configCacheKey, data, ConfigCacheTTL); err != nil {
				c.logger.Warn("config cache write failed", "error", err)
			}
		}
	}

	return configs, nil
}

// Invalidate drops the cached config set. Called after any config mutation.
func (c *ConfigCache) Invalidate(ctx context.Context) {
	if c.store == nil {
		return
	}
	if err := c.store.Delete(ctx, configCacheKey); err != nil {
		c.logger.Warn("config cache invalidation failed", "error", err)
	}
}
