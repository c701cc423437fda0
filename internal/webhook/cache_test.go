package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saracrm/courier/internal/core/domain"
	"github.com/saracrm/courier/internal/infra/storage"
)

type memWebhookRepo struct {
	configs     []*domain.WebhookConfig
	activeCalls int
	err         error
}

func (m *memWebhookRepo) GetActive(ctx context.Context) ([]*domain.WebhookConfig, error) {
	m.activeCalls++
	return m.configs, m.err
}

func (m *memWebhookRepo) GetAll(ctx context.Context) ([]*domain.WebhookConfig, error) {
	return m.configs, m.err
}

func (m *memWebhookRepo) Create(ctx context.Context, w *domain.WebhookConfig) (*domain.WebhookConfig, error) {
	if m.err != nil {
		return nil, m.err
	}
	created := *w
	created.ID = "wh-created"
	created.CreatedAt = time.Now()
	m.configs = append(m.configs, &created)
	return &created, nil
}

func (m *memWebhookRepo) Update(ctx context.Context, w *domain.WebhookConfig) error {
	if m.err != nil {
		return m.err
	}
	for i, c := range m.configs {
		if c.ID == w.ID {
			m.configs[i] = w
			return nil
		}
	}
	return storage.ErrWebhookNotFound
}

func (m *memWebhookRepo) Delete(ctx context.Context, id string) error {
	if m.err != nil {
		return m.err
	}
	for i, c := range m.configs {
		if c.ID == id {
			m.configs = append(m.configs[:i], m.configs[i+1:]...)
			return nil
		}
	}
	return storage.ErrWebhookNotFound
}

type memByteStore struct {
	values  map[string][]byte
	ttls    map[string]time.Duration
	getErr  error
	setErr  error
	deletes int
}

func newMemByteStore() *memByteStore {
	return &memByteStore{values: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memByteStore) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memByteStore) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memByteStore) Delete(ctx context.Context, key string) error {
	m.deletes++
	delete(m.values, key)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConfigCache_MissFillsThenHits(t *testing.T) {
	repo := &memWebhookRepo{configs: []*domain.WebhookConfig{testConfig("https://example.com/hook", domain.EventLeadCreated)}}
	store := newMemByteStore()
	cache := NewConfigCache(repo, store, discardLogger())

	first, err := cache.GetActive(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, repo.activeCalls)
	assert.Equal(t, ConfigCacheTTL, store.ttls[configCacheKey])

	second, err := cache.GetActive(context.Background())
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].URL, second[0].URL)
	assert.Equal(t, 1, repo.activeCalls, "second read must come from the cache")
}

func TestConfigCache_StoreFailureFallsBackToRepo(t *testing.T) {
	repo := &memWebhookRepo{configs: []*domain.WebhookConfig{testConfig("https://example.com/hook", domain.EventLeadCreated)}}
	store := newMemByteStore()
	store.getErr = errors.New("redis down")
	store.setErr = errors.New("redis down")
	cache := NewConfigCache(repo, store, discardLogger())

	configs, err := cache.GetActive(context.Background())
	require.NoError(t, err)
	assert.Len(t, configs, 1)
	assert.Equal(t, 1, repo.activeCalls)
}

func TestConfigCache_CorruptEntryRefetches(t *testing.T) {
	repo := &memWebhookRepo{configs: []*domain.WebhookConfig{testConfig("https://example.com/hook", domain.EventLeadCreated)}}
	store := newMemByteStore()
	store.values[configCacheKey] = []byte("not json")
	cache := NewConfigCache(repo, store, discardLogger())

	configs, err := cache.GetActive(context.Background())
	require.NoError(t, err)
	assert.Len(t, configs, 1)
	assert.Equal(t, 1, repo.activeCalls)
}

func TestConfigCache_Invalidate(t *testing.T) {
	repo := &memWebhookRepo{}
	store := newMemByteStore()
	cache := NewConfigCache(repo, store, discardLogger())

	_, err := cache.GetActive(context.Background())
	require.NoError(t, err)

	cache.Invalidate(context.Background())
	assert.Equal(t, 1, store.deletes)

	_, err = cache.GetActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, repo.activeCalls)
}
