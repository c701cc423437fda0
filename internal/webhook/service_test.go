package webhook

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saracrm/courier/internal/core/domain"
)

func newTestService(t *testing.T) (*Service, *memWebhookRepo, *memDeliveries, *memByteStore) {
	t.Helper()
	repo := &memWebhookRepo{}
	deliveries := &memDeliveries{}
	store := newMemByteStore()
	cache := NewConfigCache(repo, store, discardLogger())
	return NewService(repo, deliveries, cache, discardLogger()), repo, deliveries, store
}

func TestServiceCreate_GeneratesSecretAndInvalidates(t *testing.T) {
	svc, _, _, store := newTestService(t)

	created, err := svc.Create(context.Background(), &domain.WebhookConfig{
		Name:   "crm sync",
		URL:    "https://example.com/hook",
		Events: []domain.EventType{domain.EventLeadCreated},
	})
	require.NoError(t, err)

	assert.Equal(t, "wh-created", created.ID)
	assert.True(t, strings.HasPrefix(created.Secret, "whsec_"))
	assert.Equal(t, 1, store.deletes)
}

func TestServiceCreate_KeepsSuppliedSecret(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	created, err := svc.Create(context.Background(), &domain.WebhookConfig{
		Name:   "crm sync",
		URL:    "https://example.com/hook",
		Events: []domain.EventType{domain.EventLeadCreated},
		Secret: "whsec_supplied",
	})
	require.NoError(t, err)
	assert.Equal(t, "whsec_supplied", created.Secret)
}

func TestServiceCreate_Validation(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	tests := []struct {
		name string
		cfg  domain.WebhookConfig
	}{
		{"missing name", domain.WebhookConfig{URL: "https://example.com", Events: []domain.EventType{domain.EventLeadCreated}}},
		{"bad url", domain.WebhookConfig{Name: "x", URL: "not a url", Events: []domain.EventType{domain.EventLeadCreated}}},
		{"non-http scheme", domain.WebhookConfig{Name: "x", URL: "ftp://example.com", Events: []domain.EventType{domain.EventLeadCreated}}},
		{"no events", domain.WebhookConfig{Name: "x", URL: "https://example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), &tt.cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestServiceUpdateAndDelete_Invalidate(t *testing.T) {
	svc, _, _, store := newTestService(t)

	created, err := svc.Create(context.Background(), &domain.WebhookConfig{
		Name:   "crm sync",
		URL:    "https://example.com/hook",
		Events: []domain.EventType{domain.EventLeadCreated},
	})
	require.NoError(t, err)

	created.Name = "renamed"
	require.NoError(t, svc.Update(context.Background(), created))
	require.NoError(t, svc.Delete(context.Background(), created.ID))

	assert.Equal(t, 3, store.deletes)
}

func TestServiceStats(t *testing.T) {
	svc, _, deliveries, _ := newTestService(t)

	status := 200
	now := time.Now()
	for i, s := range []domain.DeliveryStatus{
		domain.DeliverySuccess, domain.DeliverySuccess, domain.DeliverySuccess, domain.DeliveryFailed,
	} {
		require.NoError(t, deliveries.Insert(context.Background(), &domain.WebhookDelivery{
			WebhookID:      "wh-1",
			Event:          domain.EventLeadCreated,
			Status:         s,
			Attempts:       1,
			ResponseStatus: &status,
			ResponseTimeMs: int64(100 * (i + 1)),
			CreatedAt:      now.Add(time.Duration(i) * time.Minute),
		}))
	}

	// A transport failure with no recorded response time must not drag the
	// average down.
	require.NoError(t, deliveries.Insert(context.Background(), &domain.WebhookDelivery{
		WebhookID: "wh-1",
		Event:     domain.EventLeadCreated,
		Status:    domain.DeliveryFailed,
		Attempts:  3,
		Error:     "connection reset by peer",
		CreatedAt: now.Add(5 * time.Minute),
	}))

	stats, err := svc.Stats(context.Background(), "wh-1", 100)
	require.NoError(t, err)

	assert.Equal(t, 5, stats.TotalDeliveries)
	assert.Equal(t, 3, stats.Successful)
	assert.Equal(t, 2, stats.Failed)
	assert.InDelta(t, 60.0, stats.SuccessRate, 0.01)
	assert.Equal(t, int64(250), stats.AvgResponseTimeMs)
	require.NotNil(t, stats.LastDeliveryAt)
}

func TestServiceStats_Empty(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	stats, err := svc.Stats(context.Background(), "wh-none", 0)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalDeliveries)
	assert.Nil(t, stats.LastDeliveryAt)
}
