package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/saracrm/courier/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	counts  map[string]int
	getErr  error
	setErr  error
	lastTTL time.Duration
}

func (f *fakeStore) GetInt(ctx context.Context, key string) (int, error) {
	if f.getErr != nil {
		return 0, f.getErr
	}
	return f.counts[key], nil
}

func (f *fakeStore) SetInt(ctx context.Context, key string, value int, ttl time.Duration) error {
	if f.setErr != nil {
		return f.setErr
	}
	if f.counts == nil {
		f.counts = map[string]int{}
	}
	f.counts[key] = value
	f.lastTTL = ttl
	return nil
}

type fakeSink struct {
	deferred []domain.OutboundMessage
	reasons  []string
}

func (f *fakeSink) Defer(ctx context.Context, msg domain.OutboundMessage, reason string) {
	f.deferred = append(f.deferred, msg)
	f.reasons = append(f.reasons, reason)
}

func testMessage() domain.OutboundMessage {
	return domain.OutboundMessage{
		Recipient: "5215512345678",
		Type:      domain.MessageTypeText,
		Payload:   []byte(`{"body":"hola"}`),
		Context:   "appointment reminder",
	}
}

func TestDo_UnderLimitSends(t *testing.T) {
	store := &fakeStore{counts: map[string]int{}}
	sink := &fakeSink{}
	l := New(store, sink, "meta", 75, time.Minute)

	var sent bool
	out, err := l.Do(context.Background(), testMessage(), func(ctx context.Context) error {
		sent = true
		return nil
	})

	require.NoError(t, err)
	assert.False(t, out.RateLimited)
	assert.True(t, sent)
	assert.Empty(t, sink.deferred, "sink is only for overflow")

	// Counter incremented with a TTL past the window.
	key := l.counterKey(time.Now())
	assert.Equal(t, 1, store.counts[key])
	assert.Greater(t, store.lastTTL, time.Minute)
}

func TestDo_AtLimitDefers(t *testing.T) {
	store := &fakeStore{counts: map[string]int{}}
	sink := &fakeSink{}
	l := New(store, sink, "meta", 75, time.Minute)
	store.counts[l.counterKey(time.Now())] = 75

	var sent bool
	out, err := l.Do(context.Background(), testMessage(), func(ctx context.Context) error {
		sent = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, out.RateLimited)
	assert.False(t, sent, "underlying call must not be made")
	require.Len(t, sink.deferred, 1)
	assert.Equal(t, "5215512345678", sink.deferred[0].Recipient)
	assert.Contains(t, sink.reasons[0], "rate_limit")
}

func TestDo_StoreReadErrorFailsOpen(t *testing.T) {
	store := &fakeStore{getErr: errors.New("store unavailable")}
	sink := &fakeSink{}
	l := New(store, sink, "meta", 75, time.Minute)

	var sent bool
	out, err := l.Do(context.Background(), testMessage(), func(ctx context.Context) error {
		sent = true
		return nil
	})

	require.NoError(t, err)
	assert.False(t, out.RateLimited)
	assert.True(t, sent, "infrastructure failure must not block delivery")
	assert.Empty(t, sink.deferred, "sink is never invoked for limiter failures")
}

func TestDo_StoreWriteErrorStillSends(t *testing.T) {
	store := &fakeStore{counts: map[string]int{}, setErr: errors.New("write refused")}
	sink := &fakeSink{}
	l := New(store, sink, "meta", 75, time.Minute)

	var sent bool
	_, err := l.Do(context.Background(), testMessage(), func(ctx context.Context) error {
		sent = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, sent)
	assert.Empty(t, sink.deferred)
}

func TestDo_SendErrorPropagates(t *testing.T) {
	store := &fakeStore{counts: map[string]int{}}
	l := New(store, &fakeSink{}, "meta", 75, time.Minute)

	sendErr := errors.New("HTTP 500")
	_, err := l.Do(context.Background(), testMessage(), func(ctx context.Context) error {
		return sendErr
	})
	assert.ErrorIs(t, err, sendErr)
}

func TestCounterKey_BucketsByWindow(t *testing.T) {
	l := New(&fakeStore{}, &fakeSink{}, "meta", 75, time.Minute)

	base := time.Date(2025, 3, 1, 10, 30, 5, 0, time.UTC)
	sameBucket := base.Add(30 * time.Second)
	nextBucket := base.Add(time.Minute)

	assert.Equal(t, l.counterKey(base), l.counterKey(sameBucket))
	assert.NotEqual(t, l.counterKey(base), l.counterKey(nextBucket))
}
