// Package ratelimit guards calls to a per-window-limited external API with a
// fixed-window counter held in a shared key-value store. The ceiling is soft:
// counting is best-effort and the limiter fails open when its own
// infrastructure is unavailable.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/saracrm/courier/internal/core/domain"
	"github.com/saracrm/courier/internal/metrics"
)

// CounterStore is the slice of the shared key-value store the limiter needs.
type CounterStore interface {
	GetInt(ctx context.Context, key string) (int, error)
	SetInt(ctx context.Context, key string, value int, ttl time.Duration) error
}

// OverflowSink receives sends the limiter refused, with enough data to replay
// them later. Constructor-injected so a different deferral strategy can be
// substituted without touching the limiter.
type OverflowSink interface {
	Defer(ctx context.Context, msg domain.OutboundMessage, reason string)
}

// Outcome tells the caller what happened to the guarded call.
type Outcome struct {
	// RateLimited is true when the call was not made and the message was
	// handed to the overflow sink instead. Not an error: the caller already
	// has a replay path.
	RateLimited bool
}

// Limiter applies a fixed-window ceiling to one API identifier.
type Limiter struct {
	store  CounterStore
	sink   OverflowSink
	api    string
	limit  int
	window time.Duration
}

// DefaultLimit matches the messaging API's global per-minute ceiling.
const DefaultLimit = 75

// New creates a Limiter. window is the bucket width; counters expire shortly
// after the bucket closes.
func New(store CounterStore, sink OverflowSink, api string, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{store: store, sink: sink, api: api, limit: limit, window: window}
}

// Do performs send under the rate limit. Overflow routes msg to the sink and
// reports Outcome{RateLimited: true} without calling send. Counter-store
// failures never block delivery and never reach the sink: the limiter only
// loses strictness, not availability.
func (l *Limiter) Do(ctx context.Context, msg domain.OutboundMessage, send func(ctx context.Context) error) (Outcome, error) {
	key := l.counterKey(time.Now())

	count, err := l.store.GetInt(ctx, key)
	if err != nil {
		slog.Warn("rate limiter store read failed, failing open",
			"api", l.api, "error", err)
		metrics.RateLimiterFailOpen.WithLabelValues(l.api).Inc()
		return Outcome{}, send(ctx)
	}

	if count >= l.limit {
		slog.Info("rate limit reached, deferring send",
			"api", l.api, "count", count, "limit", l.limit,
			"recipient", msg.Recipient, "message_type", msg.Type)
		metrics.RateLimiterDeferred.WithLabelValues(l.api).Inc()
		l.sink.Defer(ctx, msg, fmt.Sprintf("rate_limit: %s ceiling reached (%d/%s)", l.api, l.limit, l.window))
		return Outcome{RateLimited: true}, nil
	}

	// Best-effort increment. Two racing invocations may both write count+1;
	// slight overcounting is acceptable for a soft ceiling.
	if err := l.store.SetInt(ctx, key, count+1, l.window+30*time.Second); err != nil {
		slog.Warn("rate limiter store write failed, failing open",
			"api", l.api, "error", err)
		metrics.RateLimiterFailOpen.WithLabelValues(l.api).Inc()
	}

	return Outcome{}, send(ctx)
}

func (l *Limiter) counterKey(now time.Time) string {
	bucket := now.Truncate(l.window).Unix()
	return fmt.Sprintf("ratelimit:%s:%d", l.api, bucket)
}
