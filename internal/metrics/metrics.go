package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueEnqueued counts retry-queue inserts by message type.
	QueueEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_queue_enqueued_total",
			Help: "Total sends enqueued into the retry queue",
		},
		[]string{"message_type"},
	)

	// QueueDropped counts enqueue requests discarded as non-retryable.
	QueueDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courier_queue_dropped_total",
			Help: "Total enqueue requests discarded as non-retryable",
		},
	)

	// QueueProcessed counts drained entries by outcome.
	QueueProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_queue_processed_total",
			Help: "Total retry queue entries processed by outcome",
		},
		[]string{"outcome"},
	)

	// QueuePending gauges the current pending backlog.
	QueuePending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "courier_queue_pending",
			Help: "Retry queue entries currently pending",
		},
	)

	// RateLimiterDeferred counts sends routed to the overflow sink.
	RateLimiterDeferred = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_rate_limiter_deferred_total",
			Help: "Sends deferred because the window ceiling was reached",
		},
		[]string{"api"},
	)

	// RateLimiterFailOpen counts limiter infrastructure failures.
	RateLimiterFailOpen = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_rate_limiter_fail_open_total",
			Help: "Guarded calls allowed through after a counter store failure",
		},
		[]string{"api"},
	)

	// WebhookDeliveries counts settled dispatch cycles by final status.
	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_webhook_deliveries_total",
			Help: "Webhook dispatch cycles by final status",
		},
		[]string{"event", "status"},
	)

	// WebhookDeliveryDuration tracks time from first attempt to settlement.
	WebhookDeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "courier_webhook_delivery_seconds",
			Help:    "Webhook delivery time including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event"},
	)

	// DBConnectionPoolUsage tracks open connections vs the pool cap.
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "courier_db_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
