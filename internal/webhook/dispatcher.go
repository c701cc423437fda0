package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/saracrm/courier/internal/core/domain"
	"github.com/saracrm/courier/internal/infra/storage"
	"github.com/saracrm/courier/internal/metrics"
	"github.com/saracrm/courier/internal/resilience/classify"
)

const (
	userAgent = "Courier-Webhook/1.0"

	requestTimeout = 10 * time.Second

	// backoff between attempts against one endpoint: 1s, 2s, 4s, ... capped.
	attemptBaseDelay = 1 * time.Second
	attemptMaxDelay  = 10 * time.Second
)

// ConfigSource yields the effective endpoint set for a dispatch cycle.
type ConfigSource interface {
	GetActive(ctx context.Context) ([]*domain.WebhookConfig, error)
}

// Dispatcher fans domain events out to subscribed endpoints. Dispatch is
// fire-and-forget: each endpoint gets its own goroutine and its own retry
// loop, and every cycle settles into exactly one delivery record.
type Dispatcher struct {
	configs    ConfigSource
	deliveries storage.DeliveryRepository
	client     *http.Client
	logger     *slog.Logger
	backoff    func(attempt int) time.Duration

	wg sync.WaitGroup
}

// NewDispatcher creates a webhook dispatcher.
func NewDispatcher(configs ConfigSource, deliveries storage.DeliveryRepository, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		configs:    configs,
		deliveries: deliveries,
		client:     &http.Client{Timeout: requestTimeout},
		logger:     logger.With("component", "webhook_dispatcher"),
		backoff:    attemptDelay,
	}
}

type eventPayload struct {
	Event     domain.EventType `json:"event"`
	Timestamp string           `json:"timestamp"`
	WebhookID string           `json:"webhook_id"`
	Data      any              `json:"data"`
	Metadata  any              `json:"metadata,omitempty"`
}

// Dispatch sends the event to every active, subscribed endpoint. It never
// blocks on network I/O and never reports errors to the caller; endpoint
// failures land in the delivery log instead. Cancelling ctx after Dispatch
// returns does not abort in-flight deliveries.
func (d *Dispatcher) Dispatch(ctx context.Context, event domain.EventType, data any, metadata any) {
	configs, err := d.configs.GetActive(ctx)
	if err != nil {
		d.logger.Error("failed to load webhook configs, event not delivered",
			"event", event, "error", err)
		return
	}

	now := time.Now().UTC()
	for _, cfg := range configs {
		if !cfg.SubscribesTo(event) {
			continue
		}

		d.wg.Add(1)
		go func(cfg *domain.WebhookConfig) {
			defer d.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("webhook delivery panicked",
						"webhook_id", cfg.ID, "event", event, "panic", r)
				}
			}()
			d.deliver(context.WithoutCancel(ctx), cfg, event, now, data, metadata)
		}(cfg)
	}
}

// Wait blocks until all in-flight deliveries settle. Used on shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// deliver runs the full attempt loop against one endpoint and writes the
// single delivery record for the cycle.
func (d *Dispatcher) deliver(ctx context.Context, cfg *domain.WebhookConfig, event domain.EventType, ts time.Time, data, metadata any) {
	body, err := json.Marshal(eventPayload{
		Event:     event,
		Timestamp: ts.Format(time.RFC3339),
		WebhookID: cfg.ID,
		Data:      data,
		Metadata:  metadata,
	})
	if err != nil {
		d.logger.Error("failed to encode webhook payload",
			"webhook_id", cfg.ID, "event", event, "error", err)
		return
	}

	maxAttempts := cfg.RetryCount
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	delivery := &domain.WebhookDelivery{
		WebhookID: cfg.ID,
		Event:     event,
		Payload:   body,
		Status:    domain.DeliveryFailed,
	}

	start := time.Now()
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		delivery.Attempts = attempt

		status, respBody, elapsed, err := d.post(ctx, cfg, event, ts, body)
		delivery.ResponseTimeMs = elapsed.Milliseconds()
		if status != 0 {
			s := status
			delivery.ResponseStatus = &s
			delivery.ResponseBody = respBody
		}

		if err == nil {
			delivery.Status = domain.DeliverySuccess
			delivery.Error = ""
			break
		}

		delivery.Error = err.Error()
		if attempt == maxAttempts || permanentDeliveryError(err) {
			break
		}

		delay := d.backoff(attempt)
		d.logger.Debug("webhook attempt failed, retrying",
			"webhook_id", cfg.ID, "event", event,
			"attempt", attempt, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			delivery.Error = ctx.Err().Error()
			attempt = maxAttempts
		case <-time.After(delay):
		}
	}

	metrics.WebhookDeliveries.WithLabelValues(string(event), string(delivery.Status)).Inc()
	metrics.WebhookDeliveryDuration.WithLabelValues(string(event)).Observe(time.Since(start).Seconds())

	if delivery.Status == domain.DeliverySuccess {
		d.logger.Info("webhook delivered",
			"webhook_id", cfg.ID, "event", event, "attempts", delivery.Attempts)
	} else {
		d.logger.Warn("webhook delivery failed",
			"webhook_id", cfg.ID, "event", event,
			"attempts", delivery.Attempts, "error", delivery.Error)
	}

	if err := d.deliveries.Insert(ctx, delivery); err != nil {
		d.logger.Error("failed to record webhook delivery",
			"webhook_id", cfg.ID, "event", event, "error", err)
	}
}

// post sends one signed request. A non-2xx response comes back as a
// *classify.HTTPError so the attempt loop can tell permanent from transient.
func (d *Dispatcher) post(ctx context.Context, cfg *domain.WebhookConfig, event domain.EventType, ts time.Time, body []byte) (status int, respBody string, elapsed time.Duration, err error) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, "", 0, fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Webhook-Event", string(event))
	req.Header.Set("X-Webhook-Timestamp", ts.Format(time.RFC3339))
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	if cfg.Secret != "" {
		req.Header.Set("X-Webhook-Signature", Sign(cfg.Secret, body))
	}

	begin := time.Now()
	resp, err := d.client.Do(req)
	elapsed = time.Since(begin)
	if err != nil {
		return 0, "", elapsed, err
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, domain.MaxResponseBodyLen))
	respBody = string(snippet)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, respBody, elapsed, nil
	}
	return resp.StatusCode, respBody, elapsed, &classify.HTTPError{Status: resp.StatusCode, Body: respBody}
}

// permanentDeliveryError reports whether the endpoint's answer rules out a
// retry: a client error other than 429. Everything else, including transport
// faults the classifier has no name for, consumes one retry — the endpoint
// may simply be mid-deploy.
func permanentDeliveryError(err error) bool {
	if status, ok := classify.Status(err); ok {
		return status >= 400 && status < 500 && status != http.StatusTooManyRequests
	}
	return false
}

func attemptDelay(attempt int) time.Duration {
	exp := float64(attemptBaseDelay) * math.Pow(2, float64(attempt-1))
	return time.Duration(math.Min(exp, float64(attemptMaxDelay)))
}
