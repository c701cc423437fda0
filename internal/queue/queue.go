// Package queue implements the durable retry queue for failed outbound
// sends. Enqueue decides whether a failure is worth keeping; the drain
// replays pending entries against the messaging API and settles each one.
package queue

import (
	"context"
	"errors"
	"log/slog"

	"github.com/saracrm/courier/internal/core/domain"
	"github.com/saracrm/courier/internal/infra/storage"
	"github.com/saracrm/courier/internal/messaging"
	"github.com/saracrm/courier/internal/metrics"
	"github.com/saracrm/courier/internal/resilience/classify"
)

// DefaultBatchSize bounds how many entries one drain run processes.
const DefaultBatchSize = 10

// EventSink receives domain events for fan-out. Satisfied by the webhook
// dispatcher.
type EventSink interface {
	Dispatch(ctx context.Context, event domain.EventType, data any, metadata any)
}

// Notifier receives permanent-failure alerts. Satisfied by the alert package.
type Notifier interface {
	PermanentFailure(ctx context.Context, entry *domain.RetryQueueEntry) error
}

// Result summarizes one drain run.
type Result struct {
	Processed       int
	Delivered       int
	FailedPermanent int
}

// Service owns the retry queue lifecycle.
type Service struct {
	repo     storage.RetryQueueRepository
	sender   messaging.Sender
	events   EventSink
	notifier Notifier
	logger   *slog.Logger
}

// NewService creates a queue service. events and notifier may be nil.
func NewService(repo storage.RetryQueueRepository, sender messaging.Sender, events EventSink, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		sender:   sender,
		events:   events,
		notifier: notifier,
		logger:   logger.With("component", "retry_queue"),
	}
}

// Enqueue records a failed send for later replay. Failures the classifier
// calls permanent are dropped: replaying a 401 or a malformed payload can
// never succeed. Enqueue itself never fails the caller; a storage error is
// logged and the message is lost, which the send path must already tolerate.
func (s *Service) Enqueue(ctx context.Context, msg *domain.OutboundMessage, cause error) {
	if cause != nil && !enqueueRetryable(cause) {
		metrics.QueueDropped.Inc()
		s.logger.Info("dropping non-retryable send",
			"recipient", msg.Recipient,
			"message_type", msg.Type,
			"error", cause)
		return
	}

	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}
	s.insert(ctx, msg, lastError)
}

// Defer records a send postponed by the rate limiter. Deferred sends are
// always retryable. Implements ratelimit.OverflowSink.
func (s *Service) Defer(ctx context.Context, msg domain.OutboundMessage, reason string) {
	s.insert(ctx, &msg, reason)
}

// enqueueRetryable classifies the causing error, falling back to a synthetic
// error rebuilt from the message text: provider failures often cross a string
// boundary and carry their HTTP status only as digits inside the message.
func enqueueRetryable(cause error) bool {
	if classify.IsRetryable(cause) {
		return true
	}
	if _, ok := classify.Status(cause); ok {
		// A typed status was already classified permanent.
		return false
	}
	return classify.IsRetryable(classify.FromMessage(cause.Error()))
}

func (s *Service) insert(ctx context.Context, msg *domain.OutboundMessage, lastError string) {
	entry := &domain.RetryQueueEntry{
		RecipientPhone: msg.Recipient,
		MessageType:    msg.Type,
		Payload:        msg.Payload,
		Context:        truncate(msg.Context, domain.MaxContextLen),
		Attempts:       0,
		MaxAttempts:    domain.DefaultMaxAttempts,
		LastError:      truncate(lastError, domain.MaxErrorLen),
		Status:         domain.RetryEntryPending,
	}

	if err := s.repo.Insert(ctx, entry); err != nil {
		s.logger.Error("failed to enqueue send for retry",
			"recipient", msg.Recipient,
			"message_type", msg.Type,
			"error", err)
		return
	}

	metrics.QueueEnqueued.WithLabelValues(string(msg.Type)).Inc()
	s.logger.Info("send queued for retry",
		"recipient", msg.Recipient,
		"message_type", msg.Type,
		"reason", lastError)
}

// ProcessPending drains up to limit pending entries, oldest first, one at a
// time. Each entry settles independently: a failure on one never stops the
// rest of the batch.
func (s *Service) ProcessPending(ctx context.Context, limit int) (Result, error) {
	if limit <= 0 {
		limit = DefaultBatchSize
	}

	entries, err := s.repo.GetPending(ctx, limit)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, entry := range entries {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Processed++

		switch s.processOne(ctx, entry) {
		case domain.RetryEntryDelivered:
			res.Delivered++
		case domain.RetryEntryFailedPermanent:
			res.FailedPermanent++
		}
	}

	s.updatePendingGauge(ctx)
	return res, nil
}

// processOne replays a single entry and returns its status after this run;
// RetryEntryPending means it stays queued for the next drain.
func (s *Service) processOne(ctx context.Context, entry *domain.RetryQueueEntry) domain.RetryEntryStatus {
	msg := &domain.OutboundMessage{
		Recipient: entry.RecipientPhone,
		Type:      entry.MessageType,
		Payload:   entry.Payload,
		Context:   entry.Context,
	}

	err := s.sender.Send(ctx, msg)
	if err == nil {
		attempts := entry.Attempts + 1
		if err := s.repo.MarkDelivered(ctx, entry.ID, attempts); err != nil {
			s.logger.Error("failed to mark entry delivered", "entry_id", entry.ID, "error", err)
		}
		metrics.QueueProcessed.WithLabelValues("delivered").Inc()
		s.logger.Info("queued send delivered",
			"entry_id", entry.ID, "recipient", entry.RecipientPhone, "attempts", attempts)

		if s.events != nil {
			s.events.Dispatch(ctx, domain.EventMessageSent, msg, map[string]string{
				"source":   "retry_queue",
				"entry_id": entry.ID,
			})
		}
		return domain.RetryEntryDelivered
	}

	var unknown *messaging.ErrUnknownType
	if errors.As(err, &unknown) {
		// Not a delivery failure; leave the entry untouched so an operator
		// can inspect it.
		metrics.QueueProcessed.WithLabelValues("skipped").Inc()
		s.logger.Warn("skipping entry with unknown message type",
			"entry_id", entry.ID, "message_type", entry.MessageType)
		return domain.RetryEntryPending
	}

	attempts := entry.Attempts + 1
	if attempts >= entry.MaxAttempts {
		if dbErr := s.repo.MarkFailedPermanent(ctx, entry.ID, attempts, err.Error()); dbErr != nil {
			s.logger.Error("failed to mark entry failed", "entry_id", entry.ID, "error", dbErr)
		}
		metrics.QueueProcessed.WithLabelValues("failed_permanent").Inc()
		s.logger.Error("queued send failed permanently",
			"entry_id", entry.ID, "recipient", entry.RecipientPhone,
			"attempts", attempts, "error", err)

		if s.notifier != nil {
			failed := *entry
			failed.Attempts = attempts
			failed.LastError = err.Error()
			if alertErr := s.notifier.PermanentFailure(ctx, &failed); alertErr != nil {
				s.logger.Warn("permanent failure alert not delivered",
					"entry_id", entry.ID, "error", alertErr)
			}
		}
		return domain.RetryEntryFailedPermanent
	}

	if dbErr := s.repo.RecordAttempt(ctx, entry.ID, attempts, err.Error()); dbErr != nil {
		s.logger.Error("failed to record attempt", "entry_id", entry.ID, "error", dbErr)
	}
	metrics.QueueProcessed.WithLabelValues("retried").Inc()
	s.logger.Warn("queued send failed, will retry",
		"entry_id", entry.ID, "recipient", entry.RecipientPhone,
		"attempts", attempts, "max_attempts", entry.MaxAttempts, "error", err)
	return domain.RetryEntryPending
}

// Counts returns queue depth by status.
func (s *Service) Counts(ctx context.Context) (map[domain.RetryEntryStatus]int, error) {
	return s.repo.CountByStatus(ctx)
}

func (s *Service) updatePendingGauge(ctx context.Context) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return
	}
	metrics.QueuePending.Set(float64(counts[domain.RetryEntryPending]))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
