// Package alert notifies operators when a queued send is abandoned.
// Notifications are best-effort: callers log and swallow failures so an
// alerting outage can never block queue processing.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/saracrm/courier/internal/core/domain"
	"github.com/saracrm/courier/internal/messaging"
)

// Notifier receives permanent-failure alerts.
type Notifier interface {
	PermanentFailure(ctx context.Context, entry *domain.RetryQueueEntry) error
}

// LogNotifier writes alerts to the structured log. The default when no ops
// phone is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) PermanentFailure(ctx context.Context, entry *domain.RetryQueueEntry) error {
	n.Logger.Error("send permanently failed after exhausting retries",
		"entry_id", entry.ID,
		"recipient", entry.RecipientPhone,
		"message_type", entry.MessageType,
		"attempts", entry.Attempts,
		"context", entry.Context,
		"last_error", entry.LastError)
	return nil
}

// PhoneNotifier texts the on-call phone through the same messaging provider
// the queue retries against.
type PhoneNotifier struct {
	Sender   messaging.Sender
	OpsPhone string
}

func (n *PhoneNotifier) PermanentFailure(ctx context.Context, entry *domain.RetryQueueEntry) error {
	text := fmt.Sprintf(
		"⚠️ Message to %s failed permanently after %d attempts.\nContext: %s\nLast error: %s",
		entry.RecipientPhone, entry.Attempts, entry.Context, entry.LastError,
	)

	payload, err := json.Marshal(map[string]string{"body": text})
	if err != nil {
		return err
	}

	return n.Sender.Send(ctx, &domain.OutboundMessage{
		Recipient: n.OpsPhone,
		Type:      domain.MessageTypeText,
		Payload:   payload,
		Context:   "ops-alert",
	})
}
