package domain

import "time"

// EventType names a domain event that can be fanned out to subscribers.
type EventType string

const (
	EventLeadCreated          EventType = "lead.created"
	EventLeadUpdated          EventType = "lead.updated"
	EventLeadAssigned         EventType = "lead.assigned"
	EventLeadQualified        EventType = "lead.qualified"
	EventLeadLost             EventType = "lead.lost"
	EventAppointmentCreated   EventType = "appointment.created"
	EventAppointmentConfirmed EventType = "appointment.confirmed"
	EventAppointmentCompleted EventType = "appointment.completed"
	EventAppointmentCancelled EventType = "appointment.cancelled"
	EventSaleCreated          EventType = "sale.created"
	EventSaleClosed           EventType = "sale.closed"
	EventMessageSent          EventType = "message.sent"
	EventMessageReceived      EventType = "message.received"
)

// WebhookConfig is a registered external endpoint. Rows are managed by the
// admin surface; the dispatcher only reads them, through a short-lived cache.
type WebhookConfig struct {
	ID         string            `db:"id" json:"id"`
	Name       string            `db:"name" json:"name"`
	URL        string            `db:"url" json:"url"`
	Events     []EventType       `json:"events"`
	Headers    map[string]string `json:"headers"`
	Active     bool              `db:"active" json:"active"`
	Secret     string            `db:"secret" json:"-"`
	RetryCount int               `db:"retry_count" json:"retry_count"`
	CreatedAt  time.Time         `db:"created_at" json:"created_at"`
}

// SubscribesTo reports whether the endpoint should receive the event.
// A webhook is effective only when active and subscribed.
func (w WebhookConfig) SubscribesTo(event EventType) bool {
	if !w.Active {
		return false
	}
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}
