package domain

import (
	"encoding/json"
	"time"
)

// DeliveryStatus is the final outcome of one dispatch cycle to one endpoint.
type DeliveryStatus string

const (
	DeliverySuccess DeliveryStatus = "success"
	DeliveryFailed  DeliveryStatus = "failed"
)

// WebhookDelivery records a settled dispatch attempt-set. Written exactly once
// after the per-endpoint retry loop ends; immutable thereafter.
type WebhookDelivery struct {
	ID             string          `db:"id" json:"id"`
	WebhookID      string          `db:"webhook_id" json:"webhook_id"`
	Event          EventType       `db:"event" json:"event"`
	Payload        json.RawMessage `db:"payload" json:"payload"`
	Status         DeliveryStatus  `db:"status" json:"status"`
	Attempts       int             `db:"attempts" json:"attempts"`
	ResponseStatus *int            `db:"response_status" json:"response_status"`
	ResponseBody   string          `db:"response_body" json:"response_body"`
	ResponseTimeMs int64           `db:"response_time_ms" json:"response_time_ms"`
	Error          string          `db:"error" json:"error"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// MaxResponseBodyLen caps the stored endpoint response.
const MaxResponseBodyLen = 1000

// DeliveryStats aggregates recent delivery outcomes for one webhook.
type DeliveryStats struct {
	WebhookID         string     `json:"webhook_id"`
	TotalDeliveries   int        `json:"total_deliveries"`
	Successful        int        `json:"successful"`
	Failed            int        `json:"failed"`
	SuccessRate       float64    `json:"success_rate"`
	AvgResponseTimeMs int64      `json:"avg_response_time_ms"`
	LastDeliveryAt    *time.Time `json:"last_delivery_at"`
}
