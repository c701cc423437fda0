package domain

import "encoding/json"

// MessageType identifies which send operation of the messaging API a payload
// belongs to. The set is closed for dispatch purposes but stored as text so
// new types can be added without a migration.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeTemplate MessageType = "template"
	MessageTypeImage    MessageType = "image"
)

// OutboundMessage is a send request against the messaging API, carried
// through the rate limiter and, on failure, into the retry queue.
type OutboundMessage struct {
	Recipient string          `json:"recipient"`
	Type      MessageType     `json:"message_type"`
	Payload   json.RawMessage `json:"payload"`
	Context   string          `json:"context"`
}
