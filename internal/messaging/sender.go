// Package messaging defines the outbound send surface the resilience layer
// wraps. The concrete provider client lives in the CRM service; this module
// only consumes the interface.
package messaging

import (
	"context"
	"fmt"

	"github.com/saracrm/courier/internal/core/domain"
)

// Sender delivers one outbound message to the messaging provider. A nil
// error means the provider accepted the message; anything else is fed to
// the error classifier to decide between retry and drop.
type Sender interface {
	Send(ctx context.Context, msg *domain.OutboundMessage) error
}

// Func adapts a function to the Sender interface.
type Func func(ctx context.Context, msg *domain.OutboundMessage) error

func (f Func) Send(ctx context.Context, msg *domain.OutboundMessage) error {
	return f(ctx, msg)
}

// ErrUnknownType reports a message type the sender cannot dispatch.
type ErrUnknownType struct {
	Type domain.MessageType
}

func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("unknown message type %q", e.Type)
}

// TypedSender routes each message type to its own send function, mirroring
// the per-type endpoints of the provider API.
type TypedSender struct {
	Text     func(ctx context.Context, msg *domain.OutboundMessage) error
	Template func(ctx context.Context, msg *domain.OutboundMessage) error
	Image    func(ctx context.Context, msg *domain.OutboundMessage) error
}

func (s *TypedSender) Send(ctx context.Context, msg *domain.OutboundMessage) error {
	var fn func(ctx context.Context, msg *domain.OutboundMessage) error
	switch msg.Type {
	case domain.MessageTypeText:
		fn = s.Text
	case domain.MessageTypeTemplate:
		fn = s.Template
	case domain.MessageTypeImage:
		fn = s.Image
	}
	if fn == nil {
		return &ErrUnknownType{Type: msg.Type}
	}
	return fn(ctx, msg)
}
