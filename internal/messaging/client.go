package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/saracrm/courier/internal/core/domain"
	"github.com/saracrm/courier/internal/resilience/classify"
	"github.com/saracrm/courier/internal/resilience/retry"
)

// APIClient sends messages through the provider's HTTP API. Transient
// provider failures are retried in-band; whatever error escapes here is
// already shaped for the classifier, so callers can enqueue on it directly.
type APIClient struct {
	baseURL string
	token   string
	http    *http.Client
	opts    retry.Options
	logger  *slog.Logger
}

// NewAPIClient creates a provider client.
func NewAPIClient(baseURL, token string, logger *slog.Logger) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		opts: retry.Options{
			OnRetry: func(err error, attempt int, delay time.Duration) {
				logger.Warn("provider call failed, retrying",
					"attempt", attempt, "delay", delay, "error", err)
			},
		},
		logger: logger.With("component", "messaging_client"),
	}
}

type sendRequest struct {
	To      string          `json:"to"`
	Payload json.RawMessage `json:"payload"`
}

// Send posts one message to the provider's per-type endpoint.
func (c *APIClient) Send(ctx context.Context, msg *domain.OutboundMessage) error {
	switch msg.Type {
	case domain.MessageTypeText, domain.MessageTypeTemplate, domain.MessageTypeImage:
	default:
		return &ErrUnknownType{Type: msg.Type}
	}

	body, err := json.Marshal(sendRequest{To: msg.Recipient, Payload: msg.Payload})
	if err != nil {
		return fmt.Errorf("encoding send request: %w", err)
	}

	url := fmt.Sprintf("%s/messages/%s", c.baseURL, msg.Type)
	resp, err := retry.DoRequest(ctx, c.http, c.opts, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.token)
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("sending %s message: %w", msg.Type, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &classify.HTTPError{Status: resp.StatusCode, Body: string(snippet)}
}
