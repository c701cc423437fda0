// Package retry provides a bounded retry executor with exponential backoff
// and jitter, classifying failures through the classify package.
package retry

import (
	"context"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/saracrm/courier/internal/resilience/classify"
)

// Options controls retry behavior. The zero value gets sensible defaults.
type Options struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64

	// RetryIf overrides classify.IsRetryable when set.
	RetryIf func(err error) bool

	// OnRetry is invoked before each backoff sleep, for structured logging.
	OnRetry func(err error, attempt int, delay time.Duration)
}

// DefaultOptions mirror the messaging API presets.
var DefaultOptions = Options{
	MaxRetries: 3,
	BaseDelay:  1 * time.Second,
	MaxDelay:   10 * time.Second,
	Multiplier: 2.0,
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultOptions.MaxRetries
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultOptions.BaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultOptions.MaxDelay
	}
	if o.Multiplier <= 0 {
		o.Multiplier = DefaultOptions.Multiplier
	}
	return o
}

// Do runs fn up to MaxRetries+1 times. A non-retryable error, or the final
// attempt, returns immediately with no delay. The backoff sleep is
// context-aware; one logical operation runs at a time.
func Do(ctx context.Context, opts Options, fn func(ctx context.Context) error) error {
	opts = opts.withDefaults()
	retryIf := opts.RetryIf
	if retryIf == nil {
		retryIf = classify.IsRetryable
	}

	var lastErr error
	for attempt := 1; attempt <= opts.MaxRetries+1; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt > opts.MaxRetries || !retryIf(lastErr) {
			return lastErr
		}

		delay := backoffDelay(attempt, opts)
		if opts.OnRetry != nil {
			opts.OnRetry(lastErr, attempt, delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, opts Options, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, opts, func(ctx context.Context) error {
		var fnErr error
		result, fnErr = fn(ctx)
		return fnErr
	})
	return result, err
}

// backoffDelay computes min(base * multiplier^(attempt-1), max) with a
// uniform ±25% jitter to avoid thundering herds.
func backoffDelay(attempt int, opts Options) time.Duration {
	exp := float64(opts.BaseDelay) * math.Pow(opts.Multiplier, float64(attempt-1))
	capped := math.Min(exp, float64(opts.MaxDelay))
	jitter := capped * 0.25 * (rand.Float64()*2 - 1)
	return time.Duration(capped + jitter)
}

// DoRequest retries an HTTP call. Responses with a retryable status are
// converted to *classify.HTTPError and fed back through the retry loop;
// any other response, including permanent client errors, is returned to the
// caller as-is. build must return a fresh request each attempt so bodies are
// not consumed twice.
func DoRequest(ctx context.Context, client *http.Client, opts Options, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	return DoValue(ctx, opts, func(ctx context.Context) (*http.Response, error) {
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if retryableResponse(resp.StatusCode) {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, &classify.HTTPError{Status: resp.StatusCode, Body: string(body)}
		}
		return resp, nil
	})
}

func retryableResponse(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout,
		522, 524:
		return true
	}
	return false
}
