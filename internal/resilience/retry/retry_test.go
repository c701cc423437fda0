package retry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/saracrm/courier/internal/resilience/classify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastOpts keeps test backoffs in the microsecond range.
var fastOpts = Options{
	MaxRetries: 3,
	BaseDelay:  time.Microsecond,
	MaxDelay:   10 * time.Microsecond,
	Multiplier: 2.0,
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastOpts, func(ctx context.Context) error {
		calls++
		if calls <= 2 {
			return &classify.HTTPError{Status: 503}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls, "fails twice then succeeds on third invocation")
}

func TestDo_ExhaustsRetries(t *testing.T) {
	opts := fastOpts
	opts.MaxRetries = 2

	var calls int
	err := Do(context.Background(), opts, func(ctx context.Context) error {
		calls++
		return &classify.HTTPError{Status: 500}
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls, "maxRetries+1 invocations")

	var httpErr *classify.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 500, httpErr.Status)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastOpts, func(ctx context.Context) error {
		calls++
		return &classify.HTTPError{Status: 401}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "permanent errors are not retried")
}

func TestDo_CustomClassifier(t *testing.T) {
	opts := fastOpts
	opts.MaxRetries = 1
	opts.RetryIf = func(err error) bool { return true }

	var calls int
	err := Do(context.Background(), opts, func(ctx context.Context) error {
		calls++
		return errors.New("normally permanent")
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_ObserverSeesEachRetry(t *testing.T) {
	var observed []int
	opts := fastOpts
	opts.OnRetry = func(err error, attempt int, delay time.Duration) {
		observed = append(observed, attempt)
	}

	_ = Do(context.Background(), opts, func(ctx context.Context) error {
		return &classify.HTTPError{Status: 502}
	})

	assert.Equal(t, []int{1, 2, 3}, observed, "observer fires before each sleep, not after the final failure")
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	opts := Options{MaxRetries: 3, BaseDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, opts, func(ctx context.Context) error {
			return &classify.HTTPError{Status: 503}
		})
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestBackoffDelay_Bounds(t *testing.T) {
	opts := DefaultOptions

	tests := []struct {
		attempt int
		capped  time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second}, // 16s capped to max
		{9, 10 * time.Second},
	}

	for _, tt := range tests {
		for i := 0; i < 100; i++ {
			d := backoffDelay(tt.attempt, opts)
			lo := time.Duration(float64(tt.capped) * 0.75)
			hi := time.Duration(float64(tt.capped) * 1.25)
			if d < lo || d > hi {
				t.Fatalf("attempt %d: delay %v outside [%v, %v]", tt.attempt, d, lo, hi)
			}
		}
	}
}

func TestDoValue(t *testing.T) {
	var calls int
	got, err := DoValue(context.Background(), fastOpts, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", &classify.HTTPError{Status: 503}
		}
		return "delivered", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "delivered", got)
	assert.Equal(t, 2, calls)
}

func TestDoRequest_RetryableStatusRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := DoRequest(context.Background(), srv.Client(), fastOpts, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), hits.Load())
}

func TestDoRequest_PermanentStatusReturnedToCaller(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	resp, err := DoRequest(context.Background(), srv.Client(), fastOpts, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	})
	require.NoError(t, err, "non-retryable responses flow back to the caller, not the retry loop")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}
