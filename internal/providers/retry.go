package providers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"
)

// RetryConfig controls RetryDo's exponential backoff.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig matches what the provider clients were built against:
// up to 3 attempts, doubling from 500ms, capped at 8s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
	}
}

// HTTPError wraps a non-2xx provider response. RetryAfter, when non-zero,
// is honored as the backoff delay in place of the exponential schedule.
type HTTPError struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return "provider http error " + strconv.Itoa(e.Status) + ": " + e.Body
}

// retryable reports whether status warrants another attempt: 429 and 5xx
// are transient; everything else (auth, bad request, etc.) is not.
func (e *HTTPError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// ParseRetryAfter parses a Retry-After header value (seconds only — the
// providers this client talks to never send the HTTP-date form). Returns 0
// if absent or unparsable.
func ParseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// RetryDo runs fn with exponential backoff up to cfg.MaxAttempts. Only
// HTTPError failures that are retryable() are retried; any other error
// (including a non-retryable HTTPError) returns immediately. A RetryHook
// attached to ctx via WithRetryHook is called before each retried attempt.
func RetryDo[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var zero T
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		var httpErr *HTTPError
		if !errors.As(err, &httpErr) || !httpErr.retryable() || attempt == cfg.MaxAttempts {
			return zero, err
		}

		delay := httpErr.RetryAfter
		if delay == 0 {
			delay = cfg.InitialBackoff * time.Duration(1<<(attempt-1))
			if delay > cfg.MaxBackoff {
				delay = cfg.MaxBackoff
			}
		}

		if hook := retryHookFromCtx(ctx); hook != nil {
			hook(attempt, cfg.MaxAttempts, err)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, lastErr
}
