package github

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"time"

	gh "github.com/google/go-github/v82/github"
)

// retryConfig bounds the in-process retry loop. Failures that outlive these
// retries surface to the caller, which relies on queue redelivery instead.
type retryConfig struct {
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func defaultRetryConfig() retryConfig {
	return retryConfig{
		maxRetries:     3,
		initialBackoff: 200 * time.Millisecond,
		maxBackoff:     10 * time.Second,
	}
}

// executeWithRetry runs operation, retrying retryable errors with jittered
// exponential backoff. Non-retryable errors return immediately.
func executeWithRetry(ctx context.Context, cfg retryConfig, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if !isRetryableError(lastErr) {
			return lastErr
		}
		if attempt == cfg.maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffFor(cfg, attempt)):
		}
	}

	return lastErr
}

// isRetryableError reports whether an error is worth retrying in-process:
// server errors, rate limits, and transport-level failures.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var rateLimitErr *gh.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return true
	}

	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch ghErr.Response.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}

// backoffFor returns the jittered exponential delay for an attempt.
func backoffFor(cfg retryConfig, attempt int) time.Duration {
	base := float64(cfg.initialBackoff) * float64(int(1)<<uint(attempt))
	jitter := (rand.Float64() * 0.4) - 0.2
	backoff := time.Duration(base * (1 + jitter))
	if backoff > cfg.maxBackoff {
		backoff = cfg.maxBackoff
	}
	return backoff
}
